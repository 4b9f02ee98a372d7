package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

var (
	mu     sync.RWMutex
	loaded *Config
)

// envSpec maps one environment variable to a config key. Flat names keep
// operator-facing variables short (SOLVERD_PORT, not SOLVERD_SERVER_PORT).
type envSpec struct {
	Name string
	Key  string
}

func getEnvSpecs() []envSpec {
	return []envSpec{
		{Name: "SOLVERD_HOST", Key: "server.host"},
		{Name: "SOLVERD_PORT", Key: "server.port"},
		{Name: "SOLVERD_READ_TIMEOUT", Key: "server.read_timeout"},
		{Name: "SOLVERD_WRITE_TIMEOUT", Key: "server.write_timeout"},
		{Name: "SOLVERD_IDLE_TIMEOUT", Key: "server.idle_timeout"},
		{Name: "SOLVERD_SHUTDOWN_TIMEOUT", Key: "server.shutdown_timeout"},
		{Name: "SOLVERD_LOG_LEVEL", Key: "logging.level"},
		{Name: "SOLVERD_LOG_PROFILE", Key: "logging.profile"},
		{Name: "SOLVERD_SOLVER_DIR", Key: "solver.install_dir"},
		{Name: "SOLVERD_SOLVER_SETTINGS", Key: "solver.settings_path"},
		{Name: "SOLVERD_JAVA_PATH", Key: "solver.java_path"},
		{Name: "SOLVERD_SERVICE_PROBLEM", Key: "solver.service_problem"},
		{Name: "SOLVERD_MAX_HEAP_MB", Key: "solver.max_heap_mb"},
		{Name: "SOLVERD_MAX_CONCURRENT", Key: "jobs.max_concurrent"},
		{Name: "SOLVERD_POLL_INTERVAL", Key: "jobs.poll_interval"},
		{Name: "SOLVERD_DEFAULT_BUDGET", Key: "jobs.default_budget"},
		{Name: "SOLVERD_WORK_DIR", Key: "jobs.work_dir"},
		{Name: "SOLVERD_MAX_RECORDS", Key: "jobs.max_records"},
		{Name: "SOLVERD_ARCHIVE_BACKEND", Key: "archive.backend"},
		{Name: "SOLVERD_ARCHIVE_DIR", Key: "archive.dir"},
		{Name: "SOLVERD_ARCHIVE_BUCKET", Key: "archive.bucket"},
		{Name: "SOLVERD_ARCHIVE_REGION", Key: "archive.region"},
		{Name: "SOLVERD_ARCHIVE_ENDPOINT", Key: "archive.endpoint"},
		{Name: "SOLVERD_ARCHIVE_PREFIX", Key: "archive.prefix"},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	v.SetDefault("solver.install_dir", "")
	v.SetDefault("solver.settings_path", "")
	v.SetDefault("solver.java_path", "")
	v.SetDefault("solver.max_heap_mb", 512)
	v.SetDefault("solver.service_problem", "")

	v.SetDefault("jobs.max_concurrent", 4)
	v.SetDefault("jobs.poll_interval", 500*time.Millisecond)
	v.SetDefault("jobs.default_budget", time.Duration(0))
	v.SetDefault("jobs.work_dir", "")
	v.SetDefault("jobs.max_records", 0)

	v.SetDefault("archive.backend", "none")
}

// Load builds the configuration. file may be empty; overrides, when given,
// take precedence over everything else. The loaded config is retained for
// GetConfig.
func Load(_ context.Context, file string, overrides ...map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Key, spec.Name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	for _, o := range overrides {
		for key, value := range flatten("", o) {
			v.Set(key, value)
		}
	}

	cfg := &Config{}
	decode := func(dc *mapstructure.DecoderConfig) {
		// Environment values arrive as strings; weak typing covers the
		// numeric and boolean fields.
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
	if err := v.Unmarshal(cfg, decode); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	mu.Lock()
	loaded = cfg
	mu.Unlock()
	return cfg, nil
}

// GetConfig returns the most recently loaded config, or nil before Load.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return loaded
}

// flatten turns nested override maps into dotted viper keys.
func flatten(prefix string, in map[string]any) map[string]any {
	out := make(map[string]any)
	for key, value := range in {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			for k, v := range flatten(full, nested) {
				out[k] = v
			}
			continue
		}
		out[strings.ToLower(full)] = value
	}
	return out
}
