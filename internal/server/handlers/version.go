package handlers

import (
	"net/http"
	"sync"
)

var (
	versionMu    sync.RWMutex
	buildVersion = "dev"
	buildCommit  = "unknown"
)

// SetVersion records the build version served by VersionHandler.
func SetVersion(version, commit string) {
	versionMu.Lock()
	defer versionMu.Unlock()
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
}

// VersionHandler handles GET /version.
func VersionHandler(w http.ResponseWriter, _ *http.Request) {
	versionMu.RLock()
	defer versionMu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "solverd",
		"version": buildVersion,
		"commit":  buildCommit,
	})
}

// RootHandler handles GET /: a service banner doubling as a liveness
// probe for load balancers that only hit the root path.
func RootHandler(w http.ResponseWriter, _ *http.Request) {
	versionMu.RLock()
	defer versionMu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "solverd",
		"version": buildVersion,
		"status":  "ok",
	})
}
