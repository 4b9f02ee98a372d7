package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/unitable/solverd/pkg/jobs"
	"github.com/unitable/solverd/pkg/timetable"
)

var (
	submitName   string
	submitBudget string
	submitWait   bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <problem-file>",
	Short: "Submit a timetabling problem to a running server",
	Long: `Submit a problem file to a running solverd server.

JSON and YAML files are parsed as the structured problem model; .xml
files are submitted verbatim as solver problem documents.

Examples:
  solverd submit problem.yaml
  solverd submit problem.json --budget 10m --wait
  solverd submit problem.xml --name nightly`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Base URL of the solverd server")
	submitCmd.Flags().StringVar(&submitName, "name", "", "Job name")
	submitCmd.Flags().StringVar(&submitBudget, "budget", "", "Wall-clock budget, e.g. 10m")
	submitCmd.Flags().BoolVar(&submitWait, "wait", false, "Poll until the job reaches a terminal state")
}

func runSubmit(_ *cobra.Command, args []string) error {
	path := args[0]

	var (
		route       string
		rawQuery    string
		body        []byte
		contentType string
	)

	if strings.EqualFold(filepath.Ext(path), ".xml") {
		raw, err := os.ReadFile(path)
		if err != nil {
			return exitError(foundry.ExitFileReadError, "Cannot read problem file", err)
		}
		query := url.Values{}
		if submitName != "" {
			query.Set("name", submitName)
		}
		if submitBudget != "" {
			query.Set("budget", submitBudget)
		}
		route = "/problems/xml"
		rawQuery = query.Encode()
		body = raw
		contentType = "application/xml"
	} else {
		problem, err := timetable.LoadProblem(path)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Cannot parse problem file", err)
		}
		if submitName != "" {
			problem.Name = submitName
		}

		payload := map[string]any{}
		raw, err := json.Marshal(problem)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Cannot encode problem", err)
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Cannot encode problem", err)
		}
		if submitBudget != "" {
			payload["budget"] = submitBudget
		}
		body, err = json.Marshal(payload)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Cannot encode problem", err)
		}
		route = "/problems"
		contentType = "application/json"
	}

	u, err := url.JoinPath(serverURL, route)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid server URL", err)
	}
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	resp, err := apiClient.Post(u, contentType, bytes.NewReader(body))
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Cannot reach solverd server", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var submitted struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	if resp.StatusCode != http.StatusOK {
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&envelope) == nil && envelope.Error.Code != "" {
			return fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Invalid server response", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "Job %s accepted\n", submitted.ID)
	if !submitWait {
		return nil
	}
	return waitForJob(submitted.ID)
}

// waitForJob polls the status route until the job is terminal.
func waitForJob(id string) error {
	for {
		var st jobs.StatusInfo
		if err := apiGet("/problems/"+id, &st); err != nil {
			return err
		}
		switch st.State {
		case "completed":
			_, _ = fmt.Fprintf(os.Stdout, "Job %s completed\n", id)
			return nil
		case "failed":
			return fmt.Errorf("job %s failed; see 'solverd jobs logs %s'", id, id)
		case "cancelled":
			return fmt.Errorf("job %s was cancelled", id)
		}
		time.Sleep(2 * time.Second)
	}
}
