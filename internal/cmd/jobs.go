package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	apperrors "github.com/unitable/solverd/internal/errors"
	"github.com/unitable/solverd/pkg/jobs"
	"github.com/unitable/solverd/pkg/jobstore"
)

var serverURL string

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and control jobs on a running server",
	Long: `Inspect and control solver jobs over the HTTP API of a running
solverd server.

The commands are agent-friendly: stable job ids, predictable routes,
and --json output for machine parsing.`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show status for a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsStopCmd = &cobra.Command{
	Use:   "stop <job_id>",
	Short: "Cancel a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStop,
}

var jobsLogsCmd = &cobra.Command{
	Use:   "logs <job_id>",
	Short: "Show the captured solver log for a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsLogs,
}

var jobsResultCmd = &cobra.Command{
	Use:   "result <job_id>",
	Short: "Fetch the solution of a completed job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsResult,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsStopCmd)
	jobsCmd.AddCommand(jobsLogsCmd)
	jobsCmd.AddCommand(jobsResultCmd)

	jobsCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Base URL of the solverd server")
	jobsListCmd.Flags().Bool("json", false, "Output as JSON")
	jobsStatusCmd.Flags().Bool("json", false, "Output as JSON")
	jobsLogsCmd.Flags().Int("tail", 0, "Show last N lines (0 = all)")
	jobsResultCmd.Flags().Bool("xml", false, "Fetch the raw solver XML instead of JSON")
}

var apiClient = &http.Client{Timeout: 30 * time.Second}

// apiGet fetches a JSON API route, decoding error envelopes into errors.
func apiGet(path string, out any) error {
	return apiDo(http.MethodGet, path, out)
}

func apiDo(method, path string, out any) error {
	u, err := url.JoinPath(serverURL, path)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid server URL", err)
	}
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid request", err)
	}
	resp, err := apiClient.Do(req)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Cannot reach solverd server", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to read response", err)
	}

	if resp.StatusCode >= 400 {
		var envelope apperrors.HTTPErrorResponse
		if json.Unmarshal(body, &envelope) == nil && envelope.Error.Code != "" {
			return fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if raw, ok := out.(*[]byte); ok {
		*raw = body
		return nil
	}
	return json.Unmarshal(body, out)
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	var resp struct {
		Jobs []jobstore.Summary `json:"jobs"`
	}
	if err := apiGet("/problems", &resp); err != nil {
		return err
	}
	if len(resp.Jobs) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No jobs found")
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp.Jobs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "JOB ID\tNAME\tSTATE\tSUBMITTED\tSTARTED\tFINISHED")
	for _, j := range resp.Jobs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			j.ID, j.Name, j.State,
			j.SubmittedAt.Format(time.RFC3339),
			formatOptionalTime(j.StartedAt),
			formatOptionalTime(j.FinishedAt))
	}
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	var st jobs.StatusInfo
	if err := apiGet("/problems/"+args[0], &st); err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	_, _ = fmt.Fprintf(os.Stdout, "Job:       %s\n", st.ID)
	if st.Name != "" {
		_, _ = fmt.Fprintf(os.Stdout, "Name:      %s\n", st.Name)
	}
	_, _ = fmt.Fprintf(os.Stdout, "State:     %s\n", st.State)
	_, _ = fmt.Fprintf(os.Stdout, "Submitted: %s\n", st.SubmittedAt.Format(time.RFC3339))
	if st.StartedAt != nil {
		_, _ = fmt.Fprintf(os.Stdout, "Started:   %s\n", st.StartedAt.Format(time.RFC3339))
	}
	if st.FinishedAt != nil {
		_, _ = fmt.Fprintf(os.Stdout, "Finished:  %s\n", st.FinishedAt.Format(time.RFC3339))
	}
	if len(st.LogExcerpt) > 0 {
		_, _ = fmt.Fprintln(os.Stdout, "Recent log:")
		for _, line := range st.LogExcerpt {
			_, _ = fmt.Fprintf(os.Stdout, "  %s\n", line)
		}
	}
	return nil
}

func runJobsStop(_ *cobra.Command, args []string) error {
	var resp struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	if err := apiDo(http.MethodDelete, "/problems/"+args[0], &resp); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stdout, "Job %s: %s\n", resp.ID, resp.State)
	return nil
}

func runJobsLogs(cmd *cobra.Command, args []string) error {
	tail, _ := cmd.Flags().GetInt("tail")

	var st jobs.StatusInfo
	if err := apiGet("/problems/"+args[0], &st); err != nil {
		return err
	}

	lines := st.LogExcerpt
	if tail > 0 && len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	_, _ = fmt.Fprintln(os.Stdout, strings.Join(lines, "\n"))
	return nil
}

func runJobsResult(cmd *cobra.Command, args []string) error {
	asXML, _ := cmd.Flags().GetBool("xml")

	path := "/problems/" + args[0] + "/solution"
	if asXML {
		path += "/xml"
	}

	var raw []byte
	if err := apiGet(path, &raw); err != nil {
		return err
	}
	_, _ = os.Stdout.Write(raw)
	if len(raw) > 0 && raw[len(raw)-1] != '\n' {
		_, _ = fmt.Fprintln(os.Stdout)
	}
	return nil
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}
