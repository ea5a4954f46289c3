package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/perplexity-mcp/journal"
)

// NewHistoryCmd creates the "history" subcommand.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent session and invocation events from the journal",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	cmd.Flags().Int("limit", 20, "Number of most recent events to print (0 = all)")
	cmd.Flags().String("session", "", "Only show events for this session id")
	cmd.Flags().String("kind", "", "Only show events of this kind (session.opened | session.closed | tool.invoked)")
	cmd.Flags().String("journal", "", "Path to the SQLite journal (default: from config)")
	cmd.Flags().String("format", "text", "Output format: text | json")

	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	sessionID, _ := cmd.Flags().GetString("session")
	kind, _ := cmd.Flags().GetString("kind")
	format, _ := cmd.Flags().GetString("format")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Journal.Path == "" {
		return exitError(exitConfig, "no journal configured; pass --journal or set journal.path / PERPLEXITY_MCP_JOURNAL")
	}
	if _, err := os.Stat(cfg.Journal.Path); err != nil {
		return exitError(exitConfig, "journal not found: %s", cfg.Journal.Path)
	}

	store, err := journal.NewSQLiteStore(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer func() { _ = store.Close() }()

	events, err := store.List(cmd.Context(), journal.Filter{
		SessionID: sessionID,
		Kind:      journal.Kind(kind),
		Limit:     limit,
	})
	if err != nil {
		return fmt.Errorf("reading journal: %w", err)
	}

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		return printHistoryJSON(out, events)
	case "text":
		return printHistoryText(out, events)
	default:
		return exitError(exitValidation, "unknown format %q (want text or json)", format)
	}
}

type historyRecord struct {
	ID        int64     `json:"id"`
	Time      time.Time `json:"time"`
	Kind      string    `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
	Transport string    `json:"transport,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	Model     string    `json:"model,omitempty"`
	Format    string    `json:"format,omitempty"`
	Success   bool      `json:"success"`
	ErrorCode string    `json:"error_code,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms"`
}

func printHistoryJSON(w io.Writer, events []journal.Event) error {
	records := make([]historyRecord, 0, len(events))
	for _, e := range events {
		records = append(records, historyRecord{
			ID:        e.ID,
			Time:      e.Time,
			Kind:      string(e.Kind),
			SessionID: e.SessionID,
			Transport: e.Transport,
			Tool:      e.Tool,
			Model:     e.Model,
			Format:    e.Format,
			Success:   e.Success,
			ErrorCode: e.ErrorCode,
			Detail:    e.Detail,
			ElapsedMS: e.Elapsed.Milliseconds(),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func printHistoryText(w io.Writer, events []journal.Event) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, "No journal events.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKIND\tSESSION\tDETAIL\tELAPSED")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Time.Local().Format(time.DateTime),
			e.Kind,
			e.SessionID,
			historyDetail(e),
			e.Elapsed.Round(time.Millisecond),
		)
	}
	return tw.Flush()
}

func historyDetail(e journal.Event) string {
	switch e.Kind {
	case journal.KindToolInvoked:
		status := "ok"
		if !e.Success {
			status = e.ErrorCode
		}
		return fmt.Sprintf("%s model=%s format=%s %s", e.Tool, e.Model, e.Format, status)
	case journal.KindSessionClosed:
		if e.Detail != "" {
			return e.Transport + " error=" + e.Detail
		}
		return e.Transport
	default:
		return e.Transport
	}
}
