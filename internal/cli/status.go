package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ppiankov/signalrelay/internal/store"
	"github.com/spf13/cobra"
)

var (
	statusSince  string
	statusFormat string
)

const statusFailureLimit = 10

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show delivery state and history",
	RunE:  statusAction,
}

func init() {
	statusCmd.Flags().StringVar(&statusSince, "since", "7d", "history window (e.g. 7d, 48h)")
	statusCmd.Flags().StringVar(&statusFormat, "format", "terminal", "output format: terminal, json")
}

type statusReport struct {
	Backend  string           `json:"backend"`
	Known    int              `json:"known"`
	Sent     int              `json:"sent"`
	Pending  int              `json:"pending"`
	History  bool             `json:"history"`
	Window   string           `json:"window"`
	Parts    []jsonPartStats  `json:"parts"`
	Failures []jsonFailedSend `json:"recent_failures"`

	stats  []store.PartStats
	failed []store.Delivery
}

type jsonPartStats struct {
	Part    string  `json:"part"`
	Total   int     `json:"total"`
	OK      int     `json:"ok"`
	Failed  int     `json:"failed"`
	Success float64 `json:"success_pct"`
	Last    string  `json:"last,omitempty"`
}

type jsonFailedSend struct {
	PostID      string `json:"post_id"`
	Destination string `json:"destination"`
	Part        string `json:"part"`
	Error       string `json:"error"`
	At          string `json:"at"`
}

func statusAction(cmd *cobra.Command, _ []string) error {
	switch statusFormat {
	case "terminal", "", "json":
	default:
		return fmt.Errorf("unknown format %q (want terminal or json)", statusFormat)
	}

	sinceDur, err := parseDuration(statusSince)
	if err != nil {
		return fmt.Errorf("parse --since: %w", err)
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	st, err := openState(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	report := statusReport{
		Backend: cfg.State.Backend,
		Known:   st.Known.Len(),
		Sent:    st.Sent.Len(),
		Window:  formatStatusDuration(sinceDur),
	}
	for _, id := range st.Known.IDs() {
		if !st.Sent.Has(id) {
			report.Pending++
		}
	}

	history, err := openHistory(cfg)
	if err != nil {
		return err
	}
	if history != nil {
		defer func() { _ = history.Close() }()
		report.History = true

		report.stats, err = history.GetPartStats(ctx, time.Now().Add(-sinceDur))
		if err != nil {
			return fmt.Errorf("get history: %w", err)
		}
		report.failed, err = history.RecentFailures(ctx, statusFailureLimit)
		if err != nil {
			return fmt.Errorf("get failures: %w", err)
		}
	}

	if statusFormat == "json" {
		return printStatusJSON(os.Stdout, report)
	}
	printStatus(os.Stdout, report)
	return nil
}

func printStatusJSON(w io.Writer, r statusReport) error {
	r.Parts = make([]jsonPartStats, 0, len(r.stats))
	for _, ps := range r.stats {
		jp := jsonPartStats{
			Part:    ps.Part,
			Total:   ps.Total,
			OK:      ps.OK,
			Failed:  ps.Failed,
			Success: pct(ps.OK, ps.Total),
		}
		if !ps.Last.IsZero() {
			jp.Last = ps.Last.UTC().Format(time.RFC3339)
		}
		r.Parts = append(r.Parts, jp)
	}
	r.Failures = make([]jsonFailedSend, 0, len(r.failed))
	for _, d := range r.failed {
		r.Failures = append(r.Failures, jsonFailedSend{
			PostID:      d.PostID,
			Destination: d.Destination,
			Part:        d.Part,
			Error:       d.Error,
			At:          d.At.UTC().Format(time.RFC3339),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func printStatus(w io.Writer, r statusReport) {
	fmt.Fprintf(w, "signalrelay status (%s backend)\n\n", r.Backend)
	fmt.Fprintf(w, "  Known:    %5d\n", r.Known)
	fmt.Fprintf(w, "  Sent:     %5d\n", r.Sent)
	fmt.Fprintf(w, "  Pending:  %5d\n", r.Pending)
	fmt.Fprintln(w)

	if !r.History {
		fmt.Fprintln(w, "Delivery history is disabled.")
		return
	}
	if len(r.stats) == 0 {
		fmt.Fprintf(w, "No deliveries in the last %s. Run 'signalrelay run' first.\n", r.Window)
		return
	}

	fmt.Fprintf(w, "--- Deliveries, last %s ---\n\n", r.Window)
	fmt.Fprintf(w, "  %-6s  %5s  %5s  %6s  %7s  %s\n", "Part", "Total", "OK", "Failed", "Success", "Last")
	for _, ps := range r.stats {
		last := "-"
		if !ps.Last.IsZero() {
			last = ps.Last.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "  %-6s  %5d  %5d  %6d  %6.1f%%  %s\n",
			ps.Part, ps.Total, ps.OK, ps.Failed, pct(ps.OK, ps.Total), last)
	}
	fmt.Fprintln(w)

	if len(r.failed) > 0 {
		fmt.Fprintln(w, "--- Recent Failures ---")
		fmt.Fprintln(w)
		for _, d := range r.failed {
			fmt.Fprintf(w, "  %s  %s  %-5s  %s  %s\n",
				d.At.Local().Format("2006-01-02 15:04"), d.PostID, d.Part, d.Destination, d.Error)
		}
		fmt.Fprintln(w)
	}
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// parseDuration handles both Go durations and "Nd" day notation.
func parseDuration(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil && days > 0 {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}

func formatStatusDuration(d time.Duration) string {
	hours := int(d.Hours())
	if hours >= 24 && hours%24 == 0 {
		return fmt.Sprintf("%d days", hours/24)
	}
	return fmt.Sprintf("%dh", hours)
}
