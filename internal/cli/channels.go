package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/ppiankov/signalrelay/internal/messenger"
	"github.com/spf13/cobra"
)

const channelsTimeout = 30 * time.Second

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List channels the bot can deliver to",
	RunE:  channelsAction,
}

func channelsAction(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	mm, err := newMattermost(cfg, log)
	if err != nil {
		return fmt.Errorf("create sender: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), channelsTimeout)
	defer cancel()

	if err := mm.Connect(ctx); err != nil {
		return err
	}
	dests, err := mm.Destinations(ctx)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}

	printDestinations(os.Stdout, dests, cfg.Destinations)
	return nil
}

// printDestinations lists dests sorted by name, marking the configured ones.
func printDestinations(w io.Writer, dests []messenger.Destination, configured []string) {
	if len(dests) == 0 {
		fmt.Fprintln(w, "No channels visible to this account.")
		return
	}

	selected := make(map[string]bool, len(configured))
	for _, id := range configured {
		selected[id] = true
	}

	sorted := make([]messenger.Destination, len(dests))
	copy(sorted, dests)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].DisplayName < sorted[j].DisplayName
	})

	for _, d := range sorted {
		mark := " "
		if selected[d.ID] {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %-26s  %s\n", mark, d.ID, d.DisplayName)
	}
	fmt.Fprintf(w, "\n%d channels; * marks configured destinations.\n", len(sorted))
}
