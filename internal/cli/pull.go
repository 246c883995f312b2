package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/ppiankov/signalrelay/internal/format"
	"github.com/ppiankov/signalrelay/internal/state"
	"github.com/ppiankov/signalrelay/internal/upstream"
	"github.com/spf13/cobra"
)

const pullExcerptLen = 72

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Fetch the current snapshot and show what would be delivered",
	RunE:  pullAction,
}

func pullAction(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	fetcher, err := newFetcher(cfg, log)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}

	st, err := openState(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	posts, err := fetcher.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", fetcher.Name(), err)
	}

	printSnapshot(os.Stdout, fetcher.Name(), posts, st)
	return nil
}

func printSnapshot(w io.Writer, source string, posts []upstream.Post, st *state.Store) {
	if len(posts) == 0 {
		fmt.Fprintf(w, "No posts returned by %s.\n", source)
		return
	}

	pending := 0
	for _, p := range posts {
		status := postStatus(p.ID, st)
		if status != "sent" {
			pending++
		}
		fmt.Fprintf(w, "  %-7s %s  %s\n", status, p.ID, format.Excerpt(format.HTMLToText(p.Description), pullExcerptLen))

		var media []string
		if p.HasImage() {
			media = append(media, "image")
		}
		if p.Video != "" {
			media = append(media, "video")
		}
		if p.PDFFile != "" {
			media = append(media, "pdf")
		}
		if len(media) > 0 {
			fmt.Fprintf(w, "          + %v\n", media)
		}
	}
	fmt.Fprintf(w, "\n%d posts from %s, %d not yet sent.\n", len(posts), source, pending)
}

func postStatus(id string, st *state.Store) string {
	switch {
	case st.Sent.Has(id):
		return "sent"
	case st.Known.Has(id):
		return "known"
	default:
		return "new"
	}
}
