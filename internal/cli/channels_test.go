package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/ppiankov/signalrelay/internal/messenger"
)

func TestPrintDestinations(t *testing.T) {
	dests := []messenger.Destination{
		{ID: "ch-2", DisplayName: "Signals VIP"},
		{ID: "ch-1", DisplayName: "Announcements"},
	}

	var buf bytes.Buffer
	printDestinations(&buf, dests, []string{"ch-2"})
	out := buf.String()

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if !strings.HasPrefix(lines[0], "  ch-1") {
		t.Errorf("first line = %q, want Announcements first", lines[0])
	}
	if !strings.HasPrefix(lines[1], "* ch-2") {
		t.Errorf("second line = %q, want configured mark", lines[1])
	}
	if !strings.Contains(out, "2 channels") {
		t.Errorf("output = %q", out)
	}
}

func TestPrintDestinations_Empty(t *testing.T) {
	var buf bytes.Buffer
	printDestinations(&buf, nil, nil)
	if !strings.Contains(buf.String(), "No channels") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestChannelsAction(t *testing.T) {
	chat := newChatServer(t)
	chat.setChannels(
		&model.Channel{Id: "ch-1", Name: "town-square", DisplayName: "Town Square"},
		&model.Channel{Id: "ch-9", Name: "alerts"},
	)
	env := writeTestConfig(t, "http://127.0.0.1:1", chat.URL, "")
	withConfigDir(t, env.dir)

	channelsCmd.SetContext(context.Background())
	out := captureStdout(t, func() {
		if err := channelsAction(channelsCmd, nil); err != nil {
			t.Fatalf("channels: %v", err)
		}
	})

	if !strings.Contains(out, "* ch-1") || !strings.Contains(out, "Town Square") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "alerts") {
		t.Errorf("channel without display name should fall back to name: %q", out)
	}
}
