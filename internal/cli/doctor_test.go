package cli

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattermost/mattermost/server/public/model"
)

func TestDoctor_MissingConfig(t *testing.T) {
	withConfigDir(t, filepath.Join(t.TempDir(), "missing"))

	doctorCmd.SetContext(context.Background())
	var err error
	out := captureStdout(t, func() {
		err = doctorAction(doctorCmd, nil)
	})
	if err == nil || !strings.Contains(err.Error(), "some checks failed") {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(out, "[FAIL] config directory") || !strings.Contains(out, "[FAIL] config.yaml") {
		t.Errorf("output = %q", out)
	}
}

func TestDoctor_AllPass(t *testing.T) {
	up := upstreamServer(t, "p1")
	chat := newChatServer(t)
	chat.setChannels(
		&model.Channel{Id: "ch-1", DisplayName: "One"},
		&model.Channel{Id: "ch-2", DisplayName: "Two"},
	)
	env := writeTestConfig(t, up.URL, chat.URL, "")
	withConfigDir(t, env.dir)

	doctorCmd.SetContext(context.Background())
	var err error
	out := captureStdout(t, func() {
		err = doctorAction(doctorCmd, nil)
	})
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	for _, want := range []string{
		"[ OK ] config.yaml (api upstream, 2 destinations, no mirror)",
		"[ OK ] state known_posts (file backend, 0 ids)",
		"[ OK ] history database",
		"[ OK ] upstream api (1 posts in snapshot)",
		"[ OK ] mattermost",
		"[ OK ] destinations (2 of 2 channels)",
		"All checks passed.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDoctor_DestinationNotVisible(t *testing.T) {
	up := upstreamServer(t)
	chat := newChatServer(t)
	chat.setChannels(&model.Channel{Id: "ch-1", DisplayName: "One"})
	env := writeTestConfig(t, up.URL, chat.URL, "")
	withConfigDir(t, env.dir)

	doctorCmd.SetContext(context.Background())
	var err error
	out := captureStdout(t, func() {
		err = doctorAction(doctorCmd, nil)
	})
	if err == nil {
		t.Fatal("expected failure for invisible destination")
	}
	if !strings.Contains(out, "[FAIL] destination ch-2 not visible") {
		t.Errorf("output = %q", out)
	}
}
