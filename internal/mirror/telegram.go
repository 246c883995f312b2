package mirror

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	telegramSourceName  = "telegram"
	collectTimeout      = 2 * time.Minute
	maxLineLength       = 1 << 20 // 1 MiB per JSONL line
	defaultPython       = "python3"
	defaultTelegramPoll = 30 * time.Second
)

// TelegramOptions configure the collector invocation.
type TelegramOptions struct {
	Script       string
	PythonPath   string
	APIID        string
	APIHash      string
	SessionDir   string
	Channel      string
	PollInterval time.Duration
}

// TelegramSource polls the Telethon collector script for new messages in one
// channel. Only messages newer than the subscription start are forwarded.
type TelegramSource struct {
	opts TelegramOptions
	log  zerolog.Logger

	collect func(ctx context.Context, since time.Time) ([]Message, error)
	now     func() time.Time
}

// NewTelegram creates a Telegram source.
func NewTelegram(opts TelegramOptions, log zerolog.Logger) (*TelegramSource, error) {
	if strings.TrimSpace(opts.Script) == "" {
		return nil, errors.New("telegram: script path is required")
	}
	if strings.TrimSpace(opts.Channel) == "" {
		return nil, errors.New("telegram: channel is required")
	}
	if opts.PythonPath == "" {
		opts.PythonPath = defaultPython
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultTelegramPoll
	}

	ts := &TelegramSource{opts: opts, log: log, now: time.Now}
	ts.collect = ts.runCollector
	return ts, nil
}

// Name returns "telegram".
func (ts *TelegramSource) Name() string {
	return telegramSourceName
}

// Subscribe polls until ctx ends. Collector failures are logged and retried
// on the next tick.
func (ts *TelegramSource) Subscribe(ctx context.Context, h Handler) error {
	hw := watermark{since: ts.now().UTC()}

	ticker := time.NewTicker(ts.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		msgs, err := ts.collect(ctx, hw.since)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			ts.log.Warn().Err(err).Str("channel", ts.opts.Channel).Msg("telegram collect failed")
			continue
		}

		for _, msg := range hw.advance(msgs) {
			h(ctx, msg)
		}
	}
}

// watermark tracks the newest message seen. Telegram message IDs increase
// monotonically within a channel.
type watermark struct {
	since  time.Time
	lastID int64
}

// advance returns the messages newer than the mark in ID order and moves the
// mark past them.
func (w *watermark) advance(msgs []Message) []Message {
	type keyed struct {
		id  int64
		msg Message
	}
	var fresh []keyed
	for _, m := range msgs {
		n, err := strconv.ParseInt(m.ID, 10, 64)
		if err != nil || n <= w.lastID || m.At.Before(w.since) {
			continue
		}
		fresh = append(fresh, keyed{id: n, msg: m})
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].id < fresh[j].id })

	out := make([]Message, 0, len(fresh))
	for _, k := range fresh {
		if k.id <= w.lastID {
			continue
		}
		w.lastID = k.id
		if k.msg.At.After(w.since) {
			w.since = k.msg.At
		}
		out = append(out, k.msg)
	}
	return out
}

// runCollector invokes the Python collector script and parses its JSONL
// output.
func (ts *TelegramSource) runCollector(ctx context.Context, since time.Time) ([]Message, error) {
	ctx, cancel := context.WithTimeout(ctx, collectTimeout)
	defer cancel()

	args := []string{
		ts.opts.Script,
		"--api-id", ts.opts.APIID,
		"--api-hash", ts.opts.APIHash,
		"--session-dir", ts.opts.SessionDir,
		"--channels", ts.opts.Channel,
		"--since", since.UTC().Format(time.RFC3339),
	}

	cmd := exec.CommandContext(ctx, ts.opts.PythonPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("telegram: stdout pipe: %w", err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("telegram: %s not found: install Python 3 and Telethon to use the telegram mirror", ts.opts.PythonPath)
		}
		return nil, fmt.Errorf("telegram: start collector: %w", err)
	}

	msgs, parseErr := parseJSONL(stdout)

	if err := cmd.Wait(); err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg != "" {
			return nil, fmt.Errorf("telegram: collector failed: %s", errMsg)
		}
		return nil, fmt.Errorf("telegram: collector failed: %w", err)
	}

	if parseErr != nil {
		return nil, fmt.Errorf("telegram: parse output: %w", parseErr)
	}

	return msgs, nil
}

// telegramMessage is the JSONL schema emitted by the Python collector.
type telegramMessage struct {
	Channel string `json:"channel"`
	MsgID   string `json:"msg_id"`
	Date    string `json:"date"`
	Text    string `json:"text"`
	URL     string `json:"url"`
}

// parseJSONL reads JSONL from r and converts each line to a Message.
func parseJSONL(r io.Reader) ([]Message, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, maxLineLength), maxLineLength)

	var msgs []Message
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var tm telegramMessage
		if err := json.Unmarshal([]byte(line), &tm); err != nil {
			return nil, fmt.Errorf("line %d: invalid json: %w", lineNum, err)
		}

		at, err := time.Parse(time.RFC3339, tm.Date)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid date %q: %w", lineNum, tm.Date, err)
		}

		msgs = append(msgs, Message{
			Source:  telegramSourceName,
			Channel: tm.Channel,
			ID:      tm.MsgID,
			Text:    tm.Text,
			At:      at,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read jsonl: %w", err)
	}

	return msgs, nil
}
