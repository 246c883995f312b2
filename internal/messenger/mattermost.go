package messenger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxAttachmentBytes = 50 << 20

	defaultDownloadTimeout = 2 * time.Minute
	defaultWatchInterval   = time.Minute
)

// MattermostOptions configures a Mattermost sender.
type MattermostOptions struct {
	ServerURL string
	Token     string
	// TeamID limits Destinations to one team. Empty lists every team.
	TeamID             string
	MaxAttachmentBytes int64
	// HTTPClient downloads attachment media. Nil uses a client with a
	// two minute timeout.
	HTTPClient *http.Client
}

// Mattermost sends through the Mattermost REST API with a bot or personal
// access token.
type Mattermost struct {
	client   *model.Client4
	conn     *Conn
	teamID   string
	maxBytes int64
	media    *http.Client
	log      zerolog.Logger

	newBackOff func() backoff.BackOff

	mu     sync.RWMutex
	userID string
}

// NewMattermost creates a sender. It does not contact the server; call
// Connect before sending.
func NewMattermost(opts MattermostOptions, log zerolog.Logger) (*Mattermost, error) {
	serverURL := strings.TrimRight(strings.TrimSpace(opts.ServerURL), "/")
	if serverURL == "" {
		return nil, errors.New("mattermost server url is required")
	}
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("mattermost token is required")
	}

	maxBytes := opts.MaxAttachmentBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAttachmentBytes
	}
	media := opts.HTTPClient
	if media == nil {
		media = &http.Client{Timeout: defaultDownloadTimeout}
	}

	client := model.NewAPIv4Client(serverURL)
	client.SetToken(opts.Token)

	return &Mattermost{
		client:   client,
		conn:     NewConn(),
		teamID:   opts.TeamID,
		maxBytes: maxBytes,
		media:    media,
		log:      log,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(time.Second),
				backoff.WithMaxInterval(time.Minute),
				backoff.WithMaxElapsedTime(0),
			)
		},
	}, nil
}

// Conn returns the connection handle.
func (m *Mattermost) Conn() *Conn {
	return m.conn
}

// UserID returns the authenticated user ID, empty before Connect succeeds.
func (m *Mattermost) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userID
}

// Connect authenticates, retrying transient failures with exponential
// backoff until ctx ends. A rejected token closes the connection.
func (m *Mattermost) Connect(ctx context.Context) error {
	attempt := 0
	op := func() error {
		attempt++
		me, resp, err := m.client.GetMe(ctx, "")
		if err != nil {
			if isUnauthorized(resp, err) {
				return backoff.Permanent(fmt.Errorf("%w: %v", ErrUnauthorized, err))
			}
			m.log.Warn().Err(err).Int("attempt", attempt).Msg("mattermost not reachable, retrying")
			return err
		}

		m.mu.Lock()
		m.userID = me.Id
		m.mu.Unlock()

		m.log.Info().Str("user_id", me.Id).Str("username", me.Username).Msg("authenticated")
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(m.newBackOff(), ctx))
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			m.conn.Close(err)
		}
		return fmt.Errorf("connect to mattermost: %w", err)
	}

	m.conn.MarkOpen()
	return nil
}

// Watch re-checks the session every interval and closes the connection when
// the token is revoked. It returns nil when ctx ends.
func (m *Mattermost) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.conn.Done():
			return m.conn.Err()
		case <-ticker.C:
			_, resp, err := m.client.GetMe(ctx, "")
			if err == nil {
				continue
			}
			if m.observe(resp, err) {
				return m.conn.Err()
			}
			m.log.Warn().Err(err).Msg("mattermost session check failed")
		}
	}
}

// SendText posts text to dest.
func (m *Mattermost) SendText(ctx context.Context, dest, text string) (MessageRef, error) {
	if err := m.conn.Err(); err != nil {
		return MessageRef{}, err
	}

	post, resp, err := m.client.CreatePost(ctx, &model.Post{ChannelId: dest, Message: text})
	if err != nil {
		m.observe(resp, err)
		return MessageRef{}, fmt.Errorf("create post in %s: %w", dest, err)
	}
	return MessageRef{ID: post.Id, Destination: dest}, nil
}

// SendAttachment downloads a.URL, uploads it to dest and posts it with the
// caption as a reply to quoted.
func (m *Mattermost) SendAttachment(ctx context.Context, dest string, a Attachment, quoted MessageRef) error {
	if err := m.conn.Err(); err != nil {
		return err
	}

	data, err := download(ctx, m.media, a.URL, m.maxBytes)
	if err != nil {
		return err
	}

	name := attachmentName(a)
	upload, resp, err := m.client.UploadFile(ctx, data, dest, name)
	if err != nil {
		m.observe(resp, err)
		return fmt.Errorf("upload %s to %s: %w", name, dest, err)
	}
	if upload == nil || len(upload.FileInfos) == 0 {
		return fmt.Errorf("upload %s to %s: no file info returned", name, dest)
	}

	post := &model.Post{
		ChannelId: dest,
		Message:   a.Caption,
		FileIds:   []string{upload.FileInfos[0].Id},
	}
	if quoted.ID != "" && (quoted.Destination == "" || quoted.Destination == dest) {
		post.RootId = quoted.ID
	}

	if _, resp, err := m.client.CreatePost(ctx, post); err != nil {
		m.observe(resp, err)
		return fmt.Errorf("create %s post in %s: %w", a.Kind, dest, err)
	}
	return nil
}

// Destinations lists channels of the configured team, or of every team when
// none is configured, that the authenticated user belongs to.
func (m *Mattermost) Destinations(ctx context.Context) ([]Destination, error) {
	userID := m.UserID()
	if userID == "" {
		me, resp, err := m.client.GetMe(ctx, "")
		if err != nil {
			m.observe(resp, err)
			return nil, fmt.Errorf("get current user: %w", err)
		}
		userID = me.Id
	}

	teamIDs := []string{m.teamID}
	if m.teamID == "" {
		teams, resp, err := m.client.GetTeamsForUser(ctx, userID, "")
		if err != nil {
			m.observe(resp, err)
			return nil, fmt.Errorf("get teams: %w", err)
		}
		teamIDs = teamIDs[:0]
		for _, t := range teams {
			teamIDs = append(teamIDs, t.Id)
		}
	}

	var out []Destination
	for _, teamID := range teamIDs {
		channels, resp, err := m.client.GetChannelsForTeamForUser(ctx, teamID, userID, false, "")
		if err != nil {
			m.observe(resp, err)
			return nil, fmt.Errorf("get channels for team %s: %w", teamID, err)
		}
		for _, ch := range channels {
			name := ch.DisplayName
			if name == "" {
				name = ch.Name
			}
			out = append(out, Destination{ID: ch.Id, DisplayName: name})
		}
	}
	return out, nil
}

// observe closes the connection on an authentication failure and reports
// whether it did.
func (m *Mattermost) observe(resp *model.Response, err error) bool {
	if !isUnauthorized(resp, err) {
		return false
	}
	m.log.Error().Err(err).Msg("mattermost rejected the token, closing connection")
	m.conn.Close(fmt.Errorf("%w: %v", ErrUnauthorized, err))
	return true
}

func isUnauthorized(resp *model.Response, err error) bool {
	if err == nil {
		return false
	}
	if resp != nil && resp.StatusCode == http.StatusUnauthorized {
		return true
	}
	var appErr *model.AppError
	return errors.As(err, &appErr) && appErr.StatusCode == http.StatusUnauthorized
}
