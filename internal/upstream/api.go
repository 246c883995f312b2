package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	apiSourceName      = "api"
	apiDefaultTimeout  = 30 * time.Second
	apiMaxResponseSize = 16 << 20
	apiAccept          = "application/json, text/plain, */*"
)

// APIFetcher reads the first page of an account's posts from the content API.
type APIFetcher struct {
	endpoint string
	token    string
	userID   string
	client   *http.Client
	log      zerolog.Logger
}

type apiRequest struct {
	Page   int    `json:"page"`
	UserID string `json:"userId"`
}

type apiResponse struct {
	Post []Post `json:"post"`
}

// NewAPI creates a content API fetcher. endpoint, token and userID are required.
func NewAPI(endpoint, token, userID string, timeout time.Duration, log zerolog.Logger) (*APIFetcher, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("api: endpoint is required")
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("api: token is required")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("api: user id is required")
	}
	if timeout <= 0 {
		timeout = apiDefaultTimeout
	}

	return &APIFetcher{
		endpoint: endpoint,
		token:    token,
		userID:   userID,
		client:   &http.Client{Timeout: timeout},
		log:      log.With().Str("source", apiSourceName).Logger(),
	}, nil
}

// Name returns "api".
func (a *APIFetcher) Name() string {
	return apiSourceName
}

// Fetch requests page 1 of the account's posts. A non-2xx response is logged
// and yields an empty result; only transport and decode failures are errors.
func (a *APIFetcher) Fetch(ctx context.Context) ([]Post, error) {
	body, err := json.Marshal(apiRequest{Page: 1, UserID: a.userID})
	if err != nil {
		return nil, fmt.Errorf("api: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Accept", apiAccept)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, apiMaxResponseSize))
		a.log.Warn().Int("status", resp.StatusCode).Msg("Upstream API returned non-success status")
		return []Post{}, nil
	}

	var out apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, apiMaxResponseSize)).Decode(&out); err != nil {
		return nil, fmt.Errorf("api: decode response: %w", err)
	}
	if out.Post == nil {
		return []Post{}, nil
	}

	posts := out.Post[:0]
	for _, p := range out.Post {
		if strings.TrimSpace(p.ID) == "" {
			a.log.Warn().Msg("Skipping upstream post without id")
			continue
		}
		posts = append(posts, p)
	}
	return posts, nil
}
