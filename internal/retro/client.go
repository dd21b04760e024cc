package retro

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/retro-leaderboard/internal/config"
	"github.com/retro-leaderboard/internal/domain"
)

// Endpoints of the remote achievement API
const (
	EndpointGetGame                      = "API_GetGame.php"
	EndpointGetAchievementsEarnedBetween = "API_GetAchievementsEarnedBetween.php"
	EndpointGetUserProgress              = "API_GetUserProgress.php"
)

// Client calls the remote achievement API
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      domain.Credentials
	window     int64
	pageLimit  int
	now        func() time.Time
	logger     *slog.Logger
}

// NewClient creates a client without credentials; see WithCredentials
func NewClient(cfg *config.RetroConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		creds:      domain.Credentials{Username: cfg.Username, APIKey: cfg.APIKey},
		window:     int64(cfg.Window / time.Second),
		pageLimit:  cfg.PageLimit,
		now:        time.Now,
		logger:     logger,
	}
}

// WithCredentials returns a copy of the client authenticating as creds
func (c *Client) WithCredentials(creds domain.Credentials) *Client {
	cp := *c
	cp.creds = creds
	return &cp
}

// makeRequest performs an authenticated GET and decodes the JSON body into dst
func (c *Client) makeRequest(ctx context.Context, endpoint string, params url.Values, dst any) error {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("z", c.creds.Username)
	q.Set("y", c.creds.APIKey)

	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &domain.RemoteError{Endpoint: endpoint, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.RemoteError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &domain.RemoteError{Endpoint: endpoint, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.RemoteError{Endpoint: endpoint, Err: fmt.Errorf("reading body: %w", err)}
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return &domain.RemoteError{Endpoint: endpoint, Err: fmt.Errorf("decoding body: %w", err)}
	}
	return nil
}

// GetGame fetches display metadata for a game
func (c *Client) GetGame(ctx context.Context, gameID int64) (*GameMetadata, error) {
	params := url.Values{"i": {strconv.FormatInt(gameID, 10)}}

	var raw record
	if err := c.makeRequest(ctx, EndpointGetGame, params, &raw); err != nil {
		return nil, err
	}

	title, ok := raw.str("Title").Get()
	if !ok {
		return nil, &domain.RemoteError{Endpoint: EndpointGetGame, Err: errors.New("missing Title")}
	}
	return &GameMetadata{
		ID:          gameID,
		Title:       title,
		ImageIcon:   raw.str("ImageIcon").Or(""),
		GameIcon:    raw.str("GameIcon").Or(""),
		ImageTitle:  raw.str("ImageTitle").Or(""),
		ImageIngame: raw.str("ImageIngame").Or(""),
		ImageBoxArt: raw.str("ImageBoxArt").Or(""),
	}, nil
}

// GetUserProgress fetches progress for all gameIDs in a single call
func (c *Client) GetUserProgress(ctx context.Context, user string, gameIDs []int64) (map[int64]UserProgress, error) {
	ids := make([]string, len(gameIDs))
	for i, id := range gameIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	params := url.Values{
		"u": {user},
		"i": {strings.Join(ids, ",")},
	}

	var raw json.RawMessage
	if err := c.makeRequest(ctx, EndpointGetUserProgress, params, &raw); err != nil {
		return nil, err
	}

	progress := make(map[int64]UserProgress, len(gameIDs))
	// an empty result comes back as [] rather than {}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		return progress, nil
	}

	var byGame map[string]record
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&byGame); err != nil {
		return nil, &domain.RemoteError{Endpoint: EndpointGetUserProgress, Err: fmt.Errorf("decoding progress: %w", err)}
	}

	for key, value := range byGame {
		gameID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, &domain.RemoteError{Endpoint: EndpointGetUserProgress, Err: fmt.Errorf("game id %q: %w", key, err)}
		}
		p, err := parseUserProgress(gameID, value)
		if err != nil {
			return nil, &domain.RemoteError{Endpoint: EndpointGetUserProgress, Err: err}
		}
		progress[gameID] = p
	}
	return progress, nil
}

// GetAchievementsEarnedBetween fetches every achievement a user earned in [from, to].
//
// The API bounds each call to a time window and to pageLimit records, so the range
// is walked in windows. A full page may be truncated, so the next window starts one
// second after the newest record returned instead of after the window end.
// Any failed call aborts the whole fetch.
func (c *Client) GetAchievementsEarnedBetween(ctx context.Context, user string, from, to int64) (*AchievementSet, error) {
	set := NewAchievementSet()

	if now := c.now().Unix(); now < to {
		to = now
	}

	calls := 0
	start := from
	for start <= to {
		end := start + c.window
		params := url.Values{
			"u": {user},
			"f": {strconv.FormatInt(start, 10)},
			"t": {strconv.FormatInt(end, 10)},
		}

		var raw []record
		if err := c.makeRequest(ctx, EndpointGetAchievementsEarnedBetween, params, &raw); err != nil {
			return nil, err
		}
		calls++

		chunk := make([]Achievement, 0, len(raw))
		for i, r := range raw {
			a, err := parseAchievement(r)
			if err != nil {
				return nil, &domain.RemoteError{
					Endpoint: EndpointGetAchievementsEarnedBetween,
					Err:      fmt.Errorf("parsing achievement %d: %w", i, err),
				}
			}
			chunk = append(chunk, a)
		}
		set.Append(chunk...)

		if len(raw) >= c.pageLimit {
			maxDate, ok := latestDate(chunk)
			if !ok {
				return nil, &domain.RemoteError{
					Endpoint: EndpointGetAchievementsEarnedBetween,
					Err:      errors.New("full page without dates"),
				}
			}
			next := maxDate.Unix() + 1
			if next <= start {
				next = start + 1
			}
			start = next
		} else {
			start = end + 1
		}
	}

	c.logger.Debug("fetched achievements",
		"user", user,
		"from", from,
		"to", to,
		"calls", calls,
		"achievements", set.Len(),
	)
	return set, nil
}

func latestDate(chunk []Achievement) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, a := range chunk {
		d, ok := a.Date.Get()
		if !ok {
			continue
		}
		if !found || d.After(latest) {
			latest = d
			found = true
		}
	}
	return latest, found
}
