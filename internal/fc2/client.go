// Package fc2 implements the FC2 live streaming API surface used by the
// recorder: the member/control-server HTTP endpoints, playlist selection,
// and the WebSocket control channel.
package fc2

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// API endpoints.
const (
	// DefaultAPIBase is the production API root.
	DefaultAPIBase = "https://live.fc2.com/api"

	memberAPIPath     = "/memberApi.php"
	controlServerPath = "/getControlServer.php"

	// LiveBaseURL is the site origin; cookies are scoped to it.
	LiveBaseURL = "https://live.fc2.com/"
)

// Client version fields sent in the control-server handshake. The odd
// client_version string is what the web player sends.
const (
	clientVersion = "2.1.0\n+[1]"
	clientType    = "pc"
	clientApp     = "browser_hls"
)

// ErrInvalidURL is returned when the channel URL cannot be parsed.
var ErrInvalidURL = errors.New("invalid channel URL: expected a https://live.fc2.com/<channel_id>/ URL")

// ParseChannelURL extracts the channel ID from a live.fc2.com URL.
func ParseChannelURL(raw string) (string, error) {
	raw = strings.Replace(raw, "http:", "https:", 1)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Host != "live.fc2.com" {
		return "", ErrInvalidURL
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "", ErrInvalidURL
	}
	return segments[0], nil
}

// Client talks to the FC2 live stream HTTP API for one channel. The
// metadata snapshot is cached after the first fetch; Meta is immutable
// between explicit refreshes.
type Client struct {
	hc        *http.Client
	channelID string
	apiBase   string
	log       *slog.Logger

	mu   sync.Mutex
	meta *Meta
}

// NewClient creates an API client for the given channel. The http.Client
// carries the session cookie jar.
func NewClient(hc *http.Client, channelID string, logger *slog.Logger) *Client {
	return &Client{
		hc:        hc,
		channelID: channelID,
		apiBase:   DefaultAPIBase,
		log:       logger,
	}
}

// ChannelID returns the channel this client was built for.
func (c *Client) ChannelID() string {
	return c.channelID
}

// memberAPIResponse is the wrapper object around the metadata.
type memberAPIResponse struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// GetMeta returns the channel metadata, fetching it on first use or when
// refresh is set. The server labels the JSON body as text/javascript; the
// body is decoded regardless of content type.
func (c *Client) GetMeta(ctx context.Context, refresh bool) (*Meta, error) {
	c.mu.Lock()
	if c.meta != nil && !refresh {
		meta := c.meta
		c.mu.Unlock()
		return meta, nil
	}
	c.mu.Unlock()

	form := url.Values{
		"channel":  {"1"},
		"profile":  {"1"},
		"user":     {"1"},
		"streamid": {c.channelID},
	}
	body, err := c.postForm(ctx, c.apiBase+memberAPIPath, form)
	if err != nil {
		return nil, fmt.Errorf("fetching channel metadata: %w", err)
	}

	var wrapper memberAPIResponse
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("decoding member API response: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(wrapper.Data, &meta); err != nil {
		return nil, fmt.Errorf("decoding channel metadata: %w", err)
	}
	meta.Raw = wrapper.Data

	c.log.Log(ctx, slog.LevelDebug,
		"fetched channel metadata",
		slog.String("channel_id", meta.ChannelData.ChannelID),
		slog.String("title", meta.ChannelData.Title),
		slog.Int("is_publish", meta.ChannelData.IsPublish),
	)

	c.mu.Lock()
	c.meta = &meta
	c.mu.Unlock()
	return &meta, nil
}

// IsOnline reports whether the channel is currently broadcasting.
func (c *Client) IsOnline(ctx context.Context, refresh bool) (bool, error) {
	meta, err := c.GetMeta(ctx, refresh)
	if err != nil {
		return false, err
	}
	return meta.IsOnline(), nil
}

// WaitForOnline polls the online status once per interval until the channel
// goes live or the context is cancelled. tick, if non-nil, is invoked once
// per second between polls to drive interactive progress output.
func (c *Client) WaitForOnline(ctx context.Context, interval time.Duration, tick func()) error {
	for {
		online, err := c.IsOnline(ctx, true)
		if err != nil {
			return err
		}
		if online {
			return nil
		}

		remaining := interval
		for remaining > 0 {
			step := time.Second
			if remaining < step {
				step = remaining
			}
			if tick != nil {
				tick()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(step):
			}
			remaining -= step
		}
	}
}

// controlServerResponse is the getControlServer.php payload.
type controlServerResponse struct {
	URL          string `json:"url"`
	ControlToken string `json:"control_token"`
}

// GetWebSocketURL requests the control-server URL for the session and
// returns it with the control token appended. Fails with ErrNotOnline when
// the cached snapshot says the channel is offline.
func (c *Client) GetWebSocketURL(ctx context.Context) (string, error) {
	meta, err := c.GetMeta(ctx, false)
	if err != nil {
		return "", err
	}
	if !meta.IsOnline() {
		return "", ErrNotOnline
	}

	form := url.Values{
		"channel_id":      {c.channelID},
		"mode":            {"play"},
		"orz":             {c.cookieValue("l_ortkn")},
		"channel_version": {meta.ChannelData.Version},
		"client_version":  {clientVersion},
		"client_type":     {clientType},
		"client_app":      {clientApp},
		"ipv6":            {""},
	}
	body, err := c.postForm(ctx, c.apiBase+controlServerPath, form)
	if err != nil {
		return "", fmt.Errorf("fetching control server: %w", err)
	}

	var info controlServerResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return "", fmt.Errorf("decoding control server response: %w", err)
	}
	if info.URL == "" || info.ControlToken == "" {
		return "", fmt.Errorf("control server response missing url or control_token")
	}

	if fc2ID, err := tokenFC2ID(info.ControlToken); err != nil {
		c.log.Log(ctx, slog.LevelDebug, "could not decode control token", slog.String("error", err.Error()))
	} else if fc2ID != "" {
		c.log.Log(ctx, slog.LevelDebug, "logged in", slog.String("fc2_id", fc2ID))
	} else {
		c.log.Log(ctx, slog.LevelDebug, "using anonymous account")
	}

	return fmt.Sprintf("%s?control_token=%s", info.URL, info.ControlToken), nil
}

// tokenFC2ID extracts the fc2_id claim from the middle segment of the
// control token. The segment is unpadded base64; padding is restored
// before decoding.
func tokenFC2ID(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return "", fmt.Errorf("control token has no payload segment")
	}
	seg := parts[1]
	if n := len(seg) % 4; n != 0 {
		seg += strings.Repeat("=", 4-n)
	}
	payload, err := base64.URLEncoding.DecodeString(seg)
	if err != nil {
		// Some tokens use the standard alphabet.
		payload, err = base64.StdEncoding.DecodeString(seg)
		if err != nil {
			return "", fmt.Errorf("decoding control token payload: %w", err)
		}
	}
	var claims struct {
		FC2ID string `json:"fc2_id"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("parsing control token payload: %w", err)
	}
	return claims.FC2ID, nil
}

// cookieValue returns the named cookie from the session jar, or "".
func (c *Client) cookieValue(name string) string {
	if c.hc.Jar == nil {
		return ""
	}
	u, err := url.Parse(LiveBaseURL)
	if err != nil {
		return ""
	}
	for _, ck := range c.hc.Jar.Cookies(u) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s returned status %d", endpoint, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
