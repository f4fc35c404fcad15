// Package unifi speaks the controller's private REST API: session
// login with CSRF, the event/alarm/device endpoints, and the
// authenticated websocket URL for the push stream.
//
// Two endpoint families exist. Gateway-embedded controllers (UniFi OS)
// prefix the network application under /proxy/network and log in at
// /api/auth/login; self-hosted controllers use bare paths and
// /api/login. The family is selected by probing once at connect time.
package unifi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MaxPageSize is the provider's per-request event cap. Requests never
// ask for more; the server silently truncates beyond it.
const MaxPageSize = 3000

const (
	maxAttempts    = 3
	backoffBase    = 500 * time.Millisecond
	defaultTimeout = 30 * time.Second
)

// ErrAuth marks credential and session failures that survived one
// re-authentication attempt.
var ErrAuth = errors.New("unifi: authentication failed")

// Config carries connection settings for one controller.
type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	Site      string
	VerifyTLS bool
	Timeout   time.Duration
}

// Envelope is the controller's standard response wrapper.
type Envelope struct {
	Meta struct {
		RC    string `json:"rc"`
		Count *int   `json:"count,omitempty"`
		Msg   string `json:"msg,omitempty"`
	} `json:"meta"`
	Data []map[string]interface{} `json:"data"`
}

// Client is a single persistent controller session. Safe for
// concurrent use; re-authentication serializes through authMu.
type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client
	logger  *zap.Logger

	authMu    sync.Mutex
	csrfToken string
	unifiOS   bool
	probed    bool
}

// NewClient builds an unauthenticated client. Call Connect before use.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("unifi: host is required")
	}
	if cfg.Site == "" {
		cfg.Site = "default"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	port := cfg.Port
	if port == 0 {
		port = 443
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("unifi: cookie jar: %w", err)
	}

	// A host given with an explicit scheme (including http:// for test
	// servers) is used verbatim.
	var base string
	if strings.Contains(cfg.Host, "://") {
		base = strings.TrimRight(cfg.Host, "/")
	} else if port != 443 {
		base = fmt.Sprintf("https://%s:%d", cfg.Host, port)
	} else {
		base = fmt.Sprintf("https://%s", cfg.Host)
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifyTLS}, //nolint:gosec
	}

	return &Client{
		cfg:     cfg,
		baseURL: base,
		logger:  logger.Named("unifi"),
		http: &http.Client{
			Jar:       jar,
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Connect probes the endpoint family and logs in.
func (c *Client) Connect(ctx context.Context) error {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	if !c.probed {
		c.probeLocked(ctx)
		c.probed = true
	}
	return c.loginLocked(ctx)
}

// probeLocked decides gateway-embedded vs self-hosted. UniFi OS
// answers on /proxy/network/status; self-hosted controllers 404 it.
func (c *Client) probeLocked(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/proxy/network/status", nil)
	if err != nil {
		return
	}
	resp, err := c.http.Do(req)
	if err != nil {
		// Unreachable now; assume self-hosted and let login report the
		// real connectivity error.
		c.logger.Debug("endpoint probe failed", zap.Error(err))
		return
	}
	defer drain(resp)
	c.unifiOS = resp.StatusCode < 400
	c.logger.Info("controller endpoint family selected",
		zap.Bool("unifi_os", c.unifiOS), zap.String("host", c.cfg.Host))
}

// ControllerType names the detected endpoint family for the report.
func (c *Client) ControllerType() string {
	if c.unifiOS {
		return "UniFi OS"
	}
	return "Self-hosted"
}

func (c *Client) loginPath() string {
	if c.unifiOS {
		return "/api/auth/login"
	}
	return "/api/login"
}

func (c *Client) apiPrefix() string {
	if c.unifiOS {
		return "/proxy/network"
	}
	return ""
}

func (c *Client) loginLocked(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.loginPath(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("unifi: build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("unifi: login: %w", err)
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusOK:
		if token := resp.Header.Get("X-CSRF-Token"); token != "" {
			c.csrfToken = token
		}
		c.logger.Info("authenticated to controller", zap.String("site", c.cfg.Site))
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
	default:
		return fmt.Errorf("unifi: login: unexpected status %d", resp.StatusCode)
	}
}

// do executes an API request with bounded retries. 401 triggers one
// re-authentication; transient failures (network error, 5xx) back off
// with jitter.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}) (*Envelope, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("unifi: encode request: %w", err)
		}
	}

	reauthed := false
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		env, status, err := c.doOnce(ctx, method, path, body)
		switch {
		case err == nil && status == http.StatusOK:
			return env, nil
		case status == http.StatusUnauthorized && !reauthed:
			reauthed = true
			c.logger.Warn("session expired, re-authenticating")
			c.authMu.Lock()
			lerr := c.loginLocked(ctx)
			c.authMu.Unlock()
			if lerr != nil {
				return nil, lerr
			}
			continue
		case status == http.StatusUnauthorized:
			return nil, fmt.Errorf("%w: still unauthorized after re-login", ErrAuth)
		case status >= 400 && status < 500:
			return nil, fmt.Errorf("unifi: %s %s: status %d", method, path, status)
		default:
			if err == nil {
				err = fmt.Errorf("status %d", status)
			}
			lastErr = fmt.Errorf("unifi: %s %s: %w", method, path, err)
		}

		if attempt < maxAttempts {
			delay := backoffBase*time.Duration(1<<(attempt-1)) +
				time.Duration(rand.Int63n(int64(backoffBase)))
			c.logger.Debug("retrying request",
				zap.String("path", path), zap.Int("attempt", attempt), zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte) (*Envelope, int, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+c.apiPrefix()+path, rdr)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.csrfToken != "" {
		req.Header.Set("X-CSRF-Token", c.csrfToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode, nil
	}

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return &env, resp.StatusCode, nil
}

// Events pulls historical events for the window, capped at MaxPageSize
// per request. Truncation (server count exceeding returned rows) is
// logged with the delta; callers still get the rows that arrived.
// The API filters by "hours back from now", so within spans from start
// to the later of end and now; callers re-filter rows to the exact
// window.
func (c *Client) Events(ctx context.Context, start, end time.Time) ([]map[string]interface{}, error) {
	if now := time.Now(); now.After(end) {
		end = now
	}
	within := int(end.Sub(start).Hours()) + 1
	payload := map[string]interface{}{
		"_limit": MaxPageSize,
		"_start": 0,
		"within": within,
	}
	env, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/s/%s/stat/event", c.cfg.Site), payload)
	if err != nil {
		return nil, err
	}
	c.warnTruncation("events", env)
	return env.Data, nil
}

// Alarms pulls alarms for the window. archived=false returns only
// active alarms. Truncation detection mirrors Events; a missing
// meta.count is treated as "not truncated".
func (c *Client) Alarms(ctx context.Context, archived bool) ([]map[string]interface{}, error) {
	payload := map[string]interface{}{
		"_limit":   MaxPageSize,
		"archived": archived,
	}
	env, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/s/%s/stat/alarm", c.cfg.Site), payload)
	if err != nil {
		return nil, err
	}
	c.warnTruncation("alarms", env)
	return env.Data, nil
}

// Devices returns the raw device records for health rollups.
func (c *Client) Devices(ctx context.Context) ([]map[string]interface{}, error) {
	env, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/s/%s/stat/device", c.cfg.Site), nil)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

func (c *Client) warnTruncation(endpoint string, env *Envelope) {
	if env.Meta.Count == nil {
		return
	}
	if delta := *env.Meta.Count - len(env.Data); delta > 0 {
		c.logger.Warn("server truncated result set",
			zap.String("endpoint", endpoint),
			zap.Int("returned", len(env.Data)),
			zap.Int("server_count", *env.Meta.Count),
			zap.Int("missing", delta))
	}
}

// EventsWebsocketURL is the push-stream endpoint for the session's
// endpoint family.
func (c *Client) EventsWebsocketURL() string {
	base := strings.Replace(c.baseURL, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return fmt.Sprintf("%s%s/wss/s/%s/events", base, c.apiPrefix(), c.cfg.Site)
}

// CookieHeader serializes the session cookies for the websocket dial.
func (c *Client) CookieHeader() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	cookies := c.http.Jar.Cookies(u)
	parts := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		parts = append(parts, ck.Name+"="+ck.Value)
	}
	return strings.Join(parts, "; ")
}

// TLSConfig mirrors the session's TLS verification setting for the
// websocket dialer.
func (c *Client) TLSConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: !c.cfg.VerifyTLS} //nolint:gosec
}

// Site returns the configured (or defaulted) site name.
func (c *Client) Site() string { return c.cfg.Site }

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
