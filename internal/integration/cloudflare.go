package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/unifi-insight/reporter/internal/model"
)

// cloudflareAPI is the production endpoint; tests override it.
const cloudflareAPI = "https://api.cloudflare.com/client/v4"

// CloudflareConfig carries the credentials. Both fields absent means
// the integration silently skips.
type CloudflareConfig struct {
	APIToken string
	ZoneID   string
}

// Cloudflare pulls zone analytics for the report window — request
// totals, threats stopped, bandwidth — plus recent security events.
// Purely additive content.
type Cloudflare struct {
	cfg     CloudflareConfig
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewCloudflare builds the integration.
func NewCloudflare(cfg CloudflareConfig, logger *zap.Logger) *Cloudflare {
	return &Cloudflare{
		cfg:     cfg,
		baseURL: cloudflareAPI,
		http:    &http.Client{Timeout: 20 * time.Second},
		logger:  logger.Named("cloudflare"),
	}
}

func (c *Cloudflare) Name() string { return "cloudflare" }

func (c *Cloudflare) IsConfigured() bool {
	return c.cfg.APIToken != "" && c.cfg.ZoneID != ""
}

func (c *Cloudflare) ValidateConfig() (string, error) {
	if c.cfg.APIToken != "" && c.cfg.ZoneID == "" {
		return "api token set but zone_id missing; integration will be skipped", nil
	}
	return "", nil
}

// cfEnvelope is Cloudflare's standard response wrapper.
type cfEnvelope struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result struct {
		Totals struct {
			Requests struct {
				All    int64 `json:"all"`
				Cached int64 `json:"cached"`
			} `json:"requests"`
			Threats struct {
				All int64 `json:"all"`
			} `json:"threats"`
			Bandwidth struct {
				All int64 `json:"all"`
			} `json:"bandwidth"`
			Uniques struct {
				All int64 `json:"all"`
			} `json:"uniques"`
		} `json:"totals"`
	} `json:"result"`
}

// cfEventsEnvelope wraps the security events listing.
type cfEventsEnvelope struct {
	Success bool `json:"success"`
	Result  []struct {
		Action string `json:"action"`
		Source string `json:"source"`
	} `json:"result"`
}

// securityEvents counts the window's security events per action.
func (c *Cloudflare) securityEvents(ctx context.Context, window model.Window) (map[string]int, error) {
	url := fmt.Sprintf("%s/zones/%s/security/events?since=%s&until=%s&per_page=50",
		c.baseURL, c.cfg.ZoneID,
		window.Start.UTC().Format(time.RFC3339),
		window.End.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var env cfEventsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("api error")
	}
	byAction := make(map[string]int)
	for _, ev := range env.Result {
		byAction[ev.Action]++
	}
	return byAction, nil
}

// Fetch pulls the dashboard analytics for the window.
func (c *Cloudflare) Fetch(ctx context.Context, window model.Window) (*model.IntegrationSection, error) {
	url := fmt.Sprintf("%s/zones/%s/analytics/dashboard?since=%s&until=%s",
		c.baseURL, c.cfg.ZoneID,
		window.Start.UTC().Format(time.RFC3339),
		window.End.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("cloudflare: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudflare: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cloudflare: status %d", resp.StatusCode)
	}

	var env cfEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("cloudflare: decode: %w", err)
	}
	if !env.Success {
		msg := "unknown error"
		if len(env.Errors) > 0 {
			msg = env.Errors[0].Message
		}
		return nil, fmt.Errorf("cloudflare: api error: %s", msg)
	}

	t := env.Result.Totals
	c.logger.Debug("zone analytics fetched",
		zap.Int64("requests", t.Requests.All), zap.Int64("threats", t.Threats.All))
	section := &model.IntegrationSection{
		Name:  c.Name(),
		Title: "Cloudflare Zone Analytics",
		Data: map[string]string{
			"requests":        fmt.Sprintf("%d", t.Requests.All),
			"cached_requests": fmt.Sprintf("%d", t.Requests.Cached),
			"threats_stopped": fmt.Sprintf("%d", t.Threats.All),
			"bandwidth_bytes": fmt.Sprintf("%d", t.Bandwidth.All),
			"unique_visitors": fmt.Sprintf("%d", t.Uniques.All),
		},
		Lines: []string{
			fmt.Sprintf("%d requests (%d cached), %d unique visitors", t.Requests.All, t.Requests.Cached, t.Uniques.All),
			fmt.Sprintf("%d threats stopped at the edge", t.Threats.All),
		},
	}

	// Security events are best effort; the analytics section stands on
	// its own if the listing is unavailable.
	byAction, err := c.securityEvents(ctx, window)
	if err != nil {
		c.logger.Warn("security events unavailable", zap.Error(err))
		return section, nil
	}
	total := 0
	actions := make([]string, 0, len(byAction))
	for action, n := range byAction {
		total += n
		actions = append(actions, action)
	}
	sort.Strings(actions)
	parts := make([]string, 0, len(actions))
	for _, action := range actions {
		parts = append(parts, fmt.Sprintf("%s: %d", action, byAction[action]))
	}
	section.Data["security_events"] = fmt.Sprintf("%d", total)
	line := fmt.Sprintf("%d security events", total)
	if len(parts) > 0 {
		line += " (" + strings.Join(parts, ", ") + ")"
	}
	section.Lines = append(section.Lines, line)
	return section, nil
}
