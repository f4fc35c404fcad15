package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCloudflareConfiguredOnlyWithBothFields(t *testing.T) {
	logger := zaptest.NewLogger(t)
	assert.False(t, NewCloudflare(CloudflareConfig{}, logger).IsConfigured())
	assert.False(t, NewCloudflare(CloudflareConfig{APIToken: "tok"}, logger).IsConfigured())
	assert.True(t, NewCloudflare(CloudflareConfig{APIToken: "tok", ZoneID: "z1"}, logger).IsConfigured())

	warning, err := NewCloudflare(CloudflareConfig{APIToken: "tok"}, logger).ValidateConfig()
	require.NoError(t, err)
	assert.Contains(t, warning, "zone_id")
}

func TestCloudflareFetch(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/zones/z1/analytics/dashboard":
			w.Write([]byte(`{
				"success": true,
				"errors": [],
				"result": {"totals": {
					"requests": {"all": 12000, "cached": 9000},
					"threats": {"all": 42},
					"bandwidth": {"all": 104857600},
					"uniques": {"all": 310}
				}}
			}`))
		case "/zones/z1/security/events":
			w.Write([]byte(`{
				"success": true,
				"result": [
					{"action": "block", "source": "waf"},
					{"action": "block", "source": "waf"},
					{"action": "challenge", "source": "firewallrules"}
				]
			}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cf := NewCloudflare(CloudflareConfig{APIToken: "tok", ZoneID: "z1"}, zaptest.NewLogger(t))
	cf.baseURL = srv.URL

	section, err := cf.Fetch(context.Background(), testWindow())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "42", section.Data["threats_stopped"])
	assert.Equal(t, "12000", section.Data["requests"])
	assert.Equal(t, "3", section.Data["security_events"])
	require.Len(t, section.Lines, 3)
	assert.Contains(t, section.Lines[1], "42 threats")
	assert.Contains(t, section.Lines[2], "block: 2")
}

func TestCloudflareFetchEventsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/zones/z1/analytics/dashboard" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"success": true, "result": {"totals": {
			"requests": {"all": 5}, "threats": {"all": 0},
			"bandwidth": {"all": 1}, "uniques": {"all": 2}}}}`))
	}))
	defer srv.Close()

	cf := NewCloudflare(CloudflareConfig{APIToken: "tok", ZoneID: "z1"}, zaptest.NewLogger(t))
	cf.baseURL = srv.URL

	section, err := cf.Fetch(context.Background(), testWindow())
	require.NoError(t, err, "analytics alone still produce a section")
	assert.Len(t, section.Lines, 2)
	assert.NotContains(t, section.Data, "security_events")
}

func TestCloudflareFetchAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "errors": [{"code": 9109, "message": "Invalid access token"}]}`))
	}))
	defer srv.Close()

	cf := NewCloudflare(CloudflareConfig{APIToken: "bad", ZoneID: "z1"}, zaptest.NewLogger(t))
	cf.baseURL = srv.URL

	_, err := cf.Fetch(context.Background(), testWindow())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid access token")
}
