package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifi-insight/reporter/internal/model"
)

func TestParseSyslogLine(t *testing.T) {
	now := time.Date(2026, 1, 25, 12, 0, 0, 0, time.UTC)

	e, ok := ParseSyslogLine("Jan 24 10:30:00 UDM-Pro hostapd[1234]: wlan0: STA aa:bb:cc:dd:ee:01 disconnected", now)
	require.True(t, ok)
	assert.Equal(t, "SYSLOG_WIFI", e.EventType)
	assert.Equal(t, "UDM-Pro", e.DeviceName)
	assert.Equal(t, time.Date(2026, 1, 24, 10, 30, 0, 0, time.UTC), e.Timestamp)
	assert.Contains(t, e.Message, "disconnected")
	assert.Equal(t, "hostapd", e.Raw["program"])
	assert.Equal(t, "1234", e.Raw["pid"])
}

func TestParseSyslogLineWithoutPid(t *testing.T) {
	now := time.Date(2026, 1, 25, 12, 0, 0, 0, time.UTC)
	e, ok := ParseSyslogLine("Jan 25 08:00:01 gateway kernel: DFS radar detected on channel 100", now)
	require.True(t, ok)
	assert.Equal(t, "SYSLOG_RADAR", e.EventType)
	assert.Equal(t, "", e.Raw["pid"])
}

func TestParseSyslogLineYearRollover(t *testing.T) {
	// A December line read in January belongs to last year.
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	e, ok := ParseSyslogLine("Dec 31 23:59:00 gw dnsmasq[9]: DHCPACK", now)
	require.True(t, ok)
	assert.Equal(t, 2025, e.Timestamp.Year())
}

func TestParseSyslogLineUnparseablePreserved(t *testing.T) {
	now := time.Now().UTC()
	e, ok := ParseSyslogLine("completely freeform noise line", now)
	require.True(t, ok)
	assert.Equal(t, model.UnknownEventType, e.EventType)
	assert.Equal(t, "completely freeform noise line", e.Raw["text"])
	assert.False(t, e.Timestamp.IsZero())
}

func TestParseSyslogLineBlankSkipped(t *testing.T) {
	_, ok := ParseSyslogLine("   ", time.Now())
	assert.False(t, ok)
}
