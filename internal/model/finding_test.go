package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindingSevereRequiresRemediation(t *testing.T) {
	f := Finding{Title: "Intrusion blocked", Severity: SeveritySevere, OccurrenceCount: 1}
	assert.Error(t, f.Validate())

	f.Remediation = "Review the gateway threat log and confirm the source is blocked."
	assert.NoError(t, f.Validate())
	assert.True(t, f.IsActionable())
}

func TestFindingRecurring(t *testing.T) {
	f := Finding{OccurrenceCount: 4}
	assert.False(t, f.IsRecurring())
	f.OccurrenceCount = 5
	assert.True(t, f.IsRecurring())
}

func TestFindingAbsorb(t *testing.T) {
	t0 := time.Date(2025, 1, 24, 10, 0, 0, 0, time.UTC)
	a := Finding{
		OccurrenceCount:  1,
		FirstSeen:        t0.Add(time.Minute),
		LastSeen:         t0.Add(time.Minute),
		AffectedEntities: []string{"aa:bb:cc:dd:ee:01"},
		SourceEventIDs:   []string{"e1"},
	}
	b := Finding{
		OccurrenceCount:  2,
		FirstSeen:        t0,
		LastSeen:         t0.Add(5 * time.Minute),
		AffectedEntities: []string{"aa:bb:cc:dd:ee:01", "aa:bb:cc:dd:ee:02"},
		SourceEventIDs:   []string{"e2", "e3"},
	}
	a.Absorb(&b)
	assert.Equal(t, 3, a.OccurrenceCount)
	assert.True(t, a.FirstSeen.Equal(t0))
	assert.True(t, a.LastSeen.Equal(t0.Add(5*time.Minute)))
	assert.Len(t, a.AffectedEntities, 2)
	assert.Equal(t, []string{"e1", "e2", "e3"}, a.SourceEventIDs)
}

func TestReportCountsDerived(t *testing.T) {
	r := Report{Findings: []Finding{
		{Severity: SeveritySevere}, {Severity: SeverityMedium},
		{Severity: SeverityLow}, {Severity: SeverityLow},
	}}
	assert.Equal(t, 1, r.SevereCount())
	assert.Equal(t, 1, r.MediumCount())
	assert.Equal(t, 2, r.LowCount())
}

func TestParseIPSEventCybersecure(t *testing.T) {
	raw := map[string]interface{}{
		"inner_alert_signature_id": float64(2850001),
		"inner_alert_signature":    "ET EXPLOIT suspicious payload",
		"inner_alert_category":     "exploit",
		"inner_alert_action":       "drop",
		"src_ip":                   "45.33.32.156",
		"dest_ip":                  "192.168.1.10",
		"proto":                    "TCP",
	}
	ev, err := ParseIPSEvent(raw)
	require.NoError(t, err)
	assert.True(t, ev.IsCybersecure)
	assert.Equal(t, IPSActionBlocked, ev.Action)
	assert.Equal(t, "45.33.32.156", ev.SrcIP)

	raw["inner_alert_signature_id"] = float64(2100001)
	raw["inner_alert_action"] = "alert"
	ev, err = ParseIPSEvent(raw)
	require.NoError(t, err)
	assert.False(t, ev.IsCybersecure)
	assert.Equal(t, IPSActionDetected, ev.Action)
}

func TestParseDeviceStats(t *testing.T) {
	raw := map[string]interface{}{
		"mac":    "24:5A:4C:11:22:33",
		"name":   "Office Switch",
		"type":   "usw",
		"uptime": float64(3600),
		"system-stats": map[string]interface{}{
			"cpu": "87.5",
			"mem": "61.2",
		},
		"general_temperature": float64(71.0),
		"adopted":             true,
		"port_table": []interface{}{
			map[string]interface{}{"poe_overload": true},
		},
	}
	ds := ParseDeviceStats(raw)
	assert.Equal(t, "24:5a:4c:11:22:33", ds.MAC)
	assert.Equal(t, time.Hour, ds.Uptime)
	assert.InDelta(t, 87.5, ds.CPUPercent, 0.01)
	assert.InDelta(t, 61.2, ds.MemoryPercent, 0.01)
	assert.True(t, ds.HasTemp)
	assert.True(t, ds.PoEOverload)
}
