// Package model holds the normalized event and report types shared by
// the collectors, the rule engine, and the delivery path.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source identifies which collector produced an entry. The ordering of
// the constants is the cross-source tie-break priority: when two entries
// carry the same timestamp, PUSH sorts before REST sorts before SHELL.
type Source int

const (
	SourcePush Source = iota
	SourceREST
	SourceShell
)

func (s Source) String() string {
	switch s {
	case SourcePush:
		return "PUSH"
	case SourceREST:
		return "REST"
	case SourceShell:
		return "SHELL"
	default:
		return "UNKNOWN"
	}
}

// UnknownEventType tags entries whose source record carried no
// recognizable event key. Rules may still match them on message text.
const UnknownEventType = "UNKNOWN"

// LogEntry is one normalized event from any source.
type LogEntry struct {
	ID         string                 `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	Source     Source                 `json:"source"`
	EventType  string                 `json:"event_type"`
	DeviceMAC  string                 `json:"device_mac,omitempty"`
	DeviceName string                 `json:"device_name,omitempty"`
	Message    string                 `json:"message"`
	Raw        map[string]interface{} `json:"raw,omitempty"`
	Metadata   map[string]string      `json:"metadata,omitempty"`
}

// DedupeKey is the cross-source identity of an event. Source systems do
// not share event IDs, so identity is (timestamp, message, device MAC).
type DedupeKey struct {
	TS  int64
	Msg string
	MAC string
}

// Key returns the entry's deduplication key.
func (e *LogEntry) Key() DedupeKey {
	return DedupeKey{TS: e.Timestamp.UnixNano(), Msg: e.Message, MAC: e.DeviceMAC}
}

// NormalizeMAC lowercases a MAC address and converts dash or bare hex
// forms to colon form. Anything that does not look like a MAC is
// returned lowercased as-is.
func NormalizeMAC(mac string) string {
	m := strings.ToLower(strings.TrimSpace(mac))
	m = strings.ReplaceAll(m, "-", ":")
	if !strings.Contains(m, ":") && len(m) == 12 {
		var b strings.Builder
		for i := 0; i < 12; i += 2 {
			if i > 0 {
				b.WriteByte(':')
			}
			b.WriteString(m[i : i+2])
		}
		return b.String()
	}
	return m
}

// deviceMACKeys is the priority order for extracting a device identity
// from a raw controller record.
var deviceMACKeys = []string{"ap_mac", "sw_mac", "gw_mac", "mac"}

// deviceNameKeys is the priority order for a human device name.
var deviceNameKeys = []string{"ap_name", "sw_name", "gw_name", "hostname", "device_name"}

// ParseEntry builds a LogEntry from a raw controller record. The raw
// map is preserved verbatim for rule evaluation. A missing or invalid
// timestamp fails the parse; everything else is best-effort.
func ParseEntry(raw map[string]interface{}, source Source) (LogEntry, error) {
	tsRaw, ok := raw["time"]
	if !ok {
		tsRaw = raw["timestamp"]
	}
	if tsRaw == nil {
		tsRaw = raw["datetime"]
	}
	ts, err := ParseTimestamp(tsRaw)
	if err != nil {
		return LogEntry{}, fmt.Errorf("parse entry timestamp: %w", err)
	}

	entry := LogEntry{
		ID:        stringField(raw, "_id"),
		Timestamp: ts,
		Source:    source,
		EventType: UnknownEventType,
		Raw:       raw,
		Metadata:  map[string]string{},
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if key := stringField(raw, "key"); key != "" {
		entry.EventType = key
	}
	for _, k := range deviceMACKeys {
		if v := stringField(raw, k); v != "" {
			entry.DeviceMAC = NormalizeMAC(v)
			break
		}
	}
	for _, k := range deviceNameKeys {
		if v := stringField(raw, k); v != "" {
			entry.DeviceName = v
			break
		}
	}
	entry.Message = stringField(raw, "msg")
	if entry.Message == "" {
		entry.Message = stringField(raw, "message")
	}

	return entry, nil
}

// MarshalRaw serializes an entry including its raw payload. Used by
// tests and the debug dump; round-trips through ParseSerialized.
func (e *LogEntry) MarshalRaw() ([]byte, error) {
	return json.Marshal(e)
}

// ParseSerialized is the inverse of MarshalRaw.
func ParseSerialized(data []byte) (LogEntry, error) {
	var e LogEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return LogEntry{}, fmt.Errorf("decode entry: %w", err)
	}
	e.Timestamp = e.Timestamp.UTC()
	return e, nil
}

func stringField(raw map[string]interface{}, key string) string {
	if v, ok := raw[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
