package model

import (
	"fmt"
	"strconv"
)

// Cybersecure signature IDs live in a reserved vendor range. Events in
// this range come from the paid threat feed and are reported with the
// is_cybersecure flag set.
const (
	CybersecureSigMin = 2800000
	CybersecureSigMax = 2899999
)

// IPSAction distinguishes threats the gateway stopped from those it
// only observed.
type IPSAction string

const (
	IPSActionBlocked  IPSAction = "blocked"
	IPSActionDetected IPSAction = "detected"
)

// IPSEvent is the intrusion-detection view of a raw alarm payload.
type IPSEvent struct {
	SignatureID   int       `json:"signature_id"`
	Signature     string    `json:"signature"`
	Category      string    `json:"category"`
	Action        IPSAction `json:"action"`
	SrcIP         string    `json:"src_ip"`
	DstIP         string    `json:"dst_ip"`
	Protocol      string    `json:"protocol"`
	IsCybersecure bool      `json:"is_cybersecure"`
}

// ParseIPSEvent extracts the IPS view from a raw entry payload.
// Returns an error when the payload carries no signature at all.
func ParseIPSEvent(raw map[string]interface{}) (IPSEvent, error) {
	ev := IPSEvent{
		Signature: firstString(raw, "inner_alert_signature", "signature"),
		Category:  firstString(raw, "inner_alert_category", "category"),
		SrcIP:     firstString(raw, "src_ip", "srcip"),
		DstIP:     firstString(raw, "dest_ip", "dst_ip", "dstip"),
		Protocol:  firstString(raw, "proto", "protocol"),
	}

	sigRaw := firstValue(raw, "inner_alert_signature_id", "signature_id", "inner_alert_gid")
	id, ok := asInt(sigRaw)
	if !ok {
		return IPSEvent{}, fmt.Errorf("ips event missing signature id")
	}
	ev.SignatureID = id
	ev.IsCybersecure = id >= CybersecureSigMin && id <= CybersecureSigMax

	action := firstString(raw, "inner_alert_action", "action")
	switch action {
	case "drop", "block", "blocked", "reject":
		ev.Action = IPSActionBlocked
	default:
		ev.Action = IPSActionDetected
	}
	return ev, nil
}

// IsIPSEntry reports whether an entry looks like an IPS/IDS alarm.
func IsIPSEntry(e *LogEntry) bool {
	if e.Raw == nil {
		return false
	}
	_, ok := asInt(firstValue(e.Raw, "inner_alert_signature_id", "signature_id", "inner_alert_gid"))
	return ok
}

func firstString(raw map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s := stringField(raw, k); s != "" {
			return s
		}
	}
	return ""
}

func firstValue(raw map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func asInt(v interface{}) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		if i, err := strconv.Atoi(t); err == nil {
			return i, true
		}
	}
	return 0, false
}
