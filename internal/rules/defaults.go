package rules

import (
	"regexp"
	"strconv"

	"github.com/unifi-insight/reporter/internal/model"
)

// DefaultRegistry returns the built-in rule set covering the event
// keys the controller families emit. Order matters only within an
// event type: the first pattern rule that matches selects templates,
// but every matching rule still emits.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for i := range defaultRules {
		r.Register(&defaultRules[i])
	}
	return r
}

var defaultRules = []Rule{
	// Wireless client lifecycle.
	{
		Name:        "client-roamed",
		EventTypes:  []string{"EVT_WU_Roam"},
		Category:    model.CategoryWireless,
		Severity:    model.SeverityLow,
		Title:       "Client roamed from {ap_from} to {ap_to}",
		Description: "Client {client} moved between access points ({ap_from} → {ap_to}).",
	},
	{
		Name:        "client-changed-band",
		EventTypes:  []string{"EVT_WU_RoamRadio"},
		Category:    model.CategoryWireless,
		Severity:    model.SeverityLow,
		Title:       "Client switched band on {device}",
		Description: "Client {client} moved from {radio_from_band} to {radio_to_band} on {device}.",
	},
	{
		Name:        "client-connected",
		EventTypes:  []string{"EVT_WU_Connected"},
		Category:    model.CategoryConnectivity,
		Severity:    model.SeverityLow,
		Title:       "Client connected to {device}",
		Description: "Client {client} associated with {device} on {radio_band} (signal: {signal_quality}).",
	},
	{
		Name:        "client-disconnected",
		EventTypes:  []string{"EVT_WU_Disconnected"},
		Category:    model.CategoryConnectivity,
		Severity:    model.SeverityLow,
		Title:       "Client disconnected from {device}",
		Description: "Client {client} left {device} after {duration}s.",
	},

	// Radio environment. The radar rule is the specialised pattern rule
	// sharing the interference key space with the generic one.
	{
		Name:        "dfs-radar",
		EventTypes:  []string{"EVT_AP_ChannelChanged", "SYSLOG_RADAR"},
		Pattern:     regexp.MustCompile(`(?i)radar.*(detected|hit)`),
		Category:    model.CategoryWireless,
		Severity:    model.SeverityMedium,
		Title:       "DFS radar event forced a channel change on {device}",
		Description: "{device} vacated its channel after a radar detection: {message}",
	},
	{
		Name:        "channel-interference",
		EventTypes:  []string{"EVT_AP_ChannelChanged"},
		Category:    model.CategoryWireless,
		Severity:    model.SeverityLow,
		Title:       "Access point {device} changed channel",
		Description: "{device} changed channel, usually in response to interference: {message}",
	},

	// Device lifecycle.
	{
		Name:        "ap-lost-contact",
		EventTypes:  []string{"EVT_AP_Lost_Contact", "EVT_SW_Lost_Contact", "EVT_GW_Lost_Contact"},
		Category:    model.CategoryConnectivity,
		Severity:    model.SeveritySevere,
		Title:       "Device {device} lost contact with the controller",
		Description: "{device} stopped responding to the controller and may be offline.",
		Remediation: "Check power and uplink cabling for {device}; if the device is up, verify it can reach the controller on the inform port.",
	},
	{
		Name:        "device-restarted",
		EventTypes:  []string{"EVT_AP_Restarted", "EVT_SW_Restarted", "EVT_GW_Restarted", "EVT_AP_RestartedUnknown"},
		Category:    model.CategorySystem,
		Severity:    model.SeverityMedium,
		Title:       "Device {device} restarted",
		Description: "{device} restarted: {message}",
	},
	{
		Name:        "device-upgraded",
		EventTypes:  []string{"EVT_AP_Upgraded", "EVT_SW_Upgraded", "EVT_GW_Upgraded"},
		Category:    model.CategorySystem,
		Severity:    model.SeverityLow,
		Title:       "Device {device} firmware upgraded",
		Description: "{device} completed a firmware upgrade: {message}",
	},
	{
		Name:        "device-adopted",
		EventTypes:  []string{"EVT_AP_Adopted", "EVT_SW_Adopted", "EVT_GW_Adopted"},
		Category:    model.CategorySystem,
		Severity:    model.SeverityLow,
		Title:       "Device {device} adopted",
		Description: "{device} was adopted into site management.",
	},

	// WAN / gateway.
	{
		Name:        "wan-transition",
		EventTypes:  []string{"EVT_GW_WANTransition"},
		Category:    model.CategoryConnectivity,
		Severity:    model.SeveritySevere,
		Title:       "WAN connectivity transition on {device}",
		Description: "The gateway reported a WAN state change: {message}",
		Remediation: "Verify the ISP link and modem; check the gateway's WAN interface for errors or flapping.",
	},

	// Security.
	{
		Name:        "ips-alert",
		EventTypes:  []string{"EVT_IPS_IpsAlert", "SYSLOG_IPS"},
		Category:    model.CategorySecurity,
		Severity:    model.SeveritySevere,
		Title:       "Intrusion attempt {inner_alert_action}: {inner_alert_signature}",
		Description: "Suricata matched signature {inner_alert_signature_id} ({inner_alert_category}) from {src_ip} to {dest_ip} over {proto}.",
		Remediation: "Review the gateway threat log for {src_ip}; confirm the signature action and consider blocking the source at the firewall.",
		Annotate:    annotateIPS,
	},
	{
		Name:        "wireless-intrusion",
		EventTypes:  []string{"EVT_AP_DetectRogueAP"},
		Category:    model.CategorySecurity,
		Severity:    model.SeverityMedium,
		Title:       "Rogue access point detected by {device}",
		Description: "{device} detected a rogue AP: {message}",
	},

	// Power.
	{
		Name:        "poe-overload",
		EventTypes:  []string{"EVT_SW_PoeOverload", "EVT_SW_PoeDisconnect"},
		Category:    model.CategorySystem,
		Severity:    model.SeveritySevere,
		Title:       "PoE problem on {device}",
		Description: "{device} reported a PoE event: {message}",
		Remediation: "Check the switch PoE budget and the powered device on the affected port; move high-draw devices to a different PSE if the budget is exhausted.",
	},
}

// annotateIPS copies the IPS view onto the finding so the report and
// the threat aggregator agree on the cybersecure flag.
func annotateIPS(e *model.LogEntry, f *model.Finding) {
	ev, err := model.ParseIPSEvent(e.Raw)
	if err != nil {
		return
	}
	f.Metadata["signature_id"] = strconv.Itoa(ev.SignatureID)
	f.Metadata["action"] = string(ev.Action)
	f.Metadata["is_cybersecure"] = strconv.FormatBool(ev.IsCybersecure)
	if ev.SrcIP != "" {
		f.AffectedEntities = append(f.AffectedEntities, ev.SrcIP)
	}
}
