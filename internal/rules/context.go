package rules

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/unifi-insight/reporter/internal/model"
)

// bandLabels maps controller radio codes to human labels.
var bandLabels = map[string]string{
	"ng": "2.4GHz",
	"na": "5GHz",
	"6e": "6GHz",
}

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Render substitutes {name} placeholders from ctx. Missing keys render
// as the empty string; rendering never fails.
func Render(tmpl string, ctx map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		return ctx[m[1:len(m)-1]]
	})
}

// BandLabel translates a radio band code; unknown codes pass through.
func BandLabel(code string) string {
	if label, ok := bandLabels[code]; ok {
		return label
	}
	return code
}

// SignalQuality buckets an RSSI value in dBm.
func SignalQuality(rssi float64) string {
	switch {
	case rssi >= -50:
		return "Excellent"
	case rssi >= -60:
		return "Good"
	case rssi >= -70:
		return "Fair"
	case rssi >= -80:
		return "Poor"
	default:
		return "Very Poor"
	}
}

// BuildContext flattens an entry's raw payload into template variables
// and adds the derived fields the templates rely on: band labels,
// signal quality buckets, and a resolved device name.
func BuildContext(e *model.LogEntry) map[string]string {
	ctx := make(map[string]string, len(e.Raw)+8)
	for k, v := range e.Raw {
		switch t := v.(type) {
		case string:
			ctx[k] = t
		case float64:
			if t == float64(int64(t)) {
				ctx[k] = strconv.FormatInt(int64(t), 10)
			} else {
				ctx[k] = strconv.FormatFloat(t, 'f', 1, 64)
			}
		case bool:
			ctx[k] = strconv.FormatBool(t)
		}
	}

	ctx["message"] = e.Message
	ctx["event_type"] = e.EventType
	ctx["device"] = resolveDeviceName(e)
	if e.DeviceMAC != "" {
		ctx["device_mac"] = e.DeviceMAC
	}

	for _, key := range []string{"radio", "radio_from", "radio_to"} {
		if code, ok := ctx[key]; ok {
			ctx[key+"_band"] = BandLabel(code)
		}
	}
	if ctx["band"] == "" && ctx["radio_band"] != "" {
		ctx["band"] = ctx["radio_band"]
	}

	for _, key := range []string{"rssi", "signal"} {
		if raw, ok := ctx[key]; ok {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				// Controllers report RSSI either as dBm or as a positive
				// attenuation value.
				if v > 0 {
					v = -v
				}
				ctx["signal_quality"] = SignalQuality(v)
				break
			}
		}
	}

	// Client identity: controllers use "user" for the client MAC on
	// wireless events.
	if ctx["client"] == "" {
		if u := ctx["user"]; u != "" {
			ctx["client"] = model.NormalizeMAC(u)
		}
	}
	if ctx["client"] == "" && ctx["hostname"] != "" {
		ctx["client"] = ctx["hostname"]
	}

	return ctx
}

// resolveDeviceName prefers the human name over the MAC.
func resolveDeviceName(e *model.LogEntry) string {
	for _, key := range []string{"ap_name", "sw_name", "gw_name", "hostname"} {
		if v, ok := e.Raw[key].(string); ok && v != "" {
			return v
		}
	}
	if e.DeviceName != "" {
		return e.DeviceName
	}
	return e.DeviceMAC
}

// entityFor picks the identity a finding is rolled up on: the client
// when present, otherwise the device.
func entityFor(e *model.LogEntry, ctx map[string]string) string {
	if c := ctx["client"]; c != "" {
		return c
	}
	if e.DeviceMAC != "" {
		return e.DeviceMAC
	}
	if e.DeviceName != "" {
		return e.DeviceName
	}
	return fmt.Sprintf("unknown-%s", e.EventType)
}
