package model

import (
	"strconv"
	"time"
)

// DeviceStats is the health view of one adopted device, read from the
// controller's device endpoint rather than from the event stream.
type DeviceStats struct {
	MAC           string        `json:"mac"`
	Name          string        `json:"name"`
	Model         string        `json:"model"`
	Type          string        `json:"type"` // uap | usw | ugw
	Uptime        time.Duration `json:"uptime_ns"`
	CPUPercent    float64       `json:"cpu_percent"`
	MemoryPercent float64       `json:"memory_percent"`
	TemperatureC  float64       `json:"temperature_c"`
	HasTemp       bool          `json:"has_temp"`
	PoEOverload   bool          `json:"poe_overload"`
	Adopted       bool          `json:"adopted"`
	State         int           `json:"state"`
}

// ParseDeviceStats extracts the health view from a raw device record.
// Absent fields zero out; there is no failure mode because a device
// record with nothing usable simply produces no health findings.
func ParseDeviceStats(raw map[string]interface{}) DeviceStats {
	ds := DeviceStats{
		MAC:   NormalizeMAC(stringField(raw, "mac")),
		Name:  stringField(raw, "name"),
		Model: stringField(raw, "model"),
		Type:  stringField(raw, "type"),
	}
	if v, ok := asInt(raw["uptime"]); ok {
		ds.Uptime = time.Duration(v) * time.Second
	}
	if v, ok := asFloat(raw["cpu"]); ok {
		ds.CPUPercent = v
	} else if sys, ok := raw["system-stats"].(map[string]interface{}); ok {
		if v, ok := asFloat(sys["cpu"]); ok {
			ds.CPUPercent = v
		}
		if v, ok := asFloat(sys["mem"]); ok {
			ds.MemoryPercent = v
		}
	}
	if v, ok := asFloat(raw["mem"]); ok {
		ds.MemoryPercent = v
	}
	if v, ok := asFloat(raw["general_temperature"]); ok {
		ds.TemperatureC = v
		ds.HasTemp = true
	}
	if v, ok := raw["overheating"].(bool); ok && v {
		ds.HasTemp = true
	}
	if v, ok := raw["adopted"].(bool); ok {
		ds.Adopted = v
	}
	if v, ok := asInt(raw["state"]); ok {
		ds.State = v
	}
	if ports, ok := raw["port_table"].([]interface{}); ok {
		for _, p := range ports {
			pm, ok := p.(map[string]interface{})
			if !ok {
				continue
			}
			if v, ok := pm["poe_overload"].(bool); ok && v {
				ds.PoEOverload = true
				break
			}
		}
	}
	return ds
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		// Some firmware reports system-stats numbers as strings.
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
