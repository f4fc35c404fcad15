package aggregate

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/unifi-insight/reporter/internal/model"
)

// Health thresholds. Sustained load above these for the snapshot the
// run took is worth a finding; transient spikes wash out between runs.
const (
	HighCPUPercent    = 90.0
	HighMemoryPercent = 90.0
	HighTempCelsius   = 80.0
)

// DeviceHealth rolls the device snapshot taken at run time into
// findings. Stats come from the controller's device endpoint, not from
// the event stream, so the driver injects them before the run.
type DeviceHealth struct {
	stats []model.DeviceStats
	now   func() time.Time
}

// NewDeviceHealth builds the rollup over one run's device snapshot.
func NewDeviceHealth(stats []model.DeviceStats) *DeviceHealth {
	return &DeviceHealth{stats: stats, now: time.Now}
}

func (h *DeviceHealth) Name() string { return "device-health" }

// Aggregate emits one finding per unhealthy device condition.
func (h *DeviceHealth) Aggregate(_ []model.LogEntry, _ []model.Finding) []model.Finding {
	now := h.now().UTC()
	var findings []model.Finding

	emit := func(ds model.DeviceStats, severity model.Severity, title, desc, remediation string) {
		entity := ds.MAC
		if entity == "" {
			entity = ds.Name
		}
		findings = append(findings, model.Finding{
			ID:               uuid.NewString(),
			Category:         model.CategoryPerformance,
			Severity:         severity,
			Title:            title,
			Description:      desc,
			Remediation:      remediation,
			OccurrenceCount:  1,
			FirstSeen:        now,
			LastSeen:         now,
			AffectedEntities: []string{entity},
			Metadata:         map[string]string{"aggregator": h.Name()},
		})
	}

	for _, ds := range h.stats {
		name := ds.Name
		if name == "" {
			name = ds.MAC
		}
		if ds.CPUPercent >= HighCPUPercent {
			emit(ds, model.SeverityMedium,
				fmt.Sprintf("High CPU on %s", name),
				fmt.Sprintf("%s is running at %.1f%% CPU.", name, ds.CPUPercent), "")
		}
		if ds.MemoryPercent >= HighMemoryPercent {
			emit(ds, model.SeverityMedium,
				fmt.Sprintf("High memory use on %s", name),
				fmt.Sprintf("%s is at %.1f%% memory.", name, ds.MemoryPercent), "")
		}
		if ds.HasTemp && ds.TemperatureC >= HighTempCelsius {
			emit(ds, model.SeveritySevere,
				fmt.Sprintf("Device %s is overheating", name),
				fmt.Sprintf("%s reports %.1f°C, above the %.0f°C limit.", name, ds.TemperatureC, HighTempCelsius),
				"Check airflow and ambient temperature around the device; clean vents or relocate it away from heat sources.")
		}
		if ds.PoEOverload {
			emit(ds, model.SeveritySevere,
				fmt.Sprintf("PoE overload on %s", name),
				fmt.Sprintf("%s reports a PoE overload on at least one port.", name),
				"Review the switch PoE budget and redistribute powered devices across PSEs.")
		}
	}
	return findings
}
