package collector

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unifi-insight/reporter/internal/model"
)

// syslogPattern is the lenient BSD syslog grammar the devices emit:
// "MMM dd HH:mm:ss host program[pid]: msg". The pid bracket is
// optional; anything that fails the grammar is preserved as an
// UNKNOWN entry so rules can still match on substrings.
var syslogPattern = regexp.MustCompile(
	`^([A-Z][a-z]{2})\s+(\d{1,2})\s+(\d{2}):(\d{2}):(\d{2})\s+(\S+)\s+([^:\[\s]+)(?:\[(\d+)\])?:\s*(.*)$`)

var monthNames = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// ParseSyslogLine converts one raw log line into a LogEntry. ref is
// the caller's reference clock, typically the collection window's end.
// Syslog timestamps carry no year, so the year is inferred from ref: a
// month that would land in the future belongs to last year.
func ParseSyslogLine(line string, ref time.Time) (model.LogEntry, bool) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return model.LogEntry{}, false
	}

	entry := model.LogEntry{
		ID:        uuid.NewString(),
		Source:    model.SourceShell,
		EventType: model.UnknownEventType,
		Metadata:  map[string]string{},
	}

	m := syslogPattern.FindStringSubmatch(line)
	if m == nil {
		// Unparseable lines keep the raw text and are stamped at ref,
		// which places them inside the caller's window instead of past
		// its end where the window filter would drop them.
		entry.Timestamp = ref.UTC()
		entry.Message = line
		entry.Raw = map[string]interface{}{"text": line}
		return entry, true
	}

	month := monthNames[m[1]]
	day := atoi(m[2])
	hour, min, sec := atoi(m[3]), atoi(m[4]), atoi(m[5])

	ts := time.Date(ref.Year(), month, day, hour, min, sec, 0, time.UTC)
	if ts.After(ref.Add(24 * time.Hour)) {
		ts = ts.AddDate(-1, 0, 0)
	}

	program := m[7]
	entry.Timestamp = ts
	entry.Message = m[9]
	entry.DeviceName = m[6]
	entry.EventType = syslogEventType(program, m[9])
	entry.Raw = map[string]interface{}{
		"text":    line,
		"host":    m[6],
		"program": program,
		"pid":     m[8],
	}
	return entry, true
}

// syslogEventType maps well-known device programs to symbolic keys so
// the rule registry can dispatch on them.
func syslogEventType(program, msg string) string {
	p := strings.ToLower(program)
	switch {
	case strings.Contains(p, "hostapd"):
		return "SYSLOG_WIFI"
	case strings.Contains(p, "dnsmasq"):
		return "SYSLOG_DHCP"
	case strings.Contains(p, "kernel"):
		if strings.Contains(strings.ToLower(msg), "radar") {
			return "SYSLOG_RADAR"
		}
		return "SYSLOG_KERNEL"
	case strings.Contains(p, "suricata"):
		return "SYSLOG_IPS"
	default:
		return model.UnknownEventType
	}
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}
