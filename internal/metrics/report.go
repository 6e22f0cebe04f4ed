package metrics

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	cpuMarker      = "CPU Usage"
	switchesMarker = "Context Switches"

	UnknownMetric = "Unknown metric"
)

var reportPattern = regexp.MustCompile(`^CPU Usage: (\d+(?:\.\d+)?)%, Processes: (\d+), Context Switches: (\d+)$`)

// FormatReport renders the single line report sent by clients.
func FormatReport(s Snapshot) string {
	return fmt.Sprintf("CPU Usage: %.2f%%, Processes: %d, Context Switches: %d", s.CPUUsage, s.Processes, s.ContextSwitches)
}

// ParseReport is the inverse of FormatReport.
func ParseReport(text string) (Snapshot, bool) {
	m := reportPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return Snapshot{}, false
	}

	cpu, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Snapshot{}, false
	}
	procs, err := strconv.Atoi(m[2])
	if err != nil {
		return Snapshot{}, false
	}
	switches, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return Snapshot{}, false
	}

	return Snapshot{CPUUsage: cpu, Processes: procs, ContextSwitches: switches}, true
}

// Describe turns an inbound non-control payload into display text.
// Anything that echoes a metric report is wrapped; everything else is unknown.
func Describe(text string) string {
	if strings.Contains(text, cpuMarker) || strings.Contains(text, switchesMarker) {
		return "Metric received: " + text
	}
	return UnknownMetric
}
