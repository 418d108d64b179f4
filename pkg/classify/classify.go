// Package classify applies connection-timing risk rules to target-window
// sessions, comparing them against the baseline index and the configured
// business-hours and after-hours boundaries.
package classify

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/netinvestigate/client-detective/pkg/baseline"
	"github.com/netinvestigate/client-detective/pkg/session"
)

// Category is the risk category assigned to a device.
type Category string

const (
	// CategoryLoitering marks a device that arrived during business hours
	// and stayed well past the after-hours boundary.
	CategoryLoitering Category = "LOITERING_SUSPICIOUS"

	// CategoryAnomalous marks after-hours presence with no after-hours
	// baseline history.
	CategoryAnomalous Category = "ANOMALOUS_SUSPICIOUS"

	// CategoryBaselineRegular marks expected after-hours presence backed by
	// the baseline.
	CategoryBaselineRegular Category = "BASELINE_REGULAR"

	// CategoryBaselineOnly marks a regular after-hours device that was
	// unexpectedly absent from the target window.
	CategoryBaselineOnly Category = "BASELINE_ONLY"

	// CategoryRegular marks daytime-only presence with no anomaly.
	CategoryRegular Category = "REGULAR"
)

// Categories lists every category in report order.
var Categories = []Category{
	CategoryLoitering,
	CategoryAnomalous,
	CategoryBaselineRegular,
	CategoryBaselineOnly,
	CategoryRegular,
}

// Device is a classified device: a terminal output entity, never mutated
// after creation.
type Device struct {
	// DeviceID is the client identifier.
	DeviceID string

	// Category is the assigned risk category.
	Category Category

	// Sessions holds the device's target-window sessions, ordered by start.
	// Empty for BASELINE_ONLY devices.
	Sessions []session.Session

	// Reason summarizes which rule fired and the measured values.
	Reason string
}

// Rules holds the classification boundaries. All values are explicit
// configuration; none are hardcoded downstream.
type Rules struct {
	// BusinessHours is the normal-presence band (default 06:00-18:00).
	BusinessHours session.Band

	// AfterHours is the out-of-hours band (default 18:00-06:00).
	AfterHours session.Band

	// LoiteringMin is the minimum elapsed presence for the loitering rule
	// (default 8h).
	LoiteringMin time.Duration
}

// Classifier assigns risk categories by applying rules in precedence order.
type Classifier struct {
	rules Rules
}

// NewClassifier creates a Classifier with the given rules.
func NewClassifier(rules Rules) *Classifier {
	return &Classifier{rules: rules}
}

// Classify assigns exactly one category to every device present in the
// target window, then appends BASELINE_ONLY entries for profiled
// after-hours devices with no target presence. The two sets are disjoint by
// construction. Devices with inconsistent session data are excluded and
// counted, never propagated as a failure; the count is returned alongside
// the classified devices.
func (c *Classifier) Classify(target map[string][]session.Session, idx baseline.Index) ([]Device, int) {
	devices := make([]Device, 0, len(target))
	excluded := 0

	for _, deviceID := range sortedKeys(target) {
		sessions := target[deviceID]
		if len(sessions) == 0 {
			continue
		}
		if !consistent(sessions) {
			excluded++
			slog.Warn("excluding device with inconsistent session data",
				"device", deviceID,
				"sessions", len(sessions),
			)
			continue
		}
		devices = append(devices, c.classifyDevice(deviceID, sessions, idx[deviceID]))
	}

	for _, deviceID := range sortedProfileKeys(idx) {
		if len(target[deviceID]) > 0 {
			continue
		}
		profile := idx[deviceID]
		if !profile.SeenAfterHours {
			continue
		}
		devices = append(devices, Device{
			DeviceID: deviceID,
			Category: CategoryBaselineOnly,
			Reason: fmt.Sprintf(
				"regular after-hours device (%d baseline sessions, last seen %s) absent from the target window",
				profile.SeenCount, profile.LastSeen.Format(time.RFC3339)),
		})
	}

	return devices, excluded
}

// classifyDevice applies rules 1-4 in precedence order; the first match wins.
func (c *Classifier) classifyDevice(deviceID string, sessions []session.Session, profile *baseline.Profile) Device {
	ordered := make([]session.Session, len(sessions))
	copy(ordered, sessions)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start.Before(ordered[j].Start) })

	first := ordered[0].Start
	last := ordered[len(ordered)-1].End
	elapsed := last.Sub(first)

	device := Device{DeviceID: deviceID, Sessions: ordered}

	// Rule 1: business-hours arrival, presence past the after-hours
	// boundary of the arrival day, elapsed presence at or above the
	// loitering threshold.
	boundary := c.rules.AfterHours.WindowOn(first).Start
	if c.rules.BusinessHours.Contains(first) && last.After(boundary) && elapsed >= c.rules.LoiteringMin {
		device.Category = CategoryLoitering
		device.Reason = fmt.Sprintf(
			"arrived %s during business hours, still present %s after hours, %.1fh elapsed presence",
			first.Format("15:04"), last.Format("15:04"), elapsed.Hours())
		return device
	}

	afterHoursPresence := false
	for _, s := range ordered {
		if c.rules.AfterHours.Overlaps(s) {
			afterHoursPresence = true
			break
		}
	}

	switch {
	// Rule 2: after-hours presence expected from the baseline.
	case afterHoursPresence && profile != nil && profile.SeenAfterHours:
		device.Category = CategoryBaselineRegular
		device.Reason = fmt.Sprintf(
			"after-hours presence matches baseline (%d baseline sessions, seen after hours)",
			profile.SeenCount)

	// Rule 3: after-hours presence with no after-hours history.
	case afterHoursPresence:
		device.Category = CategoryAnomalous
		if profile == nil {
			device.Reason = fmt.Sprintf(
				"after-hours presence with no baseline history (%d target sessions, first %s)",
				len(ordered), first.Format(time.RFC3339))
		} else {
			device.Reason = fmt.Sprintf(
				"after-hours presence never seen after hours in baseline (%d baseline sessions, all in business hours)",
				profile.SeenCount)
		}

	// Rule 4: daytime-only presence.
	default:
		device.Category = CategoryRegular
		device.Reason = fmt.Sprintf(
			"daytime-only presence (%d sessions between %s and %s)",
			len(ordered), first.Format("15:04"), last.Format("15:04"))
	}
	return device
}

// consistent reports whether every session has sane bounds.
func consistent(sessions []session.Session) bool {
	for _, s := range sessions {
		if s.End.Before(s.Start) {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string][]session.Session) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedProfileKeys(idx baseline.Index) []string {
	keys := make([]string, 0, len(idx))
	for k := range idx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
