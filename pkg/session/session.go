// Package session derives contiguous connection sessions from connection
// events. It defines the Session type, the investigation Window, the
// time-of-day Band used for after-hours boundaries, and the gap-based
// Builder that merges closely-spaced events.
package session

import (
	"fmt"
	"sort"
	"time"

	"github.com/netinvestigate/client-detective/pkg/record"
)

// Session is a contiguous block of connectivity for one device.
// Invariant: Start is never after End, and sessions produced for the same
// device never overlap.
type Session struct {
	// DeviceID is the client identifier the session belongs to.
	DeviceID string

	// Start is the first event instant of the session.
	Start time.Time

	// End is the last event instant of the session.
	End time.Time
}

// Duration returns the elapsed wall-clock time of the session. Sessions
// spanning midnight report real elapsed time, never a day-truncated value.
func (s Session) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Window is a half-open time interval [Start, End). A window may span
// midnight; it is treated as one continuous interval, not two calendar days.
type Window struct {
	Start time.Time
	End   time.Time
}

// Validate returns an error when the window is empty or inverted.
func (w Window) Validate() error {
	if !w.Start.Before(w.End) {
		return fmt.Errorf("invalid window: start %s is not before end %s",
			w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	return nil
}

// Contains reports whether the instant falls within [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Builder groups events per device into sessions. Events more than the
// merge gap apart belong to separate sessions.
type Builder struct {
	gap time.Duration
}

// NewBuilder creates a Builder with the given merge gap threshold.
func NewBuilder(gap time.Duration) *Builder {
	return &Builder{gap: gap}
}

// Build groups the events that fall inside the window into per-device
// sessions, ordered by start time. Events outside the window are ignored,
// so every session lies within [Start, End).
func (b *Builder) Build(events []record.Event, w Window) map[string][]Session {
	perDevice := make(map[string][]time.Time)
	for _, ev := range events {
		if !w.Contains(ev.Timestamp) {
			continue
		}
		perDevice[ev.DeviceID] = append(perDevice[ev.DeviceID], ev.Timestamp)
	}

	sessions := make(map[string][]Session, len(perDevice))
	for deviceID, times := range perDevice {
		sessions[deviceID] = b.BuildDevice(deviceID, times)
	}
	return sessions
}

// BuildDevice derives the ordered sessions for a single device from its
// event instants. The instants are sorted, then walked once: a running
// session accumulates while the gap between consecutive instants stays
// within the merge threshold, and closes when the gap is exceeded.
func (b *Builder) BuildDevice(deviceID string, times []time.Time) []Session {
	if len(times) == 0 {
		return nil
	}

	sorted := make([]time.Time, len(times))
	copy(sorted, times)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	sessions := []Session{{DeviceID: deviceID, Start: sorted[0], End: sorted[0]}}
	for _, t := range sorted[1:] {
		current := &sessions[len(sessions)-1]
		if t.Sub(current.End) <= b.gap {
			current.End = t
			continue
		}
		sessions = append(sessions, Session{DeviceID: deviceID, Start: t, End: t})
	}
	return sessions
}

// Merge collapses sessions of one device whose gap is within the merge
// threshold. Input order does not matter. Merge is idempotent:
// Merge(Merge(s)) produces the same boundaries as Merge(s).
func (b *Builder) Merge(sessions []Session) []Session {
	if len(sessions) == 0 {
		return nil
	}

	sorted := make([]Session, len(sessions))
	copy(sorted, sessions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	merged := []Session{sorted[0]}
	for _, s := range sorted[1:] {
		current := &merged[len(merged)-1]
		if s.Start.Sub(current.End) <= b.gap {
			if s.End.After(current.End) {
				current.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}
