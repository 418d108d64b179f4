package classify

import (
	"sort"
	"time"

	"github.com/netinvestigate/client-detective/pkg/session"
)

// ExtendedSession describes a device that connected during business hours
// and remained past the after-hours boundary, regardless of the loitering
// threshold. It is an informational report alongside classification.
type ExtendedSession struct {
	// DeviceID is the client identifier.
	DeviceID string

	// First is the earliest target-window presence.
	First time.Time

	// Last is the latest target-window presence.
	Last time.Time

	// Elapsed is the wall-clock span from First to Last.
	Elapsed time.Duration

	// Sessions is the number of distinct sessions in the span.
	Sessions int
}

// ExtendedSessions reports devices arriving within business hours whose
// presence extends past the after-hours boundary of the arrival day.
// Results are ordered by device ID.
func (c *Classifier) ExtendedSessions(target map[string][]session.Session) []ExtendedSession {
	var extended []ExtendedSession
	for _, deviceID := range sortedKeys(target) {
		sessions := target[deviceID]
		if len(sessions) == 0 || !consistent(sessions) {
			continue
		}

		first := sessions[0].Start
		last := sessions[0].End
		for _, s := range sessions {
			if s.Start.Before(first) {
				first = s.Start
			}
			if s.End.After(last) {
				last = s.End
			}
		}

		boundary := c.rules.AfterHours.WindowOn(first).Start
		if !c.rules.BusinessHours.Contains(first) || !last.After(boundary) {
			continue
		}
		extended = append(extended, ExtendedSession{
			DeviceID: deviceID,
			First:    first,
			Last:     last,
			Elapsed:  last.Sub(first),
			Sessions: len(sessions),
		})
	}

	sort.Slice(extended, func(i, j int) bool { return extended[i].DeviceID < extended[j].DeviceID })
	return extended
}
