// Package record normalizes raw connection records into canonical events.
//
// Raw records arrive either as deserialized vendor API responses or as rows
// from previously exported CSV logs; the two sources use slightly different
// field names, and the normalizer accepts both. Each distinct client
// identifier is treated as a distinct device. Identifier randomization
// (MAC privacy rotation) is a known limitation: a rotating client appears
// as multiple devices and is never merged.
package record

import (
	"log/slog"
	"time"
)

// Raw is a single unnormalized connection record keyed by source field name.
type Raw map[string]string

// Event is a canonical connection event in the network's local timezone.
// Events are immutable once created by the Normalizer.
type Event struct {
	// DeviceID is the client identifier (typically a MAC address).
	DeviceID string

	// Timestamp is the event instant, normalized to local time.
	Timestamp time.Time

	// NetworkID identifies the network the client associated with.
	NetworkID string

	// EventType is the source event type (e.g. "association").
	EventType string

	// Description is the client description if the source provided one.
	Description string
}

// Field aliases across the API and CSV record shapes.
var (
	deviceFields      = []string{"client_mac", "clientMac"}
	timestampFields   = []string{"timestamp", "occurredAt"}
	networkFields     = []string{"network", "networkId", "network_id"}
	eventTypeFields   = []string{"event_type", "type"}
	descriptionFields = []string{"client_description", "clientDescription"}
)

// timestampLayouts are tried in order when parsing a raw timestamp.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Normalizer converts raw records into Events, normalizing timestamps to a
// single local timezone. All window-boundary logic downstream assumes local
// time, so the location here is load-bearing.
type Normalizer struct {
	loc        *time.Location
	eventTypes map[string]struct{}
}

// NewNormalizer creates a Normalizer for the given local timezone.
// If eventTypes is non-empty, only records of those types count as
// connection evidence; all other types are dropped (not a parse error).
func NewNormalizer(loc *time.Location, eventTypes []string) *Normalizer {
	types := make(map[string]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = struct{}{}
	}
	return &Normalizer{loc: loc, eventTypes: types}
}

// Normalize converts raw records into Events. Records with a missing or
// malformed timestamp, or no device identifier, are skipped and counted;
// the count is returned alongside the events and never aborts the run.
// Duplicate records (same timestamp, device and type) are collapsed.
func (n *Normalizer) Normalize(raws []Raw) ([]Event, int) {
	events := make([]Event, 0, len(raws))
	seen := make(map[eventKey]struct{}, len(raws))
	parseErrors := 0

	for _, raw := range raws {
		eventType := firstField(raw, eventTypeFields)
		if len(n.eventTypes) > 0 {
			if _, ok := n.eventTypes[eventType]; !ok {
				continue
			}
		}

		deviceID := firstField(raw, deviceFields)
		ts, ok := n.parseTimestamp(firstField(raw, timestampFields))
		if deviceID == "" || !ok {
			parseErrors++
			continue
		}

		key := eventKey{ts: ts.Unix(), device: deviceID, eventType: eventType}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		events = append(events, Event{
			DeviceID:    deviceID,
			Timestamp:   ts,
			NetworkID:   firstField(raw, networkFields),
			EventType:   eventType,
			Description: firstField(raw, descriptionFields),
		})
	}

	if parseErrors > 0 {
		slog.Warn("skipped records during normalization",
			"skipped", parseErrors,
			"accepted", len(events),
		)
	}
	return events, parseErrors
}

// parseTimestamp parses a source timestamp and converts it to local time.
// Layouts without a zone are interpreted as already local.
func (n *Normalizer) parseTimestamp(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		ts, err := time.ParseInLocation(layout, value, n.loc)
		if err == nil {
			return ts.In(n.loc), true
		}
	}
	return time.Time{}, false
}

// eventKey identifies a connection event for deduplication.
type eventKey struct {
	ts        int64
	device    string
	eventType string
}

// firstField returns the first non-empty value among the aliased field names.
func firstField(raw Raw, names []string) string {
	for _, name := range names {
		if v := raw[name]; v != "" {
			return v
		}
	}
	return ""
}
