// Package report partitions classified devices into named per-category
// collections and renders them as export records for downstream adapters.
package report

import (
	"sort"
	"time"

	"github.com/netinvestigate/client-detective/pkg/classify"
)

// CollectionNames maps each category to its named output collection. The
// names double as export file stems (e.g. anomalous_devices.csv).
var CollectionNames = map[classify.Category]string{
	classify.CategoryLoitering:       "loitering_devices",
	classify.CategoryAnomalous:       "anomalous_devices",
	classify.CategoryBaselineRegular: "baseline_regular_devices",
	classify.CategoryBaselineOnly:    "baseline_only_devices",
	classify.CategoryRegular:         "regular_devices",
}

// Report groups classified devices by category with stable, deterministic
// per-category ordering by device ID.
type Report struct {
	byCategory map[classify.Category][]classify.Device
	all        []classify.Device
}

// Assemble partitions the classified devices. Input order does not matter;
// every collection is ordered by device ID for reproducible reports.
func Assemble(devices []classify.Device) *Report {
	r := &Report{
		byCategory: make(map[classify.Category][]classify.Device, len(CollectionNames)),
		all:        make([]classify.Device, len(devices)),
	}
	copy(r.all, devices)
	sort.Slice(r.all, func(i, j int) bool { return r.all[i].DeviceID < r.all[j].DeviceID })

	for _, d := range r.all {
		r.byCategory[d.Category] = append(r.byCategory[d.Category], d)
	}
	return r
}

// Category returns the ordered devices in one category.
func (r *Report) Category(c classify.Category) []classify.Device {
	return r.byCategory[c]
}

// All returns every classified device ordered by device ID.
func (r *Report) All() []classify.Device {
	return r.all
}

// Counts returns the number of devices per category.
func (r *Report) Counts() map[classify.Category]int {
	counts := make(map[classify.Category]int, len(r.byCategory))
	for c, devices := range r.byCategory {
		counts[c] = len(devices)
	}
	return counts
}

// Record is one exported row for a classified device session. BASELINE_ONLY
// devices produce a single record with zero session bounds.
type Record struct {
	DeviceID     string
	Category     classify.Category
	SessionStart time.Time
	SessionEnd   time.Time
	Duration     time.Duration
	Reason       string
}

// Records flattens the devices of one category into export records, one per
// session, preserving device then session order.
func (r *Report) Records(c classify.Category) []Record {
	var records []Record
	for _, d := range r.byCategory[c] {
		if len(d.Sessions) == 0 {
			records = append(records, Record{DeviceID: d.DeviceID, Category: d.Category, Reason: d.Reason})
			continue
		}
		for _, s := range d.Sessions {
			records = append(records, Record{
				DeviceID:     d.DeviceID,
				Category:     d.Category,
				SessionStart: s.Start,
				SessionEnd:   s.End,
				Duration:     s.Duration(),
				Reason:       d.Reason,
			})
		}
	}
	return records
}
