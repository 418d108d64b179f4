package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/netinvestigate/client-detective/pkg/classify"
	"github.com/netinvestigate/client-detective/pkg/record"
)

// connectionHeader is the column set for raw connection exports, matching
// the collected log format so exports can be re-ingested as a data source.
var connectionHeader = []string{
	"network", "timestamp", "event_type", "client_mac", "client_description",
}

// deviceHeader is the column set for classified device exports.
var deviceHeader = []string{
	"device_id", "category", "session_start", "session_end", "duration", "reason",
}

// ConnectionWriter streams connection events to CSV in the collected log
// format, writing the header once. It suits day-by-day collection where
// events arrive in batches.
type ConnectionWriter struct {
	cw *csv.Writer
}

// NewConnectionWriter creates a ConnectionWriter and writes the header.
func NewConnectionWriter(w io.Writer) (*ConnectionWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(connectionHeader); err != nil {
		return nil, fmt.Errorf("writing connections header: %w", err)
	}
	return &ConnectionWriter{cw: cw}, nil
}

// Write appends a batch of events.
func (c *ConnectionWriter) Write(events []record.Event) error {
	for _, ev := range events {
		row := []string{
			ev.NetworkID,
			ev.Timestamp.Format(time.RFC3339),
			ev.EventType,
			ev.DeviceID,
			ev.Description,
		}
		if err := c.cw.Write(row); err != nil {
			return fmt.Errorf("writing connection row: %w", err)
		}
	}
	return nil
}

// Flush flushes buffered rows and reports any accumulated write error.
func (c *ConnectionWriter) Flush() error {
	c.cw.Flush()
	return c.cw.Error()
}

// WriteConnectionsCSV writes raw connection events in the collected log
// format.
func WriteConnectionsCSV(w io.Writer, events []record.Event) error {
	cw, err := NewConnectionWriter(w)
	if err != nil {
		return err
	}
	if err := cw.Write(events); err != nil {
		return err
	}
	return cw.Flush()
}

// ReadConnectionsCSV reads a connection log into raw records keyed by the
// header row, ready for normalization. The header may use either the
// collected log column names or the vendor API field names.
func ReadConnectionsCSV(r io.Reader) ([]record.Raw, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	var raws []record.Raw
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row: %w", err)
		}
		raw := make(record.Raw, len(header))
		for i, name := range header {
			if i < len(row) {
				raw[name] = row[i]
			}
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

// WriteDevicesCSV writes export records for one category.
func WriteDevicesCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(deviceHeader); err != nil {
		return fmt.Errorf("writing devices header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.DeviceID,
			string(rec.Category),
			formatInstant(rec.SessionStart),
			formatInstant(rec.SessionEnd),
			rec.Duration.String(),
			rec.Reason,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing device row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteExtendedCSV writes the extended-session report.
func WriteExtendedCSV(w io.Writer, extended []classify.ExtendedSession) error {
	cw := csv.NewWriter(w)
	header := []string{"device_id", "first_seen", "last_seen", "elapsed", "sessions"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing extended header: %w", err)
	}
	for _, e := range extended {
		row := []string{
			e.DeviceID,
			e.First.Format(time.RFC3339),
			e.Last.Format(time.RFC3339),
			e.Elapsed.String(),
			strconv.Itoa(e.Sessions),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing extended row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Export writes the full analysis to the directory: all_connections.csv,
// one CSV per non-empty category, and extended_session_devices.csv when
// the extended report is non-empty. It returns the file names written.
func Export(dir string, rep *Report, events []record.Event, extended []classify.ExtendedSession) ([]string, error) {
	var written []string

	if len(events) > 0 {
		if err := exportFile(dir, "all_connections.csv", func(f io.Writer) error {
			return WriteConnectionsCSV(f, events)
		}); err != nil {
			return written, err
		}
		written = append(written, "all_connections.csv")
	}

	for _, category := range classify.Categories {
		records := rep.Records(category)
		if len(records) == 0 {
			continue
		}
		name := CollectionNames[category] + ".csv"
		if err := exportFile(dir, name, func(f io.Writer) error {
			return WriteDevicesCSV(f, records)
		}); err != nil {
			return written, err
		}
		written = append(written, name)
	}

	if len(extended) > 0 {
		if err := exportFile(dir, "extended_session_devices.csv", func(f io.Writer) error {
			return WriteExtendedCSV(f, extended)
		}); err != nil {
			return written, err
		}
		written = append(written, "extended_session_devices.csv")
	}

	return written, nil
}

func exportFile(dir, name string, write func(io.Writer) error) error {
	path := filepath.Join(dir, name)
	f, err := os.Create(path) // #nosec G304 -- dir is the run's history directory
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	defer f.Close()

	if err := write(f); err != nil {
		return fmt.Errorf("exporting %s: %w", name, err)
	}
	return nil
}

func formatInstant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
