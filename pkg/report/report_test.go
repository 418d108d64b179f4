package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netinvestigate/client-detective/pkg/classify"
	"github.com/netinvestigate/client-detective/pkg/record"
	"github.com/netinvestigate/client-detective/pkg/session"
)

func at(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04", value)
	require.NoError(t, err)
	return ts
}

func testDevices(t *testing.T) []classify.Device {
	t.Helper()
	return []classify.Device{
		{
			DeviceID: "cc:00:00:00:00:03",
			Category: classify.CategoryAnomalous,
			Sessions: []session.Session{
				{DeviceID: "cc:00:00:00:00:03", Start: at(t, "2026-03-03 02:00"), End: at(t, "2026-03-03 03:00")},
			},
			Reason: "after-hours presence with no baseline history",
		},
		{
			DeviceID: "aa:00:00:00:00:01",
			Category: classify.CategoryAnomalous,
			Sessions: []session.Session{
				{DeviceID: "aa:00:00:00:00:01", Start: at(t, "2026-03-02 22:00"), End: at(t, "2026-03-02 23:00")},
			},
			Reason: "after-hours presence with no baseline history",
		},
		{
			DeviceID: "bb:00:00:00:00:02",
			Category: classify.CategoryBaselineOnly,
			Reason:   "absent from the target window",
		},
	}
}

func TestAssemble_OrdersByDeviceID(t *testing.T) {
	rep := Assemble(testDevices(t))

	anomalous := rep.Category(classify.CategoryAnomalous)
	require.Len(t, anomalous, 2)
	assert.Equal(t, "aa:00:00:00:00:01", anomalous[0].DeviceID)
	assert.Equal(t, "cc:00:00:00:00:03", anomalous[1].DeviceID)

	all := rep.All()
	require.Len(t, all, 3)
	assert.Equal(t, "aa:00:00:00:00:01", all[0].DeviceID)
	assert.Equal(t, "bb:00:00:00:00:02", all[1].DeviceID)
}

func TestAssemble_Counts(t *testing.T) {
	rep := Assemble(testDevices(t))

	counts := rep.Counts()
	assert.Equal(t, 2, counts[classify.CategoryAnomalous])
	assert.Equal(t, 1, counts[classify.CategoryBaselineOnly])
	assert.Zero(t, counts[classify.CategoryLoitering])
}

func TestRecords_BaselineOnlyHasNoSessionBounds(t *testing.T) {
	rep := Assemble(testDevices(t))

	records := rep.Records(classify.CategoryBaselineOnly)
	require.Len(t, records, 1)
	assert.True(t, records[0].SessionStart.IsZero())
	assert.Zero(t, records[0].Duration)
	assert.NotEmpty(t, records[0].Reason)
}

func TestWriteDevicesCSV(t *testing.T) {
	rep := Assemble(testDevices(t))

	var buf bytes.Buffer
	require.NoError(t, WriteDevicesCSV(&buf, rep.Records(classify.CategoryAnomalous)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "device_id,category,session_start,session_end,duration,reason", lines[0])
	assert.Contains(t, lines[1], "aa:00:00:00:00:01")
	assert.Contains(t, lines[1], "ANOMALOUS_SUSPICIOUS")
	assert.Contains(t, lines[1], "1h0m0s")
}

func TestConnectionsCSV_RoundTrip(t *testing.T) {
	events := []record.Event{
		{
			DeviceID:    "aa:00:00:00:00:01",
			Timestamp:   at(t, "2026-03-02 22:00").UTC(),
			NetworkID:   "HQ",
			EventType:   "association",
			Description: "laptop",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteConnectionsCSV(&buf, events))

	raws, err := ReadConnectionsCSV(&buf)
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.Equal(t, "aa:00:00:00:00:01", raws[0]["client_mac"])
	assert.Equal(t, "association", raws[0]["event_type"])
	assert.Equal(t, "HQ", raws[0]["network"])
}

func TestExport_WritesNonEmptyCollections(t *testing.T) {
	dir := t.TempDir()
	rep := Assemble(testDevices(t))
	events := []record.Event{
		{DeviceID: "aa:00:00:00:00:01", Timestamp: at(t, "2026-03-02 22:00"), EventType: "association"},
	}
	extended := []classify.ExtendedSession{
		{DeviceID: "dd:00:00:00:00:04", First: at(t, "2026-03-02 15:00"), Last: at(t, "2026-03-02 19:00"), Elapsed: 4 * time.Hour, Sessions: 1},
	}

	written, err := Export(dir, rep, events, extended)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"all_connections.csv",
		"anomalous_devices.csv",
		"baseline_only_devices.csv",
		"extended_session_devices.csv",
	}, written)
	for _, name := range written {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err)
	}
}

func TestExport_EmptyRunWritesNothing(t *testing.T) {
	dir := t.TempDir()

	written, err := Export(dir, Assemble(nil), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, written)
}
