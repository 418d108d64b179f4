package detective

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netinvestigate/client-detective/pkg/classify"
	"github.com/netinvestigate/client-detective/pkg/record"
	"github.com/netinvestigate/client-detective/pkg/session"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Timezone = "UTC"
	p, err := New(cfg)
	require.NoError(t, err)
	return p
}

// rawEvent produces an API-shaped raw record at the given UTC instant.
func rawEvent(mac, ts string) record.Raw {
	return record.Raw{
		"occurredAt": ts,
		"clientMac":  mac,
		"type":       "association",
		"networkId":  "N_1",
	}
}

// nightRaws emits paired connection events inside the after-hours band for
// each of the given evenings.
func nightRaws(mac string, evenings ...string) []record.Raw {
	var raws []record.Raw
	for _, evening := range evenings {
		raws = append(raws,
			rawEvent(mac, evening+"T22:00:00Z"),
			rawEvent(mac, evening+"T22:15:00Z"),
		)
	}
	return raws
}

func testTargetWindow(t *testing.T) session.Window {
	t.Helper()
	start, err := time.Parse(time.RFC3339, "2026-03-02T18:00:00Z")
	require.NoError(t, err)
	return session.Window{Start: start, End: start.Add(12 * time.Hour)}
}

func TestInvestigate_EndToEnd(t *testing.T) {
	p := newTestPipeline(t)
	target := testTargetWindow(t)

	var raws []record.Raw
	// Regular after-hours device: five baseline evenings plus one target session.
	raws = append(raws, nightRaws("aa:bb:cc:11:22:33",
		"2026-02-23", "2026-02-24", "2026-02-25", "2026-02-26", "2026-02-27")...)
	raws = append(raws,
		rawEvent("aa:bb:cc:11:22:33", "2026-03-02T22:00:00Z"),
		rawEvent("aa:bb:cc:11:22:33", "2026-03-02T23:30:00Z"),
	)
	// First-time after-hours device in the target window only.
	raws = append(raws,
		rawEvent("de:ad:be:ef:00:01", "2026-03-03T02:00:00Z"),
		rawEvent("de:ad:be:ef:00:01", "2026-03-03T03:00:00Z"),
	)
	// Malformed record: excluded and counted, never fatal.
	raws = append(raws, record.Raw{"occurredAt": "garbage", "clientMac": "ff:ff:ff:ff:ff:ff", "type": "association"})

	result, err := p.Investigate(raws, target)
	require.NoError(t, err)

	regular := result.Report.Category(classify.CategoryBaselineRegular)
	require.Len(t, regular, 1)
	assert.Equal(t, "aa:bb:cc:11:22:33", regular[0].DeviceID)

	anomalous := result.Report.Category(classify.CategoryAnomalous)
	require.Len(t, anomalous, 1)
	assert.Equal(t, "de:ad:be:ef:00:01", anomalous[0].DeviceID)

	assert.Equal(t, 1, result.Summary.ParseErrors)
	assert.Equal(t, 2, result.Summary.Devices)
	assert.NotEmpty(t, result.Summary.RunID)
}

func TestInvestigate_BaselineOnlyAbsence(t *testing.T) {
	p := newTestPipeline(t)
	target := testTargetWindow(t)

	raws := nightRaws("aa:bb:cc:11:22:33",
		"2026-02-23", "2026-02-24", "2026-02-25", "2026-02-26", "2026-02-27")

	result, err := p.Investigate(raws, target)
	require.NoError(t, err)

	baselineOnly := result.Report.Category(classify.CategoryBaselineOnly)
	require.Len(t, baselineOnly, 1)
	assert.Equal(t, "aa:bb:cc:11:22:33", baselineOnly[0].DeviceID)
	assert.Empty(t, result.Report.Category(classify.CategoryBaselineRegular))
}

func TestInvestigate_BaselineExcludesInvestigationDate(t *testing.T) {
	p := newTestPipeline(t)
	target := testTargetWindow(t)

	// Only activity is inside the target window itself: no baseline profile
	// may be built from it.
	raws := []record.Raw{
		rawEvent("de:ad:be:ef:00:01", "2026-03-02T22:00:00Z"),
		rawEvent("de:ad:be:ef:00:01", "2026-03-02T22:10:00Z"),
	}

	result, err := p.Investigate(raws, target)
	require.NoError(t, err)

	require.Len(t, result.Report.All(), 1)
	assert.Equal(t, classify.CategoryAnomalous, result.Report.All()[0].Category,
		"target-window activity must not feed its own baseline")
}

func TestInvestigate_EmptyInput(t *testing.T) {
	p := newTestPipeline(t)

	result, err := p.Investigate(nil, testTargetWindow(t))
	require.NoError(t, err, "zero events is not an error")

	assert.Zero(t, result.Summary.Events)
	assert.Empty(t, result.Report.All())
	assert.Empty(t, result.Extended)
}

func TestInvestigate_InvalidWindow(t *testing.T) {
	p := newTestPipeline(t)
	target := testTargetWindow(t)

	_, err := p.Investigate(nil, session.Window{Start: target.End, End: target.Start})
	assert.Error(t, err, "inverted window is a configuration error, surfaced before processing")
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaselineDays = -3

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNightWindow(t *testing.T) {
	p := newTestPipeline(t)
	date, err := time.Parse(time.RFC3339, "2026-03-02T00:00:00Z")
	require.NoError(t, err)

	w := p.NightWindow(date)
	assert.Equal(t, "2026-03-02T18:00:00Z", w.Start.Format(time.RFC3339))
	assert.Equal(t, "2026-03-03T06:00:00Z", w.End.Format(time.RFC3339))
}

func TestInvestigate_LargeSweepIsDeterministic(t *testing.T) {
	p := newTestPipeline(t)
	target := testTargetWindow(t)

	var raws []record.Raw
	for i := 0; i < 20; i++ {
		mac := fmt.Sprintf("02:00:00:00:00:%02x", i)
		raws = append(raws,
			rawEvent(mac, "2026-03-02T22:00:00Z"),
			rawEvent(mac, "2026-03-02T22:20:00Z"),
		)
	}

	first, err := p.Investigate(raws, target)
	require.NoError(t, err)
	second, err := p.Investigate(raws, target)
	require.NoError(t, err)

	assert.Equal(t, first.Report.All(), second.Report.All())
}
