package meraki

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrganizations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/organizations", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]Organization{{ID: "org-1", Name: "Acme"}})
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	orgs, err := c.Organizations(context.Background())
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, "Acme", orgs[0].Name)
}

func TestWirelessNetworks_Filters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/organizations/org-1/networks", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]Network{
			{ID: "N_1", Name: "HQ", ProductTypes: []string{"wireless", "switch"}},
			{ID: "N_2", Name: "Cameras", ProductTypes: []string{"camera"}},
		})
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	networks, err := c.WirelessNetworks(context.Background(), "org-1")
	require.NoError(t, err)
	require.Len(t, networks, 1)
	assert.Equal(t, "N_1", networks[0].ID)
}

func TestEventsBetween_Paginates(t *testing.T) {
	base := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	pages := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/networks/N_1/events", r.URL.Path)
		assert.Equal(t, "wireless", r.URL.Query().Get("productType"))
		perPage, err := strconv.Atoi(r.URL.Query().Get("perPage"))
		require.NoError(t, err)

		// Two full pages, then a short final page.
		pages++
		count := perPage
		if pages == 3 {
			count = 1
		}
		events := make([]Event, count)
		for i := range events {
			offset := time.Duration((pages-1)*perPage+i) * time.Minute
			events[i] = Event{
				OccurredAt: base.Add(offset).Format(time.RFC3339),
				Type:       "association",
				ClientMac:  fmt.Sprintf("aa:00:00:00:00:%02x", i),
			}
		}
		_ = json.NewEncoder(w).Encode(eventsResponse{Events: events})
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), WithPerPage(5))
	events, err := c.EventsBetween(context.Background(), "N_1", base, base.Add(12*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 3, pages)
	assert.Len(t, events, 11)
}

func TestEventsBetween_StopsAtEnd(t *testing.T) {
	base := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(eventsResponse{Events: []Event{
			{OccurredAt: base.Format(time.RFC3339), Type: "association"},
			{OccurredAt: base.Add(2 * time.Hour).Format(time.RFC3339), Type: "association"},
		}})
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	events, err := c.EventsBetween(context.Background(), "N_1", base, base.Add(time.Hour))
	require.NoError(t, err)

	require.Len(t, events, 1, "events at or past the end bound are excluded")
	assert.Equal(t, base.Format(time.RFC3339), events[0].OccurredAt)
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("perPage"))
		_ = json.NewEncoder(w).Encode(eventsResponse{Events: make([]Event, 3)})
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	count, err := c.Probe(context.Background(), "N_1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestGet_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"errors":["Invalid API key"]}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient("bad-key", WithBaseURL(srv.URL))
	_, err := c.Organizations(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestEventRaw(t *testing.T) {
	e := Event{
		OccurredAt:        "2026-03-02T22:00:00Z",
		Type:              "association",
		ClientMac:         "aa:00:00:00:00:01",
		ClientDescription: "laptop",
	}

	raw := e.Raw("N_1")
	assert.Equal(t, "aa:00:00:00:00:01", raw["clientMac"])
	assert.Equal(t, "N_1", raw["networkId"])
	assert.Equal(t, "2026-03-02T22:00:00Z", raw["occurredAt"])
}
