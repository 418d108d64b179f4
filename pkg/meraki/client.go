// Package meraki provides a minimal Meraki Dashboard API client for
// fetching the organization, network and wireless event data the
// investigation pipeline consumes. The client is a data source only: it
// returns raw connection records and performs no analysis.
package meraki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/netinvestigate/client-detective/pkg/record"
)

// DefaultBaseURL is the production dashboard API endpoint.
const DefaultBaseURL = "https://api.meraki.com/api/v1"

// Client calls the Meraki Dashboard API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	perPage    int
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used for tests and regional
// endpoints.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithPerPage sets the event page size.
func WithPerPage(perPage int) Option {
	return func(c *Client) { c.perPage = perPage }
}

// NewClient creates a Client authenticating with the given API key.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		perPage:    1000,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Organization is a dashboard organization.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Network is a dashboard network.
type Network struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	ProductTypes []string `json:"productTypes"`
}

// Wireless reports whether the network carries the wireless product.
func (n Network) Wireless() bool {
	for _, p := range n.ProductTypes {
		if p == "wireless" {
			return true
		}
	}
	return false
}

// Event is a wireless network event as returned by the events endpoint.
type Event struct {
	OccurredAt        string `json:"occurredAt"`
	Type              string `json:"type"`
	ClientMac         string `json:"clientMac"`
	ClientDescription string `json:"clientDescription"`
	DeviceSerial      string `json:"deviceSerial"`
	SSID              string `json:"ssid"`
	Description       string `json:"description"`
}

// Raw converts the event to the normalizer's raw record contract.
func (e Event) Raw(networkID string) record.Raw {
	return record.Raw{
		"occurredAt":        e.OccurredAt,
		"type":              e.Type,
		"clientMac":         e.ClientMac,
		"clientDescription": e.ClientDescription,
		"networkId":         networkID,
	}
}

// Organizations lists the organizations available to the API key.
func (c *Client) Organizations(ctx context.Context) ([]Organization, error) {
	var orgs []Organization
	if err := c.get(ctx, "/organizations", nil, &orgs); err != nil {
		return nil, fmt.Errorf("fetching organizations: %w", err)
	}
	return orgs, nil
}

// Networks lists the networks of an organization.
func (c *Client) Networks(ctx context.Context, orgID string) ([]Network, error) {
	var networks []Network
	path := fmt.Sprintf("/organizations/%s/networks", url.PathEscape(orgID))
	if err := c.get(ctx, path, nil, &networks); err != nil {
		return nil, fmt.Errorf("fetching networks for org %s: %w", orgID, err)
	}
	return networks, nil
}

// WirelessNetworks lists the organization's wireless networks.
func (c *Client) WirelessNetworks(ctx context.Context, orgID string) ([]Network, error) {
	networks, err := c.Networks(ctx, orgID)
	if err != nil {
		return nil, err
	}
	wireless := networks[:0]
	for _, n := range networks {
		if n.Wireless() {
			wireless = append(wireless, n)
		}
	}
	return wireless, nil
}

// eventsResponse is the envelope of the network events endpoint.
type eventsResponse struct {
	Events []Event `json:"events"`
}

// EventsBetween fetches all wireless events for a network in
// [start, end), paging through results. The events endpoint accepts either
// a startingAfter or an endingBefore cursor, not both, so pages are walked
// forward from start and filtered against end.
func (c *Client) EventsBetween(ctx context.Context, networkID string, start, end time.Time) ([]Event, error) {
	var all []Event
	cursor := start.UTC().Format(time.RFC3339)

	for {
		query := url.Values{
			"productType":   {"wireless"},
			"perPage":       {fmt.Sprint(c.perPage)},
			"startingAfter": {cursor},
		}

		var page eventsResponse
		path := fmt.Sprintf("/networks/%s/events", url.PathEscape(networkID))
		if err := c.get(ctx, path, query, &page); err != nil {
			return nil, fmt.Errorf("fetching events for network %s: %w", networkID, err)
		}
		if len(page.Events) == 0 {
			break
		}

		done := false
		for _, ev := range page.Events {
			occurred, err := time.Parse(time.RFC3339Nano, ev.OccurredAt)
			if err == nil && !occurred.Before(end) {
				done = true
				break
			}
			all = append(all, ev)
		}
		if done || len(page.Events) < c.perPage {
			break
		}
		cursor = page.Events[len(page.Events)-1].OccurredAt
	}
	return all, nil
}

// Probe checks that the network exists and has recent wireless activity.
// It returns the number of recent events observed.
func (c *Client) Probe(ctx context.Context, networkID string) (int, error) {
	query := url.Values{
		"productType": {"wireless"},
		"perPage":     {"10"},
	}

	var page eventsResponse
	path := fmt.Sprintf("/networks/%s/events", url.PathEscape(networkID))
	if err := c.get(ctx, path, query, &page); err != nil {
		return 0, fmt.Errorf("probing network %s: %w", networkID, err)
	}
	return len(page.Events), nil
}

// get performs an authenticated GET and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
