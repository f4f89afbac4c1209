package monitor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/fyrsmithlabs/tracelog/internal/stats"
)

// StatsClient polls the admin API of a running tracelog pipeline.
type StatsClient struct {
	baseURL string
	client  *http.Client
}

// Snapshot is one poll of the admin API.
type Snapshot struct {
	Health       string
	Telemetry    string
	Methods      []stats.MethodStats
	SinkFailures uint64
	TakenAt      time.Time
}

type statsBody struct {
	Methods      []stats.MethodStats `json:"methods"`
	SinkFailures uint64              `json:"sink_failures"`
}

type healthBody struct {
	Status    string `json:"status"`
	Telemetry string `json:"telemetry"`
}

// NewStatsClient creates a client for the admin API at baseURL.
func NewStatsClient(baseURL string) *StatsClient {
	return &StatsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 2 * time.Second,
		},
	}
}

// Fetch reads /health and /api/v1/stats. Methods are sorted by call count,
// busiest first.
func (c *StatsClient) Fetch(ctx context.Context) (Snapshot, error) {
	var health healthBody
	if err := c.get(ctx, "/health", &health); err != nil {
		return Snapshot{}, err
	}

	var body statsBody
	if err := c.get(ctx, "/api/v1/stats", &body); err != nil {
		return Snapshot{}, err
	}

	sort.SliceStable(body.Methods, func(i, j int) bool {
		if body.Methods[i].Calls != body.Methods[j].Calls {
			return body.Methods[i].Calls > body.Methods[j].Calls
		}
		return body.Methods[i].Method < body.Methods[j].Method
	})

	return Snapshot{
		Health:       health.Status,
		Telemetry:    health.Telemetry,
		Methods:      body.Methods,
		SinkFailures: body.SinkFailures,
		TakenAt:      time.Now(),
	}, nil
}

func (c *StatsClient) get(ctx context.Context, path string, v any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound && path == "/api/v1/stats":
		return fmt.Errorf("statistics are disabled on %s", c.baseURL)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Totals sums calls and failures over every method.
func (s Snapshot) Totals() (calls, failures uint64) {
	for _, m := range s.Methods {
		calls += m.Calls
		failures += m.Failures
	}
	return calls, failures
}

// MeanLatency is the call-weighted mean of the per-method window means.
func (s Snapshot) MeanLatency() time.Duration {
	var total time.Duration
	var n int
	for _, m := range s.Methods {
		total += m.Window.Mean * time.Duration(m.Window.Count)
		n += m.Window.Count
	}
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}
