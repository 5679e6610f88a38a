package account

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/minhle2209/signal-decision-engine/internal/decision"
)

// HTTPProvider fetches account state from the external account service. The
// fetch is the only blocking network call before sizing, so it carries its own
// timeout and a circuit breaker: a hanging account service must fail the
// decision, not stall the pipeline.
type HTTPProvider struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPProvider creates a provider polling the given endpoint.
func NewHTTPProvider(url string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "account-provider",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &HTTPProvider{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (p *HTTPProvider) Snapshot(ctx context.Context) (State, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.fetch(ctx)
	})
	if err != nil {
		return State{}, decision.NewInfrastructureError("account", "snapshot", err)
	}
	return result.(State), nil
}

func (p *HTTPProvider) fetch(ctx context.Context) (State, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return State{}, fmt.Errorf("failed to build account request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return State{}, fmt.Errorf("account state fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return State{}, fmt.Errorf("account service returned status %d", resp.StatusCode)
	}

	var state State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return State{}, fmt.Errorf("failed to decode account state: %w", err)
	}
	if state.Timestamp.IsZero() {
		state.Timestamp = time.Now().UTC()
	}
	return state, nil
}
