package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/minhle2209/signal-decision-engine/internal/decision"
	"github.com/minhle2209/signal-decision-engine/internal/signal"
)

// OrderSink accepts approved decisions. The engine calls it at most once per
// signal_id, after the decision has been committed to the ledger.
type OrderSink interface {
	Submit(ctx context.Context, d *decision.Decision, sig *signal.NormalizedSignal) error
}

// NoopSink discards orders. The backtest harness always uses it so historical
// replay can never reach a live endpoint.
type NoopSink struct{}

func (NoopSink) Submit(ctx context.Context, d *decision.Decision, sig *signal.NormalizedSignal) error {
	return nil
}

// RecordingSink captures submissions in memory, for tests and dry runs.
type RecordingSink struct {
	mu     sync.Mutex
	orders []*decision.Decision
}

func (s *RecordingSink) Submit(ctx context.Context, d *decision.Decision, sig *signal.NormalizedSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *d
	s.orders = append(s.orders, &stored)
	return nil
}

// Orders returns a copy of everything submitted so far.
func (s *RecordingSink) Orders() []*decision.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*decision.Decision, len(s.orders))
	copy(out, s.orders)
	return out
}

// orderPayload is the wire format handed to the external order service.
type orderPayload struct {
	SignalID   string  `json:"signal_id"`
	Instrument string  `json:"instrument"`
	Direction  string  `json:"direction"`
	Action     string  `json:"action"`
	OrderType  string  `json:"order_type"`
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
}

// HTTPSink posts approved orders to the external order service. The handoff is
// the last blocking call in the pipeline, so it carries a timeout, a circuit
// breaker and a bounded retry budget; exhausting the budget is surfaced as a
// reportable failure, never a silent drop.
type HTTPSink struct {
	url        string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
}

// NewHTTPSink creates a sink posting to the given URL.
func NewHTTPSink(url string, timeout time.Duration, maxRetries int) *HTTPSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	settings := gobreaker.Settings{
		Name:    "order-sink",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &HTTPSink{
		url:        url,
		client:     &http.Client{Timeout: timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
		maxRetries: maxRetries,
	}
}

func (s *HTTPSink) Submit(ctx context.Context, d *decision.Decision, sig *signal.NormalizedSignal) error {
	payload := orderPayload{
		SignalID:   d.SignalID,
		Instrument: sig.Instrument,
		Direction:  string(sig.Direction),
		Action:     string(sig.Action),
		OrderType:  sig.OrderType,
		Quantity:   d.FinalQuantity,
		Price:      sig.Price,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return decision.NewInfrastructureError("sink", "submit", err)
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return decision.NewInfrastructureError("sink", "submit", ctx.Err())
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		_, lastErr = s.breaker.Execute(func() (interface{}, error) {
			return nil, s.post(ctx, body)
		})
		if lastErr == nil {
			return nil
		}
	}

	return decision.NewInfrastructureError("sink", "submit",
		fmt.Errorf("order sink failed after %d attempts: %w", s.maxRetries+1, lastErr))
}

func (s *HTTPSink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("order sink request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("order sink returned status %d", resp.StatusCode)
	}
	return nil
}
