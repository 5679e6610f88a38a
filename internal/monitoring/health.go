package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

// HealthChecker tracks liveness of the engine's external collaborators.
type HealthChecker struct {
	mu             sync.RWMutex
	lastDecision   time.Time
	ledgerReady    bool
	sourceAttached bool
	errors         []string
}

// HealthStatus is the JSON payload served on the health endpoint.
type HealthStatus struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	LastDecision   time.Time `json:"last_decision"`
	LedgerReady    bool      `json:"ledger_ready"`
	SourceAttached bool      `json:"source_attached"`
	Uptime         string    `json:"uptime"`
	Errors         []string  `json:"errors,omitempty"`
}

// NewHealthChecker creates an empty health checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{errors: make([]string, 0)}
}

// SetLedgerReady marks the decision ledger as reachable.
func (h *HealthChecker) SetLedgerReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ledgerReady = ready
}

// SetSourceAttached marks the signal source as attached.
func (h *HealthChecker) SetSourceAttached(attached bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sourceAttached = attached
}

// RecordDecision notes the time of the latest committed decision.
func (h *HealthChecker) RecordDecision() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastDecision = time.Now()
}

// RecordError appends a fatal-path error message, keeping the last ten.
func (h *HealthChecker) RecordError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, msg)
	if len(h.errors) > 10 {
		h.errors = h.errors[len(h.errors)-10:]
	}
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	if !h.ledgerReady || !h.sourceAttached {
		status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if len(h.errors) > 0 {
		status = "unhealthy"
		w.WriteHeader(http.StatusInternalServerError)
	}

	health := HealthStatus{
		Status:         status,
		Timestamp:      time.Now(),
		LastDecision:   h.lastDecision,
		LedgerReady:    h.ledgerReady,
		SourceAttached: h.sourceAttached,
		Uptime:         time.Since(startTime).String(),
		Errors:         h.errors,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}
