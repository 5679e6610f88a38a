package sqlitestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/minhle2209/signal-decision-engine/internal/decision"
	"github.com/minhle2209/signal-decision-engine/internal/ledger"
)

const (
	statusReserved  = "reserved"
	statusCommitted = "committed"
)

// decisionRecord is the persisted ledger row, one per signal_id ever seen.
type decisionRecord struct {
	SignalID   string    `gorm:"column:signal_id;primaryKey"`
	Status     string    `gorm:"column:status;index"`
	Token      string    `gorm:"column:token"`
	ReservedAt time.Time `gorm:"column:reserved_at"`

	Approved                  bool       `gorm:"column:approved"`
	Reason                    string     `gorm:"column:reason"`
	FinalQuantity             float64    `gorm:"column:final_quantity"`
	MarginUtilizationAfterPct float64    `gorm:"column:margin_utilization_after_pct"`
	SizedQuantity             float64    `gorm:"column:sized_quantity"`
	AlphaLostFraction         float64    `gorm:"column:alpha_lost_fraction"`
	CommittedAt               *time.Time `gorm:"column:committed_at"`
}

func (decisionRecord) TableName() string { return "decisions" }

// Store is the durable Decision Ledger backed by Gorm + SQLite. A conditional
// insert on the signal_id primary key makes the check-and-reserve a single
// atomic operation, and committed rows survive restarts so a previously
// processed signal_id is never reprocessed.
type Store struct {
	db *gorm.DB

	// reservationTTL bounds how long an in-flight reservation blocks
	// redelivery. A crashed worker leaves a reserved row behind; once the TTL
	// passes the row may be taken over by a fresh reservation.
	reservationTTL time.Duration
}

// Open initializes the ledger store at the given SQLite path.
func Open(path string, reservationTTL time.Duration) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("ledger store path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	if reservationTTL <= 0 {
		reservationTTL = 5 * time.Minute
	}

	// mattn/go-sqlite3 param syntax; _pragma= style belongs to the modernc driver
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	if err := db.AutoMigrate(&decisionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger schema: %w", err)
	}

	return &Store{db: db, reservationTTL: reservationTTL}, nil
}

func (s *Store) RecordIfAbsent(ctx context.Context, signalID string) (ledger.ReserveResult, error) {
	res := &ledger.Reservation{
		SignalID:   signalID,
		Token:      uuid.NewString(),
		ReservedAt: time.Now().UTC(),
	}

	rec := decisionRecord{
		SignalID:   signalID,
		Status:     statusReserved,
		Token:      res.Token,
		ReservedAt: res.ReservedAt,
	}

	// Conditional insert: exactly one of N concurrent deliveries wins the row.
	tx := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec)
	if tx.Error != nil {
		return ledger.ReserveResult{}, decision.NewInfrastructureError("ledger", "reserve", tx.Error)
	}
	if tx.RowsAffected == 1 {
		return ledger.ReserveResult{Reservation: res}, nil
	}

	// Row already exists: committed decision, live reservation, or a stale
	// reservation left by a crashed worker.
	var existing decisionRecord
	if err := s.db.WithContext(ctx).First(&existing, "signal_id = ?", signalID).Error; err != nil {
		return ledger.ReserveResult{}, decision.NewInfrastructureError("ledger", "reserve", err)
	}

	if existing.Status == statusCommitted {
		return ledger.ReserveResult{Existing: toDecision(&existing)}, nil
	}

	cutoff := time.Now().UTC().Add(-s.reservationTTL)
	if existing.ReservedAt.After(cutoff) {
		return ledger.ReserveResult{Pending: true}, nil
	}

	// Stale reservation takeover, conditional on the row still being stale.
	takeover := s.db.WithContext(ctx).Model(&decisionRecord{}).
		Where("signal_id = ? AND status = ? AND reserved_at <= ?", signalID, statusReserved, cutoff).
		Updates(map[string]interface{}{"token": res.Token, "reserved_at": res.ReservedAt})
	if takeover.Error != nil {
		return ledger.ReserveResult{}, decision.NewInfrastructureError("ledger", "reserve", takeover.Error)
	}
	if takeover.RowsAffected == 1 {
		return ledger.ReserveResult{Reservation: res}, nil
	}
	return ledger.ReserveResult{Pending: true}, nil
}

func (s *Store) Commit(ctx context.Context, res *ledger.Reservation, d *decision.Decision) error {
	now := time.Now().UTC()
	tx := s.db.WithContext(ctx).Model(&decisionRecord{}).
		Where("signal_id = ? AND status = ? AND token = ?", res.SignalID, statusReserved, res.Token).
		Updates(map[string]interface{}{
			"status":                       statusCommitted,
			"approved":                     d.Approved,
			"reason":                       string(d.Reason),
			"final_quantity":               d.FinalQuantity,
			"margin_utilization_after_pct": d.MarginUtilizationAfterPct,
			"sized_quantity":               d.SizedQuantity,
			"alpha_lost_fraction":          d.AlphaLostFraction,
			"committed_at":                 now,
		})
	if tx.Error != nil {
		return decision.NewInfrastructureError("ledger", "commit", tx.Error)
	}
	if tx.RowsAffected == 1 {
		return nil
	}

	var existing decisionRecord
	err := s.db.WithContext(ctx).First(&existing, "signal_id = ?", res.SignalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decision.NewInvariantError("ledger", "commit",
			fmt.Errorf("commit for unreserved signal %s", res.SignalID))
	}
	if err != nil {
		return decision.NewInfrastructureError("ledger", "commit", err)
	}
	if existing.Status == statusCommitted {
		return decision.NewInvariantError("ledger", "commit",
			fmt.Errorf("signal %s: %w", res.SignalID, decision.ErrDuplicateCommit))
	}
	return decision.NewInvariantError("ledger", "commit",
		fmt.Errorf("commit for signal %s with stale reservation token", res.SignalID))
}

func (s *Store) Rollback(ctx context.Context, res *ledger.Reservation) error {
	tx := s.db.WithContext(ctx).
		Where("signal_id = ? AND status = ? AND token = ?", res.SignalID, statusReserved, res.Token).
		Delete(&decisionRecord{})
	if tx.Error != nil {
		return decision.NewInfrastructureError("ledger", "rollback", tx.Error)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, signalID string) (*decision.Decision, error) {
	var rec decisionRecord
	err := s.db.WithContext(ctx).First(&rec, "signal_id = ? AND status = ?", signalID, statusCommitted).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, decision.NewInfrastructureError("ledger", "get", err)
	}
	return toDecision(&rec), nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toDecision(rec *decisionRecord) *decision.Decision {
	d := &decision.Decision{
		SignalID:                  rec.SignalID,
		Approved:                  rec.Approved,
		Reason:                    decision.Reason(rec.Reason),
		FinalQuantity:             rec.FinalQuantity,
		MarginUtilizationAfterPct: rec.MarginUtilizationAfterPct,
		SizedQuantity:             rec.SizedQuantity,
		AlphaLostFraction:         rec.AlphaLostFraction,
	}
	if rec.CommittedAt != nil {
		d.CreatedAt = *rec.CommittedAt
	}
	return d
}
