/*
service.go - Entry point for every ledger operation

PURPOSE:
  Service owns the rules: Conflict Guard, Allocation Store operations,
  Settlement Aggregator and Invoice Status Machine. The HTTP layer and the
  reporting projection call into it; it calls into a TxStore.

ATOMICITY:
  Any operation that touches more than one row runs inside one WithTx call.
  Validation reads happen inside the same transaction, before the first
  write, so a rejected call leaves nothing behind.

OPTIONS:
  WithLogger:             zap logger (default: no-op)
  WithClock:              timestamp source for audit columns (default: time.Now)
  WithRecorder:           metrics hook (default: no-op)
  WithInvoiceDowngrade:   accept any invoice status transition

SEE ALSO:
  - allocation.go, settlement.go, invoice.go: Operations
  - conflict.go: One-worker-per-date rule
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Recorder receives operation outcomes. observability.Metrics implements it.
type Recorder interface {
	AllocationWritten(op string)
	SettlementCreated(side Side, allocations int, total decimal.Decimal)
	InvoiceTransition(from, to InvoiceStatus)
	OperationRejected(op string, kind Kind)
}

type nopRecorder struct{}

func (nopRecorder) AllocationWritten(string)                       {}
func (nopRecorder) SettlementCreated(Side, int, decimal.Decimal)   {}
func (nopRecorder) InvoiceTransition(InvoiceStatus, InvoiceStatus) {}
func (nopRecorder) OperationRejected(string, Kind)                 {}

// Service implements the ledger operations over a TxStore.
type Service struct {
	store          TxStore
	guard          *ConflictGuard
	log            *zap.Logger
	now            func() time.Time
	recorder       Recorder
	allowDowngrade bool
}

type Option func(*Service)

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log.Named("ledger.service")
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithInvoiceDowngrade lets SetInvoiceStatus move between any two states.
// Allocations flipped by a paid invoice are never reverted either way.
func WithInvoiceDowngrade(allow bool) Option {
	return func(s *Service) { s.allowDowngrade = allow }
}

func NewService(store TxStore, opts ...Option) *Service {
	s := &Service{
		store:    store,
		guard:    NewConflictGuard(store),
		log:      zap.NewNop(),
		now:      time.Now,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC()
}

// reject records and logs a failed operation, then returns err unchanged.
func (s *Service) reject(op string, err error, fields ...zap.Field) error {
	kind := KindOf(err)
	s.recorder.OperationRejected(op, kind)
	fields = append(fields, zap.String("op", op), zap.String("kind", string(kind)), zap.Error(err))
	if kind == KindStorage || kind == KindUnknown {
		s.log.Error("ledger operation failed", fields...)
	} else {
		s.log.Info("ledger operation rejected", fields...)
	}
	return err
}
