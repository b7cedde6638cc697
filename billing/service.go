package billing

import (
	"time"

	"go.uber.org/zap"
)

// Service exposes the aggregation engine, the statement engine and the
// supporting time-entry, invoice and payment operations. Every call is
// synchronous; the only multi-step writes run inside Repository.WithTx.
type Service struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewService builds a Service. A nil logger discards output.
func NewService(repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger.Named("billing"), now: time.Now}
}
