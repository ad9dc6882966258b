package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/essay-correction-api/internal/models"
	"github.com/noah-isme/essay-correction-api/pkg/jobs"
)

// AuditJobType tags audit writes on the background queue.
const AuditJobType = "audit_log"

type auditEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// AsyncAuditLogger moves audit writes off the request path.
// A job the queue refuses is written synchronously instead.
type AsyncAuditLogger struct {
	store  auditLogger
	queue  auditEnqueuer
	logger *zap.Logger
}

// NewAsyncAuditLogger constructs an AsyncAuditLogger. The queue may be attached later with Attach.
func NewAsyncAuditLogger(store auditLogger, logger *zap.Logger) *AsyncAuditLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsyncAuditLogger{store: store, logger: logger}
}

// Attach sets the queue used for deferred writes.
func (a *AsyncAuditLogger) Attach(queue auditEnqueuer) {
	a.queue = queue
}

// CreateAuditLog enqueues the log for a background write.
func (a *AsyncAuditLogger) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if a.queue != nil {
		err := a.queue.Enqueue(jobs.Job{ID: log.Action, Type: AuditJobType, Payload: log})
		if err == nil {
			return nil
		}
		a.logger.Debug("audit queue unavailable, writing inline", zap.Error(err))
	}
	return a.store.CreateAuditLog(ctx, log)
}

// Handle is the queue handler that persists audit jobs.
func (a *AsyncAuditLogger) Handle(ctx context.Context, job jobs.Job) error {
	log, ok := job.Payload.(*models.AuditLog)
	if !ok {
		return fmt.Errorf("unexpected audit payload %T", job.Payload)
	}
	return a.store.CreateAuditLog(ctx, log)
}
