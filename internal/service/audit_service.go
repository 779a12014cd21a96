package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-merit-api/internal/models"
	"github.com/noah-isme/sma-merit-api/pkg/jobs"
)

type auditStore interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// auditRecorder is how services hand audit entries off.
type auditRecorder interface {
	Record(ctx context.Context, entry models.AuditLog)
}

// RequestInfo describes the client behind an audited change.
type RequestInfo struct {
	IPAddress string
	UserAgent string
}

type requestInfoKey struct{}

// WithRequestInfo returns ctx carrying info for audit entries recorded under it.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

func requestInfoFrom(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info, ok
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, models.AuditLog) {}

// AuditConfig sizes the asynchronous writer.
type AuditConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
}

// AuditService writes audit entries off the request path.
type AuditService struct {
	store  auditStore
	queue  *jobs.Queue[models.AuditLog]
	logger *zap.Logger
}

// NewAuditService constructs the service. Call Start before serving traffic.
func NewAuditService(store auditStore, cfg AuditConfig, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{store: store, logger: logger}
	s.queue = jobs.NewQueue[models.AuditLog]("audit", s.persist, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: 250 * time.Millisecond,
		Logger:     logger,
	})
	return s
}

// Start launches the background writers.
func (s *AuditService) Start() {
	s.queue.Start()
}

// Stop flushes buffered entries and stops the writers.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// Record enqueues entry. When the queue cannot take it the entry is written inline.
func (s *AuditService) Record(ctx context.Context, entry models.AuditLog) {
	if s == nil || s.store == nil {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if info, ok := requestInfoFrom(ctx); ok && entry.IPAddress == "" {
		entry.IPAddress = info.IPAddress
		entry.UserAgent = info.UserAgent
	}
	err := s.queue.Enqueue(entry)
	if err == nil {
		return
	}
	s.logger.Debug("audit queue unavailable, writing inline", zap.Error(err))
	if err := s.persist(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("audit write failed", zap.String("action", entry.Action), zap.Error(err))
	}
}

func (s *AuditService) persist(ctx context.Context, entry models.AuditLog) error {
	return s.store.CreateAuditLog(ctx, &entry)
}

// newAuditEntry builds an entry, encoding the before and after values as JSON.
func newAuditEntry(actorID, action, resource, resourceID string, before, after interface{}) models.AuditLog {
	entry := models.AuditLog{Action: action, Resource: resource}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}
	if before != nil {
		entry.OldValues, _ = json.Marshal(before)
	}
	if after != nil {
		entry.NewValues, _ = json.Marshal(after)
	}
	return entry
}
