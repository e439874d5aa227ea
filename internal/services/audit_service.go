package services

import (
	"context"
	"time"

	"github.com/BradenHooton/folio-auth/internal/audit"
	pkghttp "github.com/BradenHooton/folio-auth/pkg/http"
	pkglogger "github.com/BradenHooton/folio-auth/pkg/logger"
)

// AuditEmitter queues audit events; *audit.Dispatcher satisfies it
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event)
}

// AuditService stamps and sanitizes events before handing them off.
// Recording never fails the calling flow.
type AuditService struct {
	emitter AuditEmitter
	now     func() time.Time
}

func NewAuditService(emitter AuditEmitter) *AuditService {
	return &AuditService{
		emitter: emitter,
		now:     time.Now,
	}
}

// Record sends event with the request details attached. A nil service
// discards the event.
func (s *AuditService) Record(ctx context.Context, meta pkghttp.RequestMeta, event audit.Event) {
	if s == nil || s.emitter == nil {
		return
	}

	if event.Email != "" {
		event.Email = pkglogger.SanitizedEmail(event.Email)
	}
	if event.IPAddress == "" {
		event.IPAddress = meta.IPAddress
	}
	if event.UserAgent == "" {
		event.UserAgent = meta.UserAgent
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}

	s.emitter.Emit(ctx, event)
}
