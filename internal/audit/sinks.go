package audit

import (
	"context"
	"errors"

	"github.com/BradenHooton/folio-auth/internal/models"
	"github.com/BradenHooton/folio-auth/pkg/logger"
	"github.com/google/uuid"
)

// LogSink writes events as structured "audit" log lines
type LogSink struct {
	logger *logger.AuditLogger
}

func NewLogSink(l *logger.AuditLogger) *LogSink {
	return &LogSink{logger: l}
}

func (s *LogSink) Emit(ctx context.Context, event Event) error {
	s.logger.Log(ctx, logger.AuditEvent{
		EventType:     event.Type,
		UserID:        event.UserID,
		Email:         event.Email,
		IPAddress:     event.IPAddress,
		UserAgent:     event.UserAgent,
		Success:       event.Success,
		FailureReason: event.Reason,
		Metadata:      event.Metadata,
		Timestamp:     event.Timestamp,
	})
	return nil
}

// AuditLogWriter is the persistence side of RepositorySink
type AuditLogWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// RepositorySink stores events in the audit_logs table
type RepositorySink struct {
	repo AuditLogWriter
}

func NewRepositorySink(repo AuditLogWriter) *RepositorySink {
	return &RepositorySink{repo: repo}
}

func (s *RepositorySink) Emit(ctx context.Context, event Event) error {
	return s.repo.Create(ctx, ToAuditLog(event))
}

// ToAuditLog converts an event to its database row
func ToAuditLog(event Event) *models.AuditLog {
	return &models.AuditLog{
		ID:            uuid.New(),
		EventType:     event.Type,
		UserID:        optional(event.UserID),
		Email:         optional(event.Email),
		Success:       event.Success,
		FailureReason: optional(event.Reason),
		IPAddress:     optional(event.IPAddress),
		UserAgent:     optional(event.UserAgent),
		Metadata:      models.AuditMetadata(event.Metadata),
		CreatedAt:     event.Timestamp,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// MultiSink fans an event out to every sink and joins their errors
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
