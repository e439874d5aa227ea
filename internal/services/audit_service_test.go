package services

import (
	"context"
	"testing"

	"github.com/BradenHooton/folio-auth/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditService_Record(t *testing.T) {
	emitter := &RecordingEmitter{}
	svc := NewAuditService(emitter)
	clock := newTestClock()
	svc.now = clock.Now

	svc.Record(context.Background(), testMeta, audit.Event{
		Type:   audit.EventLogin,
		UserID: "user-1",
		Email:  "ada@example.com",
	})

	require.Len(t, emitter.Events, 1)
	e := emitter.Events[0]
	assert.Equal(t, "a**@*******.com", e.Email)
	assert.Equal(t, testMeta.IPAddress, e.IPAddress)
	assert.Equal(t, testMeta.UserAgent, e.UserAgent)
	assert.Equal(t, clock.Now(), e.Timestamp)
}

func TestAuditService_NilIsNoop(t *testing.T) {
	var svc *AuditService
	assert.NotPanics(t, func() {
		svc.Record(context.Background(), testMeta, audit.Event{Type: audit.EventLogin})
	})
}
