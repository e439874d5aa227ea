package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/folio-auth/internal/models"
	"github.com/BradenHooton/folio-auth/pkg/logger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	block  chan struct{}
}

func (s *recordingSink) Emit(_ context.Context, event Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestDispatcher_DeliversAndDrainsOnClose(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, 16, discardLogger())

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{Type: EventLogin})
	}
	d.Close()

	assert.Len(t, sink.Events(), 10)
	assert.Zero(t, d.Dropped())

	// emitting after close is a no-op
	d.Emit(context.Background(), Event{Type: EventLogout})
	assert.Len(t, sink.Events(), 10)
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(sink, 1, discardLogger())

	// first event is picked up by the worker and blocks it, second fills the buffer
	d.Emit(context.Background(), Event{Type: "a"})
	require.Eventually(t, func() bool { return len(d.ch) == 0 }, time.Second, time.Millisecond)
	d.Emit(context.Background(), Event{Type: "b"})
	d.Emit(context.Background(), Event{Type: "c"})

	assert.Equal(t, uint64(1), d.Dropped())

	close(sink.block)
	d.Close()
	assert.Len(t, sink.Events(), 2)
}

func TestDispatcher_SinkErrorsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	sink := &recordingSink{err: errors.New("db down")}

	d := NewDispatcher(sink, 4, log)
	d.Emit(context.Background(), Event{Type: EventPasswordReset})
	d.Close()

	assert.Contains(t, buf.String(), "failed to deliver audit event")
	assert.Contains(t, buf.String(), "db down")
}

func TestDispatcher_NilSafe(t *testing.T) {
	var d *Dispatcher
	d.Emit(context.Background(), Event{})
	d.Close()
	assert.Zero(t, d.Dropped())
}

func TestMultiSink_JoinsErrors(t *testing.T) {
	ok := &recordingSink{}
	failing := SinkFunc(func(context.Context, Event) error { return errors.New("kafka down") })

	err := MultiSink{failing, ok}.Emit(context.Background(), Event{Type: EventLogin})
	assert.ErrorContains(t, err, "kafka down")
	assert.Len(t, ok.Events(), 1, "later sinks still receive the event")
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(logger.NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil))))

	err := sink.Emit(context.Background(), Event{
		Type:     EventOTPValidated,
		UserID:   "u-1",
		Success:  false,
		Reason:   "otp_mismatch",
		Metadata: map[string]string{"attempts": "2"},
	})
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "audit", line["msg"])
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "otp_mismatch", line["failure_reason"])
	assert.Equal(t, "2", line["meta_attempts"])
}

type fakeAuditRepo struct {
	created []*models.AuditLog
}

func (r *fakeAuditRepo) Create(_ context.Context, log *models.AuditLog) error {
	r.created = append(r.created, log)
	return nil
}

func TestRepositorySink(t *testing.T) {
	repo := &fakeAuditRepo{}
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	err := NewRepositorySink(repo).Emit(context.Background(), Event{
		Type:      EventLogin,
		UserID:    "u-1",
		IPAddress: "10.0.0.1",
		Success:   true,
		Timestamp: ts,
	})
	require.NoError(t, err)
	require.Len(t, repo.created, 1)

	row := repo.created[0]
	assert.Equal(t, EventLogin, row.EventType)
	require.NotNil(t, row.UserID)
	assert.Equal(t, "u-1", *row.UserID)
	assert.Nil(t, row.Email)
	assert.Nil(t, row.FailureReason)
	assert.Equal(t, ts, row.CreatedAt)
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSink(w)

	require.NoError(t, sink.Emit(context.Background(), Event{Type: EventPasswordChanged, UserID: "u-9", Success: true}))
	require.NoError(t, sink.Emit(context.Background(), Event{Type: EventOTPRequested}))
	require.Len(t, w.msgs, 2)

	assert.Equal(t, "u-9", string(w.msgs[0].Key))
	assert.Equal(t, EventOTPRequested, string(w.msgs[1].Key), "anonymous events key by type")

	var decoded Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, EventPasswordChanged, decoded.Type)
	assert.True(t, decoded.Success)

	w.err = errors.New("broker unavailable")
	assert.ErrorContains(t, sink.Emit(context.Background(), Event{Type: EventLogin}), "publish audit event")

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}
