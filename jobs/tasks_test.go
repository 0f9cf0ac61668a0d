package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDelivery struct {
	sent []Message
	err  error
}

func (d *recordingDelivery) Deliver(_ context.Context, msg Message) error {
	d.sent = append(d.sent, msg)
	return d.err
}

func TestVerificationMailerRendersLink(t *testing.T) {
	delivery := &recordingDelivery{}
	mailer := VerificationMailer{Delivery: delivery, BaseURL: "https://civic.example/", From: "no-reply@civic.example"}

	task, err := NewVerificationEmailTask(VerificationEmailPayload{To: "ana@example.org", Name: "Ana", Token: "tok-123"})
	require.NoError(t, err)
	assert.Equal(t, TaskTypeVerificationEmail, task.Type())

	require.NoError(t, mailer.Handle(context.Background(), task))
	require.Len(t, delivery.sent, 1)
	msg := delivery.sent[0]
	assert.Equal(t, "ana@example.org", msg.To)
	assert.Equal(t, "no-reply@civic.example", msg.From)
	assert.Contains(t, msg.Body, "Hi Ana")
	assert.Contains(t, msg.Body, "https://civic.example/verify-email?token=tok-123")
}

func TestVerificationMailerSkipsRetryOnBadPayload(t *testing.T) {
	mailer := VerificationMailer{Delivery: &recordingDelivery{}}

	err := mailer.Handle(context.Background(), asynq.NewTask(TaskTypeVerificationEmail, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	data, _ := json.Marshal(VerificationEmailPayload{To: "x@example.org"})
	err = mailer.Handle(context.Background(), asynq.NewTask(TaskTypeVerificationEmail, data))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNewVerificationEmailTaskRequiresToken(t *testing.T) {
	_, err := NewVerificationEmailTask(VerificationEmailPayload{To: "x@example.org"})
	assert.Error(t, err)
}

func TestMetricsInstrument(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	failing := errors.New("smtp down")
	delivery := &recordingDelivery{}
	handler := metrics.Instrument(asynq.HandlerFunc(VerificationMailer{Delivery: delivery}.Handle))

	task, err := NewVerificationEmailTask(VerificationEmailPayload{To: "a@example.org", Token: "t"})
	require.NoError(t, err)
	require.NoError(t, handler.ProcessTask(context.Background(), task))

	delivery.err = failing
	assert.ErrorIs(t, handler.ProcessTask(context.Background(), task), failing)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues(TaskTypeVerificationEmail, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues(TaskTypeVerificationEmail, "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues(TaskTypeVerificationEmail)))
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(fakeInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 3, Retry: 1}}, nil).
		health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":3,"retry":1}`, rec.Body.String())

	rec = httptest.NewRecorder()
	NewHandler(fakeInspector{err: errors.New("down")}, nil).
		health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
