package workflow

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/po-intake/internal/model"
	"github.com/sells-group/po-intake/internal/resilience"
	"github.com/sells-group/po-intake/internal/session"
	"github.com/sells-group/po-intake/internal/store"
	"github.com/sells-group/po-intake/pkg/ocr"
)

// mockOCR implements ocr.Client for orchestrator tests.
type mockOCR struct {
	uploadFunc  func(ctx context.Context, req ocr.UploadRequest) (*ocr.UploadResponse, error)
	statusFunc  func(ctx context.Context, id string) (*ocr.StatusResponse, error)
	extractFunc func(ctx context.Context, id string) (map[string]any, error)

	uploadCalls  atomic.Int32
	statusCalls  atomic.Int32
	extractCalls atomic.Int32
}

func (m *mockOCR) Upload(ctx context.Context, req ocr.UploadRequest) (*ocr.UploadResponse, error) {
	m.uploadCalls.Add(1)
	return m.uploadFunc(ctx, req)
}

func (m *mockOCR) Status(ctx context.Context, id string) (*ocr.StatusResponse, error) {
	m.statusCalls.Add(1)
	return m.statusFunc(ctx, id)
}

func (m *mockOCR) Extract(ctx context.Context, id string) (map[string]any, error) {
	m.extractCalls.Add(1)
	return m.extractFunc(ctx, id)
}

func acceptedUpload(jobID string) func(context.Context, ocr.UploadRequest) (*ocr.UploadResponse, error) {
	return func(context.Context, ocr.UploadRequest) (*ocr.UploadResponse, error) {
		return &ocr.UploadResponse{Raw: map[string]any{"status": "success", "ocrId": jobID}}, nil
	}
}

func completedStatus(context.Context, string) (*ocr.StatusResponse, error) {
	return &ocr.StatusResponse{Status: ocr.StatusCompleted}, nil
}

func widgetPayload(context.Context, string) (map[string]any, error) {
	return map[string]any{"data": map[string]any{
		"customer_name": "Acme Corp",
		"po_number":     "42",
		"items":         []any{map[string]any{"name": "Widget", "qty": "10", "price": "2.5"}},
	}}, nil
}

func testConfig() Config {
	return Config{
		PollInterval:            time.Millisecond,
		MaxPollAttempts:         30,
		PlaceholderOnMissingJob: true,
		LocalKeywordAssist:      true,
		Retry:                   resilience.RetryConfig{MaxAttempts: 1},
	}
}

func newOrchestrator(cfg Config, client ocr.Client, st store.Store) (*Orchestrator, *session.Session) {
	sess := session.New()
	return New(cfg, client, st, nil, sess), sess
}

func pdfDoc() Document {
	return Document{Filename: "po-scan.pdf", MediaType: "application/pdf", Content: []byte("%PDF-")}
}

func TestSubmitDocumentHappyPath(t *testing.T) {
	mock := &mockOCR{
		uploadFunc:  acceptedUpload("job-1"),
		statusFunc:  completedStatus,
		extractFunc: widgetPayload,
	}
	o, sess := newOrchestrator(testConfig(), mock, nil)

	require.NoError(t, o.SubmitDocument(context.Background(), pdfDoc()))

	assert.Equal(t, model.StateReviewingSummary, sess.State())
	rec := sess.Record()
	assert.Equal(t, "Acme Corp", rec.CustomerName)
	assert.Equal(t, "42", rec.PONumber)
	require.Len(t, rec.Products, 1)
	assert.Equal(t, 25.0, rec.Products[0].Amount)
	assert.Equal(t, 25.0, rec.TotalAmount)
	assert.NotEmpty(t, sess.LastInfo())

	assert.Equal(t, int32(1), mock.statusCalls.Load())
	assert.Equal(t, int32(1), mock.extractCalls.Load())
}

func TestSubmitDocumentUnsupportedType(t *testing.T) {
	mock := &mockOCR{}
	o, sess := newOrchestrator(testConfig(), mock, nil)

	err := o.SubmitDocument(context.Background(), Document{Filename: "notes.txt", MediaType: "text/plain"})
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
	assert.Equal(t, model.StateCollectingInput, sess.State())
	assert.NotEmpty(t, sess.LastError())
	assert.Zero(t, mock.uploadCalls.Load())
}

func TestSubmitDocumentClearsPriorState(t *testing.T) {
	mock := &mockOCR{
		uploadFunc:  acceptedUpload("job-1"),
		statusFunc:  completedStatus,
		extractFunc: widgetPayload,
	}
	o, sess := newOrchestrator(testConfig(), mock, nil)

	sess.SetTotalAmount("999")
	sess.SetError("old error")
	require.True(t, sess.ManualTotal())

	require.NoError(t, o.SubmitDocument(context.Background(), pdfDoc()))

	assert.False(t, sess.ManualTotal())
	assert.Empty(t, sess.LastError())
	assert.Equal(t, 25.0, sess.Record().TotalAmount)
}

func TestPollingCompletesOnAttemptFive(t *testing.T) {
	mock := &mockOCR{
		uploadFunc:  acceptedUpload("job-1"),
		extractFunc: widgetPayload,
	}
	mock.statusFunc = func(context.Context, string) (*ocr.StatusResponse, error) {
		if mock.statusCalls.Load() < 5 {
			return &ocr.StatusResponse{Status: "processing"}, nil
		}
		return &ocr.StatusResponse{Status: ocr.StatusCompleted}, nil
	}
	o, sess := newOrchestrator(testConfig(), mock, nil)

	require.NoError(t, o.SubmitDocument(context.Background(), pdfDoc()))

	assert.Equal(t, model.StateReviewingSummary, sess.State())
	assert.Equal(t, int32(5), mock.statusCalls.Load())
	assert.Equal(t, int32(1), mock.extractCalls.Load())
}

func TestFailedStatusStillFetchesResult(t *testing.T) {
	for _, status := range []string{ocr.StatusFailed, ocr.StatusError} {
		t.Run(status, func(t *testing.T) {
			mock := &mockOCR{
				uploadFunc: acceptedUpload("job-1"),
				statusFunc: func(context.Context, string) (*ocr.StatusResponse, error) {
					return &ocr.StatusResponse{Status: status}, nil
				},
				extractFunc: widgetPayload,
			}
			o, sess := newOrchestrator(testConfig(), mock, nil)

			require.NoError(t, o.SubmitDocument(context.Background(), pdfDoc()))
			assert.Equal(t, model.StateReviewingSummary, sess.State())
			assert.Equal(t, int32(1), mock.extractCalls.Load())
		})
	}
}

func TestPollTransportErrorProceedsToFetch(t *testing.T) {
	mock := &mockOCR{
		uploadFunc: acceptedUpload("job-1"),
		statusFunc: func(context.Context, string) (*ocr.StatusResponse, error) {
			return nil, &ocr.APIError{StatusCode: 502, Body: "bad gateway"}
		},
		extractFunc: widgetPayload,
	}
	o, sess := newOrchestrator(testConfig(), mock, nil)

	require.NoError(t, o.SubmitDocument(context.Background(), pdfDoc()))
	assert.Equal(t, model.StateReviewingSummary, sess.State())
	assert.Equal(t, int32(1), mock.statusCalls.Load())
	assert.Equal(t, int32(1), mock.extractCalls.Load())
}

func TestPollTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPollAttempts = 3

	mock := &mockOCR{
		uploadFunc: acceptedUpload("job-1"),
		statusFunc: func(context.Context, string) (*ocr.StatusResponse, error) {
			return &ocr.StatusResponse{Status: "processing"}, nil
		},
		extractFunc: func(context.Context, string) (map[string]any, error) {
			return nil, &ocr.APIError{StatusCode: 404, Body: "not ready"}
		},
	}
	o, sess := newOrchestrator(cfg, mock, nil)

	err := o.SubmitDocument(context.Background(), pdfDoc())
	assert.ErrorIs(t, err, ErrExtractionTimeout)
	assert.Equal(t, model.StateCollectingInput, sess.State())

	// Budget exhausted, then exactly one best-effort fetch.
	assert.Equal(t, int32(3), mock.statusCalls.Load())
	assert.Equal(t, int32(1), mock.extractCalls.Load())
}

func TestPollBudgetExhaustionSkipsFinalSleep(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = time.Second
	cfg.MaxPollAttempts = 1

	mock := &mockOCR{
		uploadFunc: acceptedUpload("job-1"),
		statusFunc: func(context.Context, string) (*ocr.StatusResponse, error) {
			return &ocr.StatusResponse{Status: "processing"}, nil
		},
		extractFunc: widgetPayload,
	}
	o, sess := newOrchestrator(cfg, mock, nil)

	// The last status check decides the outcome; nothing to wait for after it.
	start := time.Now()
	require.NoError(t, o.SubmitDocument(context.Background(), pdfDoc()))
	assert.Less(t, time.Since(start), cfg.PollInterval/2)

	assert.Equal(t, model.StateReviewingSummary, sess.State())
	assert.Equal(t, int32(1), mock.statusCalls.Load())
	assert.Equal(t, int32(1), mock.extractCalls.Load())
}

func TestPollTimeoutRescuedByFetch(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPollAttempts = 2

	mock := &mockOCR{
		uploadFunc: acceptedUpload("job-1"),
		statusFunc: func(context.Context, string) (*ocr.StatusResponse, error) {
			return &ocr.StatusResponse{Status: "processing"}, nil
		},
		extractFunc: widgetPayload,
	}
	o, sess := newOrchestrator(cfg, mock, nil)

	// The job finished just after the last status check: the best-effort
	// fetch still produces a reviewable draft.
	require.NoError(t, o.SubmitDocument(context.Background(), pdfDoc()))
	assert.Equal(t, model.StateReviewingSummary, sess.State())
	assert.Equal(t, "Acme Corp", sess.Record().CustomerName)
}

func TestUploadRejected(t *testing.T) {
	mock := &mockOCR{
		uploadFunc: func(context.Context, ocr.UploadRequest) (*ocr.UploadResponse, error) {
			return &ocr.UploadResponse{Raw: map[string]any{"message": "unreadable scan"}}, nil
		},
	}
	o, sess := newOrchestrator(testConfig(), mock, nil)

	err := o.SubmitDocument(context.Background(), pdfDoc())
	assert.ErrorIs(t, err, ErrExtractionRejected)
	assert.Equal(t, model.StateCollectingInput, sess.State())
	assert.Equal(t, "unreadable scan", sess.LastError())
	assert.Zero(t, mock.statusCalls.Load())
}

func TestUploadTransportFailure(t *testing.T) {
	mock := &mockOCR{
		uploadFunc: func(context.Context, ocr.UploadRequest) (*ocr.UploadResponse, error) {
			return nil, &ocr.APIError{StatusCode: 400, Body: `{"message":"file too large"}`}
		},
	}
	o, sess := newOrchestrator(testConfig(), mock, nil)

	err := o.SubmitDocument(context.Background(), pdfDoc())
	assert.ErrorIs(t, err, ErrExtractionRejected)
	assert.Equal(t, "file too large", sess.LastError())
	assert.Equal(t, model.StateCollectingInput, sess.State())
}

func TestMissingJobIDAppliesPlaceholder(t *testing.T) {
	st := newTestStore(t)
	mock := &mockOCR{
		uploadFunc: func(context.Context, ocr.UploadRequest) (*ocr.UploadResponse, error) {
			return &ocr.UploadResponse{Raw: map[string]any{"status": "success"}}, nil
		},
	}
	o, sess := newOrchestrator(testConfig(), mock, st)

	require.NoError(t, o.SubmitDocument(context.Background(), pdfDoc()))

	assert.Equal(t, model.StateReviewingSummary, sess.State())
	rec := sess.Record()
	assert.Equal(t, "12345 Ltd.", rec.CustomerName)
	require.Len(t, rec.Products, 3)
	assert.Equal(t, 36250.0, rec.TotalAmount)
	assert.Zero(t, mock.statusCalls.Load())

	// The degraded path must be reported in run history.
	runs, err := st.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].FallbackUsed)
	assert.Equal(t, store.RunStatusFallback, runs[0].Status)
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestMissingJobIDPlaceholderDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.PlaceholderOnMissingJob = false

	mock := &mockOCR{
		uploadFunc: func(context.Context, ocr.UploadRequest) (*ocr.UploadResponse, error) {
			return &ocr.UploadResponse{Raw: map[string]any{"status": "success"}}, nil
		},
	}
	o, sess := newOrchestrator(cfg, mock, nil)

	err := o.SubmitDocument(context.Background(), pdfDoc())
	assert.ErrorIs(t, err, ErrExtractionRejected)
	assert.Equal(t, model.StateCollectingInput, sess.State())
}

func TestEmptyExtractionResult(t *testing.T) {
	mock := &mockOCR{
		uploadFunc: acceptedUpload("job-1"),
		statusFunc: completedStatus,
		extractFunc: func(context.Context, string) (map[string]any, error) {
			return map[string]any{"error": "bad scan"}, nil
		},
	}
	o, sess := newOrchestrator(testConfig(), mock, nil)

	err := o.SubmitDocument(context.Background(), pdfDoc())
	assert.ErrorIs(t, err, ErrExtractionEmpty)
	assert.Equal(t, model.StateCollectingInput, sess.State())
	assert.NotEmpty(t, sess.LastError())
}

func TestSecondSubmissionOrphansFirst(t *testing.T) {
	firstUploaded := make(chan struct{})
	release := make(chan struct{})

	mock := &mockOCR{
		uploadFunc: func(_ context.Context, req ocr.UploadRequest) (*ocr.UploadResponse, error) {
			if req.Filename == "first.pdf" {
				defer close(firstUploaded)
				return &ocr.UploadResponse{Raw: map[string]any{"ocrId": "job-first"}}, nil
			}
			return &ocr.UploadResponse{Raw: map[string]any{"ocrId": "job-second"}}, nil
		},
		statusFunc: func(_ context.Context, id string) (*ocr.StatusResponse, error) {
			if id == "job-first" {
				<-release
			}
			return &ocr.StatusResponse{Status: ocr.StatusCompleted}, nil
		},
		extractFunc: func(_ context.Context, id string) (map[string]any, error) {
			name := "FIRST"
			if id == "job-second" {
				name = "SECOND"
			}
			return map[string]any{"customer_name": name, "po_number": "1"}, nil
		},
	}
	o, sess := newOrchestrator(testConfig(), mock, nil)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- o.SubmitDocument(context.Background(), Document{
			Filename: "first.pdf", MediaType: "application/pdf",
		})
	}()
	<-firstUploaded

	// A fresh submission while the first is mid-flight takes over the session.
	require.NoError(t, o.SubmitDocument(context.Background(), Document{
		Filename: "second.pdf", MediaType: "application/pdf",
	}))
	assert.Equal(t, "SECOND", sess.Record().CustomerName)

	close(release)
	err := <-firstDone
	assert.ErrorIs(t, err, ErrSuperseded)

	// The orphaned job's late result must not clobber the session.
	assert.Equal(t, "SECOND", sess.Record().CustomerName)
	assert.Equal(t, model.StateReviewingSummary, sess.State())
}

func TestAllowedMediaType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mediaType string
		want      bool
	}{
		{"application/pdf", true},
		{"image/png", true},
		{"image/jpeg", true},
		{"image/jpg", true},
		{"APPLICATION/PDF", true},
		{"image/png; charset=binary", true},
		{"text/plain", false},
		{"image/gif", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.mediaType, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, AllowedMediaType(tt.mediaType))
		})
	}
}
