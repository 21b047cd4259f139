// Package workflow drives the document-to-record lifecycle: submit the
// scanned document, poll the extraction job, fetch and normalize the result,
// and hand the draft to the editable session.
package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/po-intake/internal/model"
	"github.com/sells-group/po-intake/internal/normalize"
	"github.com/sells-group/po-intake/internal/resilience"
	"github.com/sells-group/po-intake/internal/session"
	"github.com/sells-group/po-intake/internal/store"
	"github.com/sells-group/po-intake/pkg/ocr"
)

const (
	defaultPollInterval    = 2 * time.Second
	defaultMaxPollAttempts = 30
)

// Config controls orchestrator behavior.
type Config struct {
	// PollInterval is the fixed delay between status checks. Default: 2s.
	PollInterval time.Duration

	// MaxPollAttempts bounds the polling loop. Default: 30.
	MaxPollAttempts int

	// PlaceholderOnMissingJob applies a built-in placeholder draft when the
	// service accepts a document but returns no job identifier. The upstream
	// behavior looks like demo scaffolding, so it is configurable instead of
	// silently replicated; when it fires it is logged and recorded.
	PlaceholderOnMissingJob bool

	// LocalKeywordAssist asks the service for local-keyword-assisted
	// extraction.
	LocalKeywordAssist bool

	// Retry configures the upload retry policy. Zero value uses defaults.
	Retry resilience.RetryConfig
}

// Document is a scanned purchase order handed to the workflow.
type Document struct {
	Filename  string
	MediaType string
	Content   []byte
}

// Media types accepted for upload.
var allowedMediaTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/jpg":       true,
}

// AllowedMediaType reports whether the declared media type is accepted.
// Parameters such as charset are ignored.
func AllowedMediaType(mediaType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return allowedMediaTypes[mt]
}

// Orchestrator runs one intake workflow over a shared session. A second
// submission while one is in flight takes over the session: the older job's
// pending steps check generation relevance before acting and are discarded
// when stale.
type Orchestrator struct {
	cfg        Config
	ocr        ocr.Client
	store      store.Store
	normalizer *normalize.Normalizer
	session    *session.Session

	mu         sync.Mutex
	generation uint64
}

// New creates an Orchestrator. A nil store disables run history.
func New(cfg Config, client ocr.Client, st store.Store, n *normalize.Normalizer, sess *session.Session) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = defaultMaxPollAttempts
	}
	if st == nil {
		st = store.NewNop()
	}
	if n == nil {
		n = normalize.New()
	}
	return &Orchestrator{
		cfg:        cfg,
		ocr:        client,
		store:      st,
		normalizer: n,
		session:    sess,
	}
}

// Session returns the session this orchestrator drives.
func (o *Orchestrator) Session() *session.Session {
	return o.session
}

// SubmitDocument runs the full upload -> poll -> normalize lifecycle and
// leaves the session either reviewing the extracted draft or back in
// collecting-input with a user-visible error.
func (o *Orchestrator) SubmitDocument(ctx context.Context, doc Document) error {
	log := zap.L().With(zap.String("file", doc.Filename))

	if !AllowedMediaType(doc.MediaType) {
		o.mu.Lock()
		o.session.SetError("only PDF, PNG, and JPEG documents are accepted")
		o.mu.Unlock()
		return eris.Wrapf(ErrUnsupportedFileType, "media type %q", doc.MediaType)
	}

	gen := o.begin()
	runID := o.createRun(ctx, doc.Filename, log)

	resp, err := resilience.DoVal(ctx, o.uploadRetry(), func(ctx context.Context) (*ocr.UploadResponse, error) {
		return o.ocr.Upload(ctx, ocr.UploadRequest{
			Filename:           doc.Filename,
			MediaType:          doc.MediaType,
			Content:            doc.Content,
			LocalKeywordAssist: o.cfg.LocalKeywordAssist,
		})
	})
	if err != nil {
		log.Error("document upload failed", zap.Error(err))
		return o.fail(ctx, gen, runID, store.RunStatusRejected, ErrExtractionRejected, uploadErrorMessage(err))
	}

	if !resp.Succeeded() {
		msg := resp.Message()
		if msg == "" {
			msg = "the extraction service rejected the document"
		}
		log.Warn("upload rejected by extraction service", zap.String("message", msg))
		return o.fail(ctx, gen, runID, store.RunStatusRejected, ErrExtractionRejected, msg)
	}

	jobID := resp.JobID()
	if jobID == "" {
		// Degraded service: accepted, but nothing to poll. Without the
		// placeholder the user would be stuck in a processing state.
		if !o.cfg.PlaceholderOnMissingJob {
			log.Warn("upload accepted without job identifier, placeholder disabled")
			return o.fail(ctx, gen, runID, store.RunStatusRejected, ErrExtractionRejected,
				"the extraction service returned no job identifier")
		}
		log.Warn("upload accepted without job identifier, applying placeholder draft")
		o.storeWarn(o.store.MarkFallback(ctx, runID), log)
		return o.apply(gen, placeholderRecord(), "placeholder data applied; verify every field before registering")
	}

	log.Info("extraction job accepted", zap.String("job_id", jobID))
	o.storeWarn(o.store.SetJobID(ctx, runID, jobID), log)

	payload, timedOut, err := o.awaitResult(ctx, jobID, log)
	if err != nil {
		if timedOut {
			return o.fail(ctx, gen, runID, store.RunStatusTimedOut, ErrExtractionTimeout,
				"extraction did not finish in time")
		}
		log.Error("extraction result fetch failed", zap.Error(err))
		return o.fail(ctx, gen, runID, store.RunStatusEmpty, ErrExtractionEmpty,
			"could not retrieve the extraction result")
	}

	record, err := o.normalizer.Normalize(payload)
	if err != nil {
		if timedOut {
			return o.fail(ctx, gen, runID, store.RunStatusTimedOut, ErrExtractionTimeout,
				"extraction did not finish in time")
		}
		return o.fail(ctx, gen, runID, store.RunStatusEmpty, ErrExtractionEmpty,
			"no purchase order data could be extracted from the document")
	}

	if timedOut {
		log.Warn("extraction result recovered after poll budget exhausted", zap.String("job_id", jobID))
	}
	o.storeWarn(o.store.UpdateStatus(ctx, runID, store.RunStatusNormalized), log)
	return o.apply(gen, record, "document read complete; review the extracted summary")
}

// awaitResult polls the job status at a fixed interval up to the attempt
// budget, then fetches the result exactly once. Failure statuses and
// transport errors during polling both proceed straight to the fetch: the
// service may attach partial data even for failed jobs, and showing the user
// something beats strict correctness here.
func (o *Orchestrator) awaitResult(ctx context.Context, jobID string, log *zap.Logger) (map[string]any, bool, error) {
	timedOut := true

poll:
	for attempt := 1; attempt <= o.cfg.MaxPollAttempts; attempt++ {
		status, err := o.ocr.Status(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, eris.Wrap(ctx.Err(), "workflow: poll cancelled")
			}
			log.Warn("status check failed, fetching result anyway",
				zap.String("job_id", jobID), zap.Int("attempt", attempt), zap.Error(err))
			timedOut = false
			break
		}

		if status.Terminal() {
			log.Info("extraction job reached terminal status",
				zap.String("job_id", jobID), zap.String("status", status.Status), zap.Int("attempt", attempt))
			timedOut = false
			break
		}

		if attempt == o.cfg.MaxPollAttempts {
			log.Warn("poll attempt budget exhausted", zap.String("job_id", jobID))
			break poll
		}

		select {
		case <-ctx.Done():
			return nil, false, eris.Wrap(ctx.Err(), "workflow: poll cancelled")
		case <-time.After(o.cfg.PollInterval):
		}
	}

	payload, err := o.ocr.Extract(ctx, jobID)
	return payload, timedOut, err
}

// begin starts a new workflow generation, orphaning any in-flight job.
func (o *Orchestrator) begin() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.generation++
	o.session.ClearMessages()
	o.session.ClearOverride()
	o.session.SetState(model.StateAwaitingExtraction)
	return o.generation
}

// apply installs a draft into the session, unless a newer submission has
// taken over.
func (o *Orchestrator) apply(gen uint64, record *model.PurchaseOrder, info string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		return ErrSuperseded
	}
	o.session.Replace(record)
	o.session.SetState(model.StateReviewingSummary)
	o.session.SetInfo(info)
	return nil
}

// fail records the outcome, surfaces the message on the session, and returns
// collecting-input, unless a newer submission has taken over.
func (o *Orchestrator) fail(ctx context.Context, gen uint64, runID string, status store.RunStatus, sentinel error, msg string) error {
	o.storeWarn(o.store.SetError(ctx, runID, status, msg), zap.L())

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		return ErrSuperseded
	}
	o.session.SetError(msg)
	o.session.SetState(model.StateCollectingInput)
	return eris.Wrap(sentinel, msg)
}

func (o *Orchestrator) createRun(ctx context.Context, filename string, log *zap.Logger) string {
	run, err := o.store.CreateRun(ctx, filename)
	if err != nil {
		log.Warn("failed to record intake run", zap.Error(err))
		return ""
	}
	return run.ID
}

// storeWarn logs run-history failures without letting them affect the
// workflow.
func (o *Orchestrator) storeWarn(err error, log *zap.Logger) {
	if err != nil {
		log.Warn("failed to update intake run", zap.Error(err))
	}
}

func (o *Orchestrator) uploadRetry() resilience.RetryConfig {
	cfg := o.cfg.Retry
	if cfg.MaxAttempts == 0 {
		cfg = resilience.DefaultRetryConfig()
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = shouldRetryUpload
	}
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("ocr", "upload")
	}
	return cfg
}

func shouldRetryUpload(err error) bool {
	var apiErr *ocr.APIError
	if errors.As(err, &apiErr) {
		return resilience.IsTransientHTTPStatus(apiErr.StatusCode)
	}
	return resilience.IsTransient(err)
}

// uploadErrorMessage extracts the most useful user-visible message from an
// upload failure.
func uploadErrorMessage(err error) string {
	var apiErr *ocr.APIError
	if errors.As(err, &apiErr) {
		if msg := apiErr.Message(); msg != "" {
			return msg
		}
	}
	return "uploading the document failed"
}
