package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/hibiken/asynq"

	"waveline/internal/blobstore"
	"waveline/internal/config"
	"waveline/internal/jobs"
	"waveline/internal/ledger"
	"waveline/internal/logging"
	"waveline/internal/media/transcode"
	"waveline/internal/scratch"
)

// Outcome classifies a processing attempt.
type Outcome int

const (
	// OutcomeDone means the job finished and must not be redelivered.
	OutcomeDone Outcome = iota
	// OutcomeRetry means the attempt failed but a later attempt may succeed.
	OutcomeRetry
	// OutcomeFatal means retrying cannot help; the job is terminal.
	OutcomeFatal
)

// Handler processes transcode jobs delivered by the queue.
type Handler struct {
	cfg        *config.Config
	store      *ledger.Store
	blobs      blobstore.Store
	transcoder transcode.Client
	logger     *slog.Logger
}

// NewHandler wires the transcode worker against its collaborators.
func NewHandler(cfg *config.Config, store *ledger.Store, blobs blobstore.Store, transcoder transcode.Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		cfg:        cfg,
		store:      store,
		blobs:      blobs,
		transcoder: transcoder,
		logger:     logging.NewComponentLogger(logger, "worker"),
	}
}

// ProcessTask implements asynq.Handler. It maps the explicit processing
// outcome onto the queue contract: done acknowledges, retry propagates the
// error so the backoff policy reschedules, fatal records the terminal
// failure and stops redelivery.
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := jobs.ParseTranscodePayload(task)
	if err != nil {
		return fmt.Errorf("malformed task: %v: %w", err, asynq.SkipRetry)
	}

	retried, retriedOK := asynq.GetRetryCount(ctx)
	maxRetry, maxOK := asynq.GetMaxRetry(ctx)
	attempt := retried + 1
	finalAttempt := retriedOK && maxOK && retried >= maxRetry

	logger := h.logger.With(
		logging.String(logging.FieldRecordID, payload.RecordID),
		logging.Int(logging.FieldAttempt, attempt),
	)

	outcome, procErr := h.process(ctx, payload, attempt, logger)
	switch outcome {
	case OutcomeDone:
		return nil
	case OutcomeFatal:
		h.recordFailure(payload.RecordID, attempt, procErr, logger)
		return fmt.Errorf("transcode %s: %v: %w", payload.RecordID, procErr, asynq.SkipRetry)
	default:
		if finalAttempt {
			h.recordFailure(payload.RecordID, attempt, procErr, logger)
		} else {
			logger.Warn("transcode attempt failed, leaving record pending for retry",
				logging.Error(procErr),
			)
		}
		return fmt.Errorf("transcode %s: %w", payload.RecordID, procErr)
	}
}

func (h *Handler) process(ctx context.Context, payload jobs.TranscodePayload, attempt int, logger *slog.Logger) (Outcome, error) {
	record, err := h.store.GetByID(ctx, payload.RecordID)
	if err != nil {
		return OutcomeRetry, fmt.Errorf("load record: %w", err)
	}
	if record == nil {
		return OutcomeFatal, fmt.Errorf("record %s does not exist", payload.RecordID)
	}
	if record.Status.IsTerminal() {
		// Redelivery after completion or failure is a no-op.
		logger.Info("skipping redelivered job for terminal record",
			logging.String("status", string(record.Status)),
		)
		return OutcomeDone, nil
	}

	if err := h.store.RecordAttempt(ctx, record.ID, attempt); err != nil {
		logger.Warn("failed to record attempt count", logging.Error(err))
	}

	dir, release, err := scratch.Acquire(h.cfg.Paths.ScratchDir, record.ID)
	if err != nil {
		return OutcomeRetry, fmt.Errorf("acquire scratch: %w", err)
	}
	defer release()

	sourcePath := filepath.Join(dir, "original"+filepath.Ext(record.OriginalKey))
	if err := h.blobs.DownloadFile(ctx, record.OriginalKey, sourcePath); err != nil {
		return OutcomeRetry, fmt.Errorf("fetch original: %w", err)
	}

	outputs, err := h.transcodeAll(ctx, sourcePath, dir)
	if err != nil {
		return OutcomeRetry, err
	}

	derived, err := h.uploadAll(ctx, record.ID, outputs)
	if err != nil {
		return OutcomeRetry, err
	}

	if err := h.store.MarkCompleted(ctx, record.ID, derived); err != nil {
		if errors.Is(err, ledger.ErrNotPending) {
			logger.Info("record reached terminal state elsewhere, treating as done")
			return OutcomeDone, nil
		}
		return OutcomeRetry, fmt.Errorf("mark completed: %w", err)
	}

	logger.Info("transcode completed",
		logging.String("mp3", derived[ledger.FormatMP3]),
		logging.String("wav", derived[ledger.FormatWAV]),
	)
	return OutcomeDone, nil
}

// transcodeAll produces every derived format concurrently. A failure in one
// cancels the other.
func (h *Handler) transcodeAll(ctx context.Context, sourcePath, dir string) (map[ledger.Format]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		format ledger.Format
		path   string
		err    error
	}

	formats := ledger.DerivedFormats()
	results := make(chan result, len(formats))
	var wg sync.WaitGroup
	for _, format := range formats {
		wg.Add(1)
		go func(format ledger.Format) {
			defer wg.Done()
			path, err := h.transcoder.Transcode(ctx, sourcePath, dir, format)
			if err != nil {
				cancel()
			}
			results <- result{format: format, path: path, err: err}
		}(format)
	}
	wg.Wait()
	close(results)

	outputs := make(map[ledger.Format]string, len(formats))
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("produce %s: %w", res.format, res.err)
			}
			continue
		}
		outputs[res.format] = res.path
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return outputs, nil
}

func (h *Handler) uploadAll(ctx context.Context, recordID string, outputs map[ledger.Format]string) (map[ledger.Format]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		format ledger.Format
		key    string
		err    error
	}

	results := make(chan result, len(outputs))
	var wg sync.WaitGroup
	for format, path := range outputs {
		wg.Add(1)
		go func(format ledger.Format, path string) {
			defer wg.Done()
			key := blobstore.DerivedKey(recordID, format)
			err := h.blobs.UploadFile(ctx, key, path, "")
			if err != nil {
				cancel()
			}
			results <- result{format: format, key: key, err: err}
		}(format, path)
	}
	wg.Wait()
	close(results)

	derived := make(map[ledger.Format]string, len(outputs))
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("upload %s: %w", res.format, res.err)
			}
			continue
		}
		derived[res.format] = res.key
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return derived, nil
}

// recordFailure drives the ledger to failed. It runs on a fresh context so a
// canceled job context cannot block the terminal write.
func (h *Handler) recordFailure(recordID string, attempt int, cause error, logger *slog.Logger) {
	message := "transcode failed"
	if cause != nil {
		message = cause.Error()
	}
	if err := h.store.MarkFailed(context.Background(), recordID, message, attempt); err != nil {
		if errors.Is(err, ledger.ErrNotPending) {
			return
		}
		logger.Error("failed to record terminal failure", logging.Error(err))
		return
	}
	logger.Error("transcode failed permanently", logging.Error(cause))
}
