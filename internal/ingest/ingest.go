package ingest

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"waveline/internal/blobstore"
	"waveline/internal/config"
	"waveline/internal/errkind"
	"waveline/internal/fingerprint"
	"waveline/internal/ledger"
	"waveline/internal/logging"
	"waveline/internal/media/ffprobe"
)

// Enqueuer is the queue surface admission needs.
type Enqueuer interface {
	EnqueueTranscode(ctx context.Context, recordID, originalKey string) error
}

// ProbeFunc inspects a local media file. Tests swap this to avoid running
// ffprobe.
type ProbeFunc func(ctx context.Context, binary, path string) (ffprobe.Result, error)

// Upload describes a file that has already been spooled to local disk.
type Upload struct {
	// TempPath is the spooled file. Admit owns it: the file is removed
	// before Admit returns, on every path.
	TempPath    string
	Filename    string
	Source      string
	ExternalRef string
}

// Admission is the outcome of an accepted upload.
type Admission struct {
	Record *ledger.Record
	// Cached is true when the upload collapsed onto an existing record.
	Cached bool
}

// Service admits uploads into the pipeline.
type Service struct {
	cfg     *config.Config
	store   *ledger.Store
	blobs   blobstore.Store
	queue   Enqueuer
	probe   ProbeFunc
	logger  *slog.Logger
	newUUID func() string
}

// NewService wires admission against its collaborators.
func NewService(cfg *config.Config, store *ledger.Store, blobs blobstore.Store, queue Enqueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		cfg:     cfg,
		store:   store,
		blobs:   blobs,
		queue:   queue,
		probe:   ffprobe.Inspect,
		logger:  logging.NewComponentLogger(logger, "ingest"),
		newUUID: uuid.NewString,
	}
}

// WithProbe replaces the media prober. Intended for tests.
func (s *Service) WithProbe(probe ProbeFunc) *Service {
	if probe != nil {
		s.probe = probe
	}
	return s
}

// Admit runs the full admission sequence: validate, probe the codec, compute
// the content fingerprint, dedupe against the ledger, store the original,
// persist a pending record, and enqueue its transcode job. No side effect is
// externally visible unless the record insert commits.
func (s *Service) Admit(ctx context.Context, upload Upload) (Admission, error) {
	defer func() {
		if upload.TempPath != "" {
			_ = os.Remove(upload.TempPath)
		}
	}()

	if strings.TrimSpace(upload.TempPath) == "" {
		return Admission{}, errkind.New(errkind.KindValidation, "file is required")
	}
	if strings.TrimSpace(upload.Source) == "" {
		return Admission{}, errkind.New(errkind.KindValidation, "source is required")
	}

	if err := s.validateCodec(ctx, upload.TempPath); err != nil {
		return Admission{}, err
	}

	hash, err := fingerprint.File(upload.TempPath)
	if err != nil {
		return Admission{}, errkind.Wrap(errkind.KindInternal, "fingerprint upload", err)
	}

	existing, err := s.store.FindByHash(ctx, hash)
	if err != nil {
		return Admission{}, errkind.Wrap(errkind.KindInternal, "query ledger", err)
	}
	if existing != nil {
		s.logger.Info("duplicate upload collapsed onto existing record",
			logging.String(logging.FieldRecordID, existing.ID),
			logging.String("content_hash", hash),
		)
		return Admission{Record: existing, Cached: true}, nil
	}

	recordID := s.newUUID()
	originalKey := blobstore.OriginalKey(recordID, upload.Filename)
	if err := s.blobs.UploadFile(ctx, originalKey, upload.TempPath, ""); err != nil {
		return Admission{}, errkind.Wrap(errkind.KindInternal, "store original", err)
	}

	candidate := &ledger.Record{
		ID:          recordID,
		ContentHash: hash,
		Source:      strings.TrimSpace(upload.Source),
		ExternalRef: strings.TrimSpace(upload.ExternalRef),
		OriginalKey: originalKey,
	}
	record, deduped, err := s.store.Create(ctx, candidate)
	if err != nil {
		return Admission{}, errkind.Wrap(errkind.KindInternal, "persist record", err)
	}
	if deduped {
		// A concurrent duplicate won the insert; our just-uploaded original
		// is unreferenced. Removal is best effort.
		if rmErr := s.blobs.Remove(ctx, originalKey); rmErr != nil {
			s.logger.Warn("failed to remove orphaned original after dedupe race",
				logging.String("key", originalKey),
				logging.Error(rmErr),
			)
		}
		s.logger.Info("concurrent duplicate collapsed onto existing record",
			logging.String(logging.FieldRecordID, record.ID),
			logging.String("content_hash", hash),
		)
		return Admission{Record: record, Cached: true}, nil
	}

	if err := s.queue.EnqueueTranscode(ctx, record.ID, originalKey); err != nil {
		return Admission{}, errkind.Wrap(errkind.KindInternal, "enqueue transcode", err)
	}

	s.logger.Info("accepted upload",
		logging.String(logging.FieldRecordID, record.ID),
		logging.String("content_hash", hash),
		logging.String("source", record.Source),
	)
	return Admission{Record: record, Cached: false}, nil
}

func (s *Service) validateCodec(ctx context.Context, path string) error {
	result, err := s.probe(ctx, s.cfg.Transcode.FFprobeBinary, path)
	if err != nil {
		return errkind.Wrap(errkind.KindFormatRejected, "file could not be parsed as audio", err)
	}

	codecs := result.AudioCodecs()
	if len(codecs) == 0 {
		return errkind.New(errkind.KindFormatRejected, "file has no audio streams").
			WithDetail("detected_codecs", []string{})
	}

	required := s.cfg.Ingest.RequiredCodec
	if !result.HasAudioCodec(required) {
		return errkind.Newf(errkind.KindFormatRejected, "required codec %s not present", required).
			WithDetail("detected_codecs", codecs)
	}
	return nil
}
