// Package delivery resolves download requests into stored objects.
//
// Resolve maps an identity plus a variant selector onto a blob key and the
// response metadata that goes with it, reporting kinded errors so the API
// layer can distinguish a missing record, a variant that is not ready yet,
// and an object that vanished from storage. Stream and Redirect are the two
// ways of handing the bytes to the caller.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"waveline/internal/blobstore"
	"waveline/internal/errkind"
	"waveline/internal/ledger"
)

// VariantOriginal selects the untouched upload; derived formats select their
// transcoded variant.
const VariantOriginal = "original"

// Resolution describes the object backing a download request.
type Resolution struct {
	Key         string
	ContentType string
	Filename    string
	Size        int64
}

// Service resolves and serves stored audio.
type Service struct {
	store *ledger.Store
	blobs blobstore.Store
}

// NewService wires delivery against the ledger and blob store.
func NewService(store *ledger.Store, blobs blobstore.Store) *Service {
	return &Service{store: store, blobs: blobs}
}

// Resolve validates the identity and variant selector, loads the record, and
// confirms the backing object exists. The returned filename combines the
// identity and variant so downloads are self-describing.
func (s *Service) Resolve(ctx context.Context, id, variant string) (Resolution, error) {
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return Resolution{}, errkind.Newf(errkind.KindValidation, "invalid record id %q", id)
	}
	variant = strings.ToLower(strings.TrimSpace(variant))
	if variant == "" {
		variant = VariantOriginal
	}
	if err := validateVariant(variant); err != nil {
		return Resolution{}, err
	}

	record, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Resolution{}, errkind.Wrap(errkind.KindInternal, "load record", err)
	}
	if record == nil {
		return Resolution{}, errkind.Newf(errkind.KindNotFound, "record %s not found", id)
	}

	key, err := resolveKey(record, variant)
	if err != nil {
		return Resolution{}, err
	}

	info, err := s.blobs.Stat(ctx, key)
	if err != nil {
		if errors.Is(err, blobstore.ErrObjectMissing) {
			return Resolution{}, errkind.Newf(errkind.KindObjectMissing, "stored object for %s/%s is missing", id, variant)
		}
		return Resolution{}, errkind.Wrap(errkind.KindInternal, "stat object", err)
	}

	contentType := info.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = blobstore.ContentTypeForKey(key)
	}
	return Resolution{
		Key:         key,
		ContentType: contentType,
		Filename:    downloadFilename(id, variant, key),
		Size:        info.Size,
	}, nil
}

// Stream copies the resolved object's bytes to w.
func (s *Service) Stream(ctx context.Context, res Resolution, w io.Writer) error {
	reader, _, err := s.blobs.Open(ctx, res.Key)
	if err != nil {
		if errors.Is(err, blobstore.ErrObjectMissing) {
			return errkind.Newf(errkind.KindObjectMissing, "stored object %s is missing", res.Key)
		}
		return errkind.Wrap(errkind.KindInternal, "open object", err)
	}
	defer reader.Close()

	if _, err := io.Copy(w, reader); err != nil {
		return fmt.Errorf("stream %s: %w", res.Key, err)
	}
	return nil
}

// RedirectURL returns a presigned URL for the resolved object.
func (s *Service) RedirectURL(ctx context.Context, res Resolution) (string, error) {
	target, err := s.blobs.PresignGet(ctx, res.Key, res.Filename)
	if err != nil {
		return "", errkind.Wrap(errkind.KindInternal, "presign object", err)
	}
	return target, nil
}

func validateVariant(variant string) error {
	if variant == VariantOriginal {
		return nil
	}
	if _, ok := ledger.ParseFormat(variant); !ok {
		return errkind.Newf(errkind.KindValidation, "unknown format selector %q", variant).
			WithDetail("allowed", allowedVariants())
	}
	return nil
}

func resolveKey(record *ledger.Record, variant string) (string, error) {
	if variant == VariantOriginal {
		return record.OriginalKey, nil
	}
	format := ledger.Format(variant)
	key, ok := record.DerivedKey(format)
	if !ok {
		return "", errkind.Newf(errkind.KindNotReady, "%s variant is not ready", variant).
			WithDetail("status", string(record.Status))
	}
	return key, nil
}

func downloadFilename(id, variant, key string) string {
	ext := ""
	if idx := strings.LastIndex(key, "."); idx >= 0 {
		ext = key[idx:]
	}
	return id + "-" + variant + ext
}

func allowedVariants() []string {
	allowed := []string{VariantOriginal}
	for _, format := range ledger.DerivedFormats() {
		allowed = append(allowed, string(format))
	}
	return allowed
}
