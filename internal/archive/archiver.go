// Package archive downloads listing images and writes them to blob storage
// under deterministic keys.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/petlife-ingest/pet-crawler/internal/pet"
	"github.com/petlife-ingest/pet-crawler/internal/retry"
)

// DefaultMaxImageBytes caps downloaded image size at 10 MB.
const DefaultMaxImageBytes = 10 * 1024 * 1024

// Config controls archiver behavior.
type Config struct {
	MaxImageBytes int64
}

// Archiver fetches an item's image and stores original and derived
// variants. Keys are stable per item, so re-archiving overwrites instead
// of duplicating.
type Archiver struct {
	fetcher pet.Fetcher
	blobs   pet.BlobStore
	cfg     Config
	logger  *zap.Logger
}

// New constructs an Archiver.
func New(fetcher pet.Fetcher, blobs pet.BlobStore, cfg Config, logger *zap.Logger) *Archiver {
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = DefaultMaxImageBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		fetcher: fetcher,
		blobs:   blobs,
		cfg:     cfg,
		logger:  logger,
	}
}

// Archive downloads the item's image and writes the original plus a
// derived variant. Items without an http(s) image URL are skipped
// silently. Oversized or non-image payloads are rejected without error;
// only transport and storage failures propagate.
func (a *Archiver) Archive(ctx context.Context, p pet.Pet) (pet.ArchiveResult, error) {
	result := pet.ArchiveResult{}
	url := strings.TrimSpace(p.ImageURL)
	if url == "" || !isHTTP(url) {
		return result, nil
	}

	data, err := retry.DoValue(ctx, retry.HTTPConfig(), func(ctx context.Context) ([]byte, error) {
		return a.fetcher.FetchPage(ctx, url)
	})
	if err != nil {
		return result, fmt.Errorf("download image for %s: %w", p.ID, err)
	}

	if int64(len(data)) > a.cfg.MaxImageBytes {
		a.logger.Warn("image exceeds size limit, skipping",
			zap.String("pet_id", p.ID),
			zap.Int("size_bytes", len(data)),
			zap.Int64("limit_bytes", a.cfg.MaxImageBytes),
		)
		return result, nil
	}

	// Content type comes from magic bytes, never from response headers.
	contentType, ext := sniffImage(data)
	if ext == "" {
		a.logger.Warn("payload is not a supported image, skipping",
			zap.String("pet_id", p.ID),
			zap.String("sniffed_type", contentType),
		)
		return result, nil
	}

	originalKey := OriginalKey(p.Type, p.ID, ext)
	if _, err := a.blobs.PutObject(ctx, originalKey, contentType, bytes.NewReader(data)); err != nil {
		return result, fmt.Errorf("store original image for %s: %w", p.ID, err)
	}
	result.HasOriginal = true

	// No transcoding backend is wired in; the derived key reuses the
	// original bytes so the key scheme stays stable for downstream stages.
	derivedKey := DerivedKey(p.Type, p.ID, ext)
	if _, err := a.blobs.PutObject(ctx, derivedKey, contentType, bytes.NewReader(data)); err != nil {
		return result, fmt.Errorf("store derived image for %s: %w", p.ID, err)
	}
	result.HasDerived = true

	return result, nil
}

// OriginalKey is the blob key for an item's original image.
func OriginalKey(petType pet.Type, id, ext string) string {
	return fmt.Sprintf("%ss/%s/original.%s", petType, id, ext)
}

// DerivedKey is the blob key for an item's derived image variant.
func DerivedKey(petType pet.Type, id, ext string) string {
	return fmt.Sprintf("%ss/%s/derived.%s", petType, id, ext)
}

func isHTTP(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

func sniffImage(data []byte) (contentType, ext string) {
	contentType = http.DetectContentType(data)
	switch contentType {
	case "image/jpeg":
		return contentType, "jpg"
	case "image/png":
		return contentType, "png"
	case "image/gif":
		return contentType, "gif"
	case "image/webp":
		return contentType, "webp"
	default:
		return contentType, ""
	}
}
