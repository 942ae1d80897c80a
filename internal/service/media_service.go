package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/drivesense-api/internal/models"
	"github.com/noah-isme/drivesense-api/internal/observability"
)

const (
	defaultMaxUploadBytes = 50 * 1024 * 1024
	sniffLength           = 3072
)

var allowedMediaTypes = map[string]models.DetectionKind{
	"image/jpeg": models.DetectionKindImage,
	"image/png":  models.DetectionKindImage,
	"video/mp4":  models.DetectionKindVideo,
	"video/mpeg": models.DetectionKindVideo,
}

// ArtifactStore persists accepted artifacts. pkg/storage.Local implements it.
type ArtifactStore interface {
	Save(ctx context.Context, name string, reader io.Reader) (string, int64, error)
	Remove(path string) error
}

// ArtifactArchiver mirrors stored artifacts to a remote location and returns its URL.
type ArtifactArchiver interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// Upload is one incoming artifact stream with its declared metadata.
type Upload struct {
	Reader   io.Reader
	FileName string
	MimeType string
	Size     int64
	Kind     models.DetectionKind
}

// StoredArtifact describes an accepted artifact on durable storage.
type StoredArtifact struct {
	Path       string
	FileName   string
	StoredName string
	MimeType   string
	Kind       models.DetectionKind
	SizeBytes  int64
	Checksum   string
	ArchiveURL string
}

// MediaIntake validates artifacts and writes them to storage.
type MediaIntake interface {
	Accept(ctx context.Context, upload Upload) (StoredArtifact, error)
	Discard(artifact StoredArtifact) error
}

type mediaIntake struct {
	store    ArtifactStore
	archiver ArtifactArchiver
	maxSize  int64
	now      func() time.Time
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewMediaIntake constructs the intake. archiver may be nil.
func NewMediaIntake(store ArtifactStore, archiver ArtifactArchiver, maxBytes int64, logger zerolog.Logger) MediaIntake {
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}

	return &mediaIntake{
		store:    store,
		archiver: archiver,
		maxSize:  maxBytes,
		now:      time.Now,
		logger:   logger.With().Str("component", "media_intake").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/drivesense-api/internal/service/media"),
	}
}

func (s *mediaIntake) Accept(ctx context.Context, upload Upload) (StoredArtifact, error) {
	ctx, span := s.tracer.Start(ctx, "media.accept", trace.WithAttributes(
		attribute.String("media.kind", string(upload.Kind)),
		attribute.String("media.declared_type", upload.MimeType),
		attribute.Int64("media.declared_size", upload.Size),
		attribute.Int64("media.max_bytes", s.maxSize),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		observability.UploadLatency().Observe(time.Since(start).Seconds())
	}()

	if upload.Reader == nil {
		span.RecordError(ErrFileRequired)
		span.SetStatus(codes.Error, "validation failed")
		return StoredArtifact{}, ErrFileRequired
	}

	if upload.Size > s.maxSize {
		return StoredArtifact{}, s.reject(span, "size", ErrUploadTooLarge)
	}

	reader := upload.Reader
	mimeType := normalizeMime(upload.MimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		head := make([]byte, sniffLength)
		n, err := io.ReadFull(reader, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "read failed")
			return StoredArtifact{}, fmt.Errorf("read artifact: %w", err)
		}
		head = head[:n]
		mimeType = normalizeMime(mimetype.Detect(head).String())
		reader = io.MultiReader(bytes.NewReader(head), reader)
		span.SetAttributes(attribute.String("media.detected_type", mimeType))
	}

	kind, ok := allowedMediaTypes[mimeType]
	if !ok || (upload.Kind != "" && kind != upload.Kind) {
		return StoredArtifact{}, s.reject(span, "type", ErrUploadTypeNotAllowed)
	}

	storedName := s.uniqueName(kind, upload.FileName, mimeType)
	hasher := sha256.New()
	limited := io.LimitReader(reader, s.maxSize+1)

	path, written, err := s.store.Save(ctx, storedName, io.TeeReader(limited, hasher))
	if err != nil {
		observability.UploadRejected().WithLabelValues("storage").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return StoredArtifact{}, err
	}

	if written > s.maxSize {
		if removeErr := s.store.Remove(path); removeErr != nil {
			s.logger.Warn().Err(removeErr).Str("path", path).Msg("failed to remove oversized artifact")
		}
		return StoredArtifact{}, s.reject(span, "size", ErrUploadTooLarge)
	}

	artifact := StoredArtifact{
		Path:       path,
		FileName:   originalFileName(upload.FileName, storedName),
		StoredName: storedName,
		MimeType:   mimeType,
		Kind:       kind,
		SizeBytes:  written,
		Checksum:   hex.EncodeToString(hasher.Sum(nil)),
	}

	if s.archiver != nil {
		artifact.ArchiveURL = s.archive(ctx, artifact)
	}

	observability.UploadRequests().WithLabelValues(mimeType).Inc()
	span.SetAttributes(
		attribute.String("media.stored_name", storedName),
		attribute.Int64("media.size_bytes", written),
	)
	span.SetStatus(codes.Ok, "stored")

	return artifact, nil
}

func (s *mediaIntake) Discard(artifact StoredArtifact) error {
	if artifact.Path == "" {
		return nil
	}
	return s.store.Remove(artifact.Path)
}

func (s *mediaIntake) reject(span trace.Span, reason string, err error) error {
	observability.UploadRejected().WithLabelValues(reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (s *mediaIntake) archive(ctx context.Context, artifact StoredArtifact) string {
	file, err := os.Open(artifact.Path)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", artifact.Path).Msg("failed to open artifact for archiving")
		return ""
	}
	defer file.Close()

	url, err := s.archiver.Upload(ctx, artifact.StoredName, file)
	if err != nil {
		s.logger.Warn().Err(err).Str("stored_name", artifact.StoredName).Msg("artifact archive mirror failed")
		return ""
	}

	return url
}

// uniqueName builds "<kind>-<unix millis>-<uuid><ext>".
func (s *mediaIntake) uniqueName(kind models.DetectionKind, original, mimeType string) string {
	return fmt.Sprintf("%s-%d-%s%s", kind, s.now().UnixMilli(), uuid.NewString(), artifactExtension(original, mimeType))
}

func artifactExtension(original, mimeType string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(original)))
	if isSafeExtension(ext) {
		return ext
	}
	if detected := mimetype.Lookup(mimeType); detected != nil {
		return detected.Extension()
	}
	return ""
}

func isSafeExtension(ext string) bool {
	if len(ext) < 2 || len(ext) > 10 || ext[0] != '.' {
		return false
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func originalFileName(name, fallback string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return fallback
	}
	if len(name) > 255 {
		name = name[len(name)-255:]
	}
	return name
}

func normalizeMime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(value); err == nil {
		return strings.ToLower(parsed)
	}
	return strings.ToLower(value)
}
