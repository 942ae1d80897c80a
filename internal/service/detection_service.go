package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/drivesense-api/internal/dto"
	"github.com/noah-isme/drivesense-api/internal/models"
	"github.com/noah-isme/drivesense-api/internal/observability"
	"github.com/noah-isme/drivesense-api/internal/repository"
	"github.com/noah-isme/drivesense-api/pkg/analyzer"
)

// SubmissionState tracks one submission through the pipeline.
type SubmissionState string

const (
	StateReceived  SubmissionState = "received"
	StateRecorded  SubmissionState = "recorded"
	StateAnalyzed  SubmissionState = "analyzed"
	StateCompleted SubmissionState = "completed"
	StateDeferred  SubmissionState = "deferred"
	StateFailed    SubmissionState = "failed"
)

// SubmissionError reports a submission that failed after its record became
// durable. State is the last state reached before the failure.
type SubmissionError struct {
	DetectionID uint
	State       SubmissionState
	Err         error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("detection %d failed after %s: %v", e.DetectionID, e.State, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// DetectionService runs submissions from accepted artifact to persisted result.
type DetectionService interface {
	SubmitImage(ctx context.Context, ownerID uint, upload Upload) (dto.ImageDetectionResponse, error)
	SubmitVideo(ctx context.Context, ownerID uint, upload Upload) (dto.VideoDetectionResponse, error)
}

// DetectionServiceConfig tunes the orchestrator.
type DetectionServiceConfig struct {
	AlertMinRisk models.RiskLevel
}

type detectionService struct {
	intake   MediaIntake
	repo     repository.DetectionRepository
	analyzer analyzer.Analyzer
	events   EventPublisher
	deferred DeferredQueue
	alertMin models.RiskLevel
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewDetectionService wires the submission pipeline. events and deferred may be nil.
func NewDetectionService(intake MediaIntake, repo repository.DetectionRepository, client analyzer.Analyzer, events EventPublisher, deferred DeferredQueue, cfg DetectionServiceConfig, logger zerolog.Logger) DetectionService {
	alertMin := cfg.AlertMinRisk
	if alertMin.Rank() < 0 {
		alertMin = models.RiskHigh
	}

	service := &detectionService{
		intake:   intake,
		repo:     repo,
		analyzer: client,
		events:   events,
		deferred: deferred,
		alertMin: alertMin,
		logger:   logger.With().Str("component", "detection_service").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/drivesense-api/internal/service/detection"),
	}
	if service.deferred == nil {
		service.deferred = NewDeferredQueue(nil, "", logger)
	}

	return service
}

func (s *detectionService) SubmitImage(ctx context.Context, ownerID uint, upload Upload) (dto.ImageDetectionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "detection.submit_image", trace.WithAttributes(attribute.Int("detection.owner_id", int(ownerID))))
	defer span.End()

	kind := string(models.DetectionKindImage)
	start := time.Now()
	defer func() {
		observability.SubmissionLatency().WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	upload.Kind = models.DetectionKindImage
	record, err := s.record(ctx, span, ownerID, upload)
	if err != nil {
		return dto.ImageDetectionResponse{}, err
	}

	logger := s.logger.With().Uint("detection_id", record.ID).Uint("user_id", ownerID).Logger()

	payload, err := s.analyzer.Analyze(ctx, record.FilePath)
	if err != nil {
		logger.Error().Err(err).Msg("analyzer call failed")
		return dto.ImageDetectionResponse{}, s.fail(span, record.ID, StateRecorded, err)
	}
	span.AddEvent(string(StateAnalyzed))

	result, err := newAnalysisResult(record.ID, payload)
	if err != nil {
		logger.Error().Err(err).Msg("analyzer returned an unusable result")
		return dto.ImageDetectionResponse{}, s.fail(span, record.ID, StateRecorded, err)
	}
	if err := s.repo.AttachResult(ctx, &result); err != nil {
		logger.Error().Err(err).Msg("failed to persist analysis result")
		return dto.ImageDetectionResponse{}, s.fail(span, record.ID, StateAnalyzed, err)
	}

	observability.Submissions().WithLabelValues(kind, string(StateCompleted)).Inc()
	observability.AnalysisRisk().WithLabelValues(string(result.RiskLevel)).Inc()
	span.SetAttributes(attribute.String("detection.risk_level", string(result.RiskLevel)))
	span.SetStatus(codes.Ok, string(StateCompleted))
	logger.Info().Str("risk_level", string(result.RiskLevel)).Msg("detection completed")

	s.publish(ctx, ownerID, result)

	return dto.ImageDetectionResponse{
		Success:        true,
		DetectionID:    record.ID,
		Status:         models.DetectionStatusCompleted,
		AnalysisResult: dto.NewAnalysisResultResponse(result),
	}, nil
}

// SubmitVideo records the artifact and hands it to the deferred queue; no
// inline analysis runs for video.
func (s *detectionService) SubmitVideo(ctx context.Context, ownerID uint, upload Upload) (dto.VideoDetectionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "detection.submit_video", trace.WithAttributes(attribute.Int("detection.owner_id", int(ownerID))))
	defer span.End()

	kind := string(models.DetectionKindVideo)
	start := time.Now()
	defer func() {
		observability.SubmissionLatency().WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	upload.Kind = models.DetectionKindVideo
	record, err := s.record(ctx, span, ownerID, upload)
	if err != nil {
		return dto.VideoDetectionResponse{}, err
	}

	job := DeferredJob{
		DetectionID: record.ID,
		UserID:      ownerID,
		Kind:        kind,
		FilePath:    record.FilePath,
		MimeType:    record.MimeType,
		EnqueuedAt:  time.Now().UTC(),
	}
	if err := s.deferred.Enqueue(ctx, job); err != nil {
		s.logger.Warn().Err(err).Uint("detection_id", record.ID).Msg("failed to enqueue deferred video job")
	}

	observability.Submissions().WithLabelValues(kind, string(StateDeferred)).Inc()
	span.SetStatus(codes.Ok, string(StateDeferred))

	return dto.VideoDetectionResponse{
		Success:     true,
		DetectionID: record.ID,
		Status:      "processing",
		State:       models.DetectionStatusDeferred,
		Message:     "video accepted; analysis is deferred",
	}, nil
}

// record moves a submission from Received to Recorded.
func (s *detectionService) record(ctx context.Context, span trace.Span, ownerID uint, upload Upload) (models.DetectionRecord, error) {
	kind := string(upload.Kind)

	artifact, err := s.intake.Accept(ctx, upload)
	if err != nil {
		observability.Submissions().WithLabelValues(kind, "rejected").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "intake rejected")
		return models.DetectionRecord{}, err
	}
	span.AddEvent(string(StateReceived))

	record := models.DetectionRecord{
		UserID:     ownerID,
		Kind:       artifact.Kind,
		FilePath:   artifact.Path,
		FileName:   artifact.FileName,
		MimeType:   artifact.MimeType,
		SizeBytes:  artifact.SizeBytes,
		Checksum:   artifact.Checksum,
		ArchiveURL: artifact.ArchiveURL,
	}
	if err := s.repo.Create(ctx, &record); err != nil {
		if discardErr := s.intake.Discard(artifact); discardErr != nil {
			s.logger.Warn().Err(discardErr).Str("path", artifact.Path).Msg("failed to discard unrecorded artifact")
		}
		observability.Submissions().WithLabelValues(kind, string(StateFailed)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "record failed")
		return models.DetectionRecord{}, fmt.Errorf("create detection record: %w", err)
	}

	span.AddEvent(string(StateRecorded))
	span.SetAttributes(attribute.Int("detection.id", int(record.ID)))
	s.logger.Info().Uint("detection_id", record.ID).Str("kind", kind).Msg("detection recorded")

	return record, nil
}

func (s *detectionService) fail(span trace.Span, detectionID uint, state SubmissionState, cause error) error {
	observability.Submissions().WithLabelValues(string(models.DetectionKindImage), string(StateFailed)).Inc()
	span.RecordError(cause)
	span.SetStatus(codes.Error, "analysis failed")

	err := cause
	if !errors.Is(cause, ErrAnalysisFailed) {
		err = fmt.Errorf("%w: %w", ErrAnalysisFailed, cause)
	}

	return &SubmissionError{DetectionID: detectionID, State: state, Err: err}
}

func (s *detectionService) publish(ctx context.Context, ownerID uint, result models.AnalysisResult) {
	if s.events == nil {
		return
	}

	event := dto.DetectionEvent{
		Type:         dto.DetectionEventCompleted,
		UserID:       ownerID,
		DetectionID:  result.DetectionID,
		Emotion:      result.Emotion,
		DrivingState: result.DrivingState,
		RiskLevel:    string(result.RiskLevel),
		RiskColor:    result.RiskColor,
		Alert:        result.RiskLevel.Rank() >= s.alertMin.Rank(),
		OccurredAt:   time.Now().UTC(),
	}

	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Uint("detection_id", result.DetectionID).Msg("failed to publish detection event")
	}
}

func newAnalysisResult(detectionID uint, payload analyzer.Result) (models.AnalysisResult, error) {
	level, ok := models.ParseRiskLevel(payload.RiskLevel)
	if !ok {
		return models.AnalysisResult{}, &analyzer.Error{Op: "decode", Err: fmt.Errorf("unknown risk level %q", payload.RiskLevel)}
	}
	activeAUs := analyzer.UniqueAUs(payload.ActiveAUs)

	details := datatypes.JSON(payload.Details)
	if len(details) == 0 {
		details = datatypes.JSON(`{}`)
	}

	return models.AnalysisResult{
		DetectionID:            detectionID,
		Emotion:                payload.Emotion,
		EmotionConfidence:      payload.EmotionConfidence,
		Valence:                payload.Valence,
		Arousal:                payload.Arousal,
		ActiveAUs:              datatypes.JSONSlice[string](activeAUs),
		AUCount:                len(activeAUs),
		DrivingState:           payload.DrivingState,
		DrivingStateConfidence: payload.DrivingStateConfidence,
		RiskLevel:              level,
		RiskColor:              payload.RiskColor,
		Recommendation:         payload.Recommendation,
		Details:                details,
	}, nil
}
