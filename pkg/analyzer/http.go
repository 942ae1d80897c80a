package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxResponseBytes = 4 << 20

var (
	analyzerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "drivesense",
		Subsystem: "analyzer",
		Name:      "request_duration_seconds",
		Help:      "Duration of analyzer requests",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"outcome"})

	analyzerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "drivesense",
		Subsystem: "analyzer",
		Name:      "failures_total",
		Help:      "Number of failed analyzer requests",
	}, []string{"reason"})
)

// HTTPConfig configures the remote analyzer client.
type HTTPConfig struct {
	BaseURL   string
	Path      string
	FieldName string
	Timeout   time.Duration
	Client    *http.Client
	Logger    zerolog.Logger
}

// HTTPAnalyzer streams artifacts to the inference service as multipart uploads.
// It never retries; a failed call is reported to the caller as is.
type HTTPAnalyzer struct {
	endpoint string
	field    string
	timeout  time.Duration
	client   *http.Client
	tracer   trace.Tracer
	logger   zerolog.Logger
}

// NewHTTPAnalyzer builds an analyzer client for the configured endpoint.
func NewHTTPAnalyzer(cfg HTTPConfig) (*HTTPAnalyzer, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("analyzer base url is required")
	}
	if cfg.Path == "" {
		cfg.Path = "/api/detect/image"
	}
	if cfg.FieldName == "" {
		cfg.FieldName = "file"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}

	return &HTTPAnalyzer{
		endpoint: cfg.BaseURL + cfg.Path,
		field:    cfg.FieldName,
		timeout:  cfg.Timeout,
		client:   client,
		tracer:   otel.Tracer("github.com/noah-isme/drivesense-api/pkg/analyzer"),
		logger:   cfg.Logger.With().Str("component", "analyzer_client").Logger(),
	}, nil
}

// Analyze uploads the artifact at artifactPath and decodes the analyzer reply.
func (a *HTTPAnalyzer) Analyze(parent context.Context, artifactPath string) (Result, error) {
	ctx, span := a.tracer.Start(parent, "analyzer.analyze", trace.WithAttributes(
		attribute.String("analyzer.endpoint", a.endpoint),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	result, reason, err := a.do(ctx, artifactPath)
	duration := time.Since(start)
	if err != nil {
		analyzerDuration.WithLabelValues("failure").Observe(duration.Seconds())
		analyzerFailures.WithLabelValues(reason).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		a.logger.Warn().Err(err).Str("reason", reason).Dur("duration", duration).Msg("analyzer request failed")
		return Result{}, err
	}

	analyzerDuration.WithLabelValues("success").Observe(duration.Seconds())
	span.SetAttributes(attribute.String("analyzer.risk_level", result.RiskLevel))
	span.SetStatus(codes.Ok, "analyzed")

	return result, nil
}

func (a *HTTPAnalyzer) do(ctx context.Context, artifactPath string) (Result, string, error) {
	file, err := os.Open(artifactPath)
	if err != nil {
		return Result{}, "artifact", &Error{Op: "open artifact", Err: err}
	}
	defer file.Close()

	body, contentType := a.streamMultipart(file, filepath.Base(artifactPath))
	defer body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, body)
	if err != nil {
		return Result{}, "request", &Error{Op: "build request", Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		reason := "network"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		return Result{}, reason, &Error{Op: "post", Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, "network", &Error{Op: "read response", StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, "status", &Error{Op: "post", StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected response status")}
	}

	result, err := DecodeResult(payload)
	if err != nil {
		return Result{}, "payload", &Error{Op: "decode", StatusCode: resp.StatusCode, Err: err}
	}

	return result, "", nil
}

// streamMultipart pipes the artifact into a multipart body without buffering it.
// Closing the returned reader unblocks the writer if the request ends early.
func (a *HTTPAnalyzer) streamMultipart(file io.Reader, name string) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		part, err := writer.CreateFormFile(a.field, name)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.CloseWithError(writer.Close())
	}()

	return pr, writer.FormDataContentType()
}
