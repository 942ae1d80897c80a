package analyzer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const endpoint = "http://analyzer.test/api/detect/image"

const successPayload = `{
  "emotion": "Happy",
  "emotion_confidence": 0.9,
  "valence": 0.2,
  "arousal": 0.1,
  "active_aus": ["AU6", "AU12", "AU6"],
  "driving_state": "alert",
  "driving_state_confidence": 0.95,
  "risk_level": "safe",
  "risk_color": "green",
  "recommendation": "Continue driving",
  "details": {"rule": "baseline", "scores": [1, 2]}
}`

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frame.jpg")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newMockedAnalyzer(t *testing.T) (*HTTPAnalyzer, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	client, err := NewHTTPAnalyzer(HTTPConfig{
		BaseURL: "http://analyzer.test",
		Timeout: time.Second,
		Client:  &http.Client{Transport: transport},
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	return client, transport
}

func TestHTTPAnalyzerStreamsArtifactAndDecodes(t *testing.T) {
	client, transport := newMockedAnalyzer(t)
	path := writeArtifact(t, "jpeg-bytes")

	var received string
	var receivedName string
	transport.RegisterResponder(http.MethodPost, endpoint, func(req *http.Request) (*http.Response, error) {
		file, header, err := req.FormFile("file")
		if err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, `{"error":"no file"}`), nil
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		received = string(data)
		receivedName = header.Filename
		return httpmock.NewStringResponse(http.StatusOK, successPayload), nil
	})

	result, err := client.Analyze(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "jpeg-bytes", received)
	assert.Equal(t, "frame.jpg", receivedName)
	assert.Equal(t, "Happy", result.Emotion)
	assert.InDelta(t, 0.95, result.DrivingStateConfidence, 0.0001)
	assert.Equal(t, []string{"AU6", "AU12"}, result.ActiveAUs)
	assert.Equal(t, "safe", result.RiskLevel)
	assert.JSONEq(t, `{"rule":"baseline","scores":[1,2]}`, string(result.Details))
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestHTTPAnalyzerFailures(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
		status    int
	}{
		{"internal_server_error", httpmock.NewStringResponder(http.StatusInternalServerError, `{"error":"boom"}`), http.StatusInternalServerError},
		{"bad_request", httpmock.NewStringResponder(http.StatusBadRequest, `{"error":"No file provided"}`), http.StatusBadRequest},
		{"malformed_json", httpmock.NewStringResponder(http.StatusOK, `{"emotion":`), http.StatusOK},
		{"missing_fields", httpmock.NewStringResponder(http.StatusOK, `{"emotion":"Happy"}`), http.StatusOK},
		{"unknown_risk_level", httpmock.NewStringResponder(http.StatusOK, `{"emotion":"Happy","emotion_confidence":0.9,"valence":0,"arousal":0,"active_aus":[],"driving_state":"alert","driving_state_confidence":0.9,"risk_level":"extreme"}`), http.StatusOK},
		{"network", httpmock.NewErrorResponder(errors.New("connection refused")), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, transport := newMockedAnalyzer(t)
			transport.RegisterResponder(http.MethodPost, endpoint, tt.responder)

			_, err := client.Analyze(context.Background(), writeArtifact(t, "jpeg"))
			require.Error(t, err)
			require.ErrorIs(t, err, ErrAnalysisFailed)

			var analyzerErr *Error
			require.ErrorAs(t, err, &analyzerErr)
			assert.Equal(t, tt.status, analyzerErr.StatusCode)
			assert.Equal(t, 1, transport.GetTotalCallCount(), "no retries expected")
		})
	}
}

func TestHTTPAnalyzerMissingArtifact(t *testing.T) {
	client, transport := newMockedAnalyzer(t)

	_, err := client.Analyze(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
	require.ErrorIs(t, err, ErrAnalysisFailed)
	assert.Equal(t, 0, transport.GetTotalCallCount())
}

func TestHTTPAnalyzerTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		<-release
	}))
	defer server.Close()
	defer close(release)

	client, err := NewHTTPAnalyzer(HTTPConfig{
		BaseURL: server.URL,
		Timeout: 50 * time.Millisecond,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	start := time.Now()
	_, err = client.Analyze(context.Background(), writeArtifact(t, "jpeg"))
	require.ErrorIs(t, err, ErrAnalysisFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestNewHTTPAnalyzerRequiresBaseURL(t *testing.T) {
	_, err := NewHTTPAnalyzer(HTTPConfig{})
	require.Error(t, err)
}

func TestStubAnalyzer(t *testing.T) {
	stub := NewStub(Result{Emotion: "Happy", ActiveAUs: []string{"AU1", "AU1"}})
	result, err := stub.Analyze(context.Background(), "a.jpg")
	require.NoError(t, err)
	require.Equal(t, []string{"AU1"}, result.ActiveAUs)
	require.Equal(t, []string{"a.jpg"}, stub.Calls())

	failing := NewFailingStub(errors.New("offline"))
	_, err = failing.Analyze(context.Background(), "b.jpg")
	require.ErrorIs(t, err, ErrAnalysisFailed)
}
