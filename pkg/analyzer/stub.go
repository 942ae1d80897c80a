package analyzer

import (
	"context"
	"sync"
)

// Stub is an in-memory Analyzer returning a fixed result or failure.
type Stub struct {
	Result Result
	Err    error

	mu    sync.Mutex
	paths []string
}

// NewStub returns a stub that always succeeds with result.
func NewStub(result Result) *Stub {
	return &Stub{Result: result}
}

// NewFailingStub returns a stub that always fails with err wrapped as an analyzer error.
func NewFailingStub(err error) *Stub {
	return &Stub{Err: err}
}

// Analyze records the call and returns the configured outcome.
func (s *Stub) Analyze(ctx context.Context, artifactPath string) (Result, error) {
	s.mu.Lock()
	s.paths = append(s.paths, artifactPath)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, &Error{Op: "stub", Err: err}
	}
	if s.Err != nil {
		return Result{}, &Error{Op: "stub", Err: s.Err}
	}

	result := s.Result
	result.ActiveAUs = UniqueAUs(result.ActiveAUs)
	return result, nil
}

// Calls returns the artifact paths passed to Analyze so far.
func (s *Stub) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}
