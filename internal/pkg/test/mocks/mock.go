package mocks

import (
	"context"

	"github.com/airenas/meetsum/internal/pkg/api"
	"github.com/airenas/meetsum/internal/pkg/render"
	"github.com/stretchr/testify/mock"
)

// Service is the transcription/analysis service mock
type Service struct{ mock.Mock }

// Transcribe func mock
func (m *Service) Transcribe(ctx context.Context, file *api.UploadFile) (*api.TranscriptionResult, error) {
	args := m.Called(ctx, file)
	return to[*api.TranscriptionResult](args.Get(0)), args.Error(1)
}

// Analyze func mock
func (m *Service) Analyze(ctx context.Context, req *api.AnalysisRequest) (*api.AnalysisResult, error) {
	args := m.Called(ctx, req)
	return to[*api.AnalysisResult](args.Get(0)), args.Error(1)
}

// Builder is summary builder mock
type Builder struct{ mock.Mock }

// Build func mock
func (m *Builder) Build(res *api.AnalysisResult, t api.AnalysisType) (*render.Summary, error) {
	args := m.Called(res, t)
	return to[*render.Summary](args.Get(0)), args.Error(1)
}

func to[T interface{}](val interface{}) T {
	if val == nil {
		var res T
		return res
	}
	return val.(T)
}
