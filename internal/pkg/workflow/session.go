package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/meetsum/internal/pkg/api"
	"github.com/airenas/meetsum/internal/pkg/render"
	"github.com/airenas/meetsum/internal/pkg/utils"
	"github.com/pkg/errors"
)

// Service calls the external transcription and analysis service
type Service interface {
	Transcribe(ctx context.Context, file *api.UploadFile) (*api.TranscriptionResult, error)
	Analyze(ctx context.Context, req *api.AnalysisRequest) (*api.AnalysisResult, error)
}

// SummaryBuilder renders analysis result
type SummaryBuilder interface {
	Build(res *api.AnalysisResult, t api.AnalysisType) (*render.Summary, error)
}

// Observer is informed about every session change
type Observer interface {
	Changed(v *View)
}

// Data keeps data required for sessions work
type Data struct {
	Service  Service
	Builder  SummaryBuilder
	Observer Observer
	// Extensions allowed for upload, empty list skips the check
	Extensions []string
}

const (
	statusTranscribing = "⏳ Transcribing..."
	statusTranscribed  = "✅ Transcription complete!"
	statusAnalyzing    = "⏳ Analyzing..."
	statusAnalyzed     = "✅ Analysis complete!"
)

var (
	// ErrNoTranscript is returned by Analyze before any successful transcription
	ErrNoTranscript = errors.New("no transcript")
	// ErrStale is returned when a newer request of the same kind was started
	// while waiting for the response. The response is dropped
	ErrStale = errors.New("stale response")
	// ErrNoTabs is returned by SelectTab when the last analysis has no tabs
	ErrNoTabs = errors.New("no tabs")
)

// Session is a workflow controller of one user session
type Session struct {
	id   string
	data *Data
	now  func() time.Time

	lock         sync.Mutex
	state        State
	status       string
	transcript   string
	fileData     *api.TranscriptionResult
	analysisType api.AnalysisType
	analysis     *api.AnalysisResult
	summary      *render.Summary
	// generations of the last started requests
	trGen, anGen uint64
	// increased on each change, lets observers drop views that arrive late
	seq      uint64
	lastUsed time.Time
}

func newSession(id string, data *Data, now func() time.Time) *Session {
	return &Session{id: id, data: data, now: now, state: Idle, analysisType: api.Comprehensive, lastUsed: now()}
}

// ID returns session ID
func (s *Session) ID() string {
	return s.id
}

// Transcribe uploads the file and keeps the transcript
func (s *Session) Transcribe(ctx context.Context, file *api.UploadFile) error {
	if file == nil || file.Name == "" {
		return utils.NewErrValidation("Please select a file")
	}
	if !utils.SupportedExt(file.Name, s.data.Extensions) {
		return utils.NewErrValidation(fmt.Sprintf("Unsupported file type: %s", file.Name))
	}

	s.lock.Lock()
	s.trGen++
	s.anGen++ // a new transcript invalidates the running analysis
	gen := s.trGen
	s.state, s.status = Transcribing, statusTranscribing
	v := s.changedNoSync()
	s.lock.Unlock()
	s.notify(v)

	goapp.Log.Info().Str("session", s.id).Str("file", goapp.Sanitize(file.Name)).Int("size", len(file.Data)).
		Uint64("gen", gen).Msg("transcribe")
	defer goapp.Estimate("transcribe")()
	res, err := s.data.Service.Transcribe(ctx, file)
	if err == nil && res == nil {
		err = utils.NewErrTransport(fmt.Errorf("empty response"))
	}

	s.lock.Lock()
	if gen != s.trGen {
		s.lock.Unlock()
		goapp.Log.Info().Str("session", s.id).Uint64("gen", gen).Msg("drop stale transcription")
		return ErrStale
	}
	if err != nil {
		s.state, s.status = Error, statusFor(err)
	} else {
		s.transcript = res.Transcript
		s.fileData = res
		s.analysis, s.summary = nil, nil
		s.anGen++ // an analysis started on the previous transcript must not land here
		s.state, s.status = TranscriptReady, statusTranscribed
	}
	v = s.changedNoSync()
	s.lock.Unlock()
	s.notify(v)
	if err != nil {
		goapp.Log.Warn().Str("session", s.id).Err(err).Msg("transcribe failed")
	}
	return err
}

// Analyze sends the current transcript for analysis.
// Returns ErrNoTranscript and issues no request if there is no transcript
func (s *Session) Analyze(ctx context.Context, t api.AnalysisType) error {
	t, err := api.ParseAnalysisType(string(t))
	if err != nil {
		return utils.NewErrValidation(err.Error())
	}

	s.lock.Lock()
	if s.transcript == "" {
		s.lock.Unlock()
		return ErrNoTranscript
	}
	s.anGen++
	gen := s.anGen
	transcript := s.transcript
	s.analysisType = t
	s.state, s.status = Analyzing, statusAnalyzing
	v := s.changedNoSync()
	s.lock.Unlock()
	s.notify(v)

	goapp.Log.Info().Str("session", s.id).Str("type", t.String()).Uint64("gen", gen).Msg("analyze")
	defer goapp.Estimate("analyze")()
	res, err := s.data.Service.Analyze(ctx, &api.AnalysisRequest{Transcript: transcript, AnalysisType: t})
	var sum *render.Summary
	if err == nil {
		if res == nil {
			err = utils.NewErrTransport(fmt.Errorf("empty response"))
		} else {
			sum, err = s.data.Builder.Build(res, t)
		}
	}

	s.lock.Lock()
	if gen != s.anGen {
		s.lock.Unlock()
		goapp.Log.Info().Str("session", s.id).Uint64("gen", gen).Msg("drop stale analysis")
		return ErrStale
	}
	if err != nil {
		s.state, s.status = Error, statusFor(err)
	} else {
		s.analysis, s.summary = res, sum
		s.state, s.status = AnalysisReady, statusAnalyzed
	}
	v = s.changedNoSync()
	s.lock.Unlock()
	s.notify(v)
	if err != nil {
		goapp.Log.Warn().Str("session", s.id).Err(err).Msg("analyze failed")
	}
	return err
}

// SelectTab shows one tab of the 'all' analysis
func (s *Session) SelectTab(id string) error {
	s.lock.Lock()
	if s.summary == nil || !s.summary.Tabbed {
		s.lock.Unlock()
		return ErrNoTabs
	}
	if err := s.summary.Select(id); err != nil {
		s.lock.Unlock()
		return err
	}
	v := s.changedNoSync()
	s.lock.Unlock()
	s.notify(v)
	return nil
}

// View returns current session projection
func (s *Session) View() *View {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.viewNoSync()
}

func (s *Session) changedNoSync() *View {
	s.seq++
	s.lastUsed = s.now()
	return s.viewNoSync()
}

func (s *Session) viewNoSync() *View {
	res := &View{SessionID: s.id, Seq: s.seq, State: s.state.String(), Status: s.status, AnalysisType: s.analysisType.String()}
	if s.fileData != nil {
		res.Transcript = s.transcript
		res.FileType = s.fileData.FileType
		res.WordCount = s.fileData.ProcessingInfo.WordCount
		res.ChunkCount = s.fileData.ProcessingInfo.ChunkCount
		res.TranscriptVisible = true
		res.AnalysisOptionsVisible = true
	}
	res.AnalyzeEnabled = s.transcript != ""
	if s.summary != nil {
		res.Summary = s.summary.Clone()
		res.SummaryVisible = true
	}
	return res
}

func (s *Session) idle(now time.Time, ttl time.Duration) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return !s.state.Busy() && now.Sub(s.lastUsed) > ttl
}

func (s *Session) notify(v *View) {
	if s.data.Observer != nil {
		s.data.Observer.Changed(v)
	}
}

func statusFor(err error) string {
	var errService *utils.ErrService
	if errors.As(err, &errService) {
		return "❌ " + errService.Msg
	}
	var errTransport *utils.ErrTransport
	if errors.As(err, &errTransport) {
		return "❌ Error: " + errTransport.Unwrap().Error()
	}
	return "❌ Error: " + err.Error()
}
