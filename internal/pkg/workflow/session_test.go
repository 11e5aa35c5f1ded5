package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/airenas/meetsum/internal/pkg/api"
	"github.com/airenas/meetsum/internal/pkg/render"
	"github.com/airenas/meetsum/internal/pkg/test"
	"github.com/airenas/meetsum/internal/pkg/test/mocks"
	"github.com/airenas/meetsum/internal/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	srvMock  *mocks.Service
	obsMock  *testObserver
	testData *Data
)

type testObserver struct {
	lock  sync.Mutex
	views []*View
}

func (o *testObserver) Changed(v *View) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.views = append(o.views, v)
}

func (o *testObserver) states() []string {
	o.lock.Lock()
	defer o.lock.Unlock()
	res := make([]string, 0, len(o.views))
	for _, v := range o.views {
		res = append(res, v.State)
	}
	return res
}

func initTest(t *testing.T) {
	t.Helper()
	srvMock = &mocks.Service{}
	obsMock = &testObserver{}
	testData = &Data{Service: srvMock, Builder: render.NewBuilder(render.NewMarkdown(false)), Observer: obsMock}
}

func newTestSession() *Session {
	return newSession("s1", testData, time.Now)
}

func helloTranscript() *api.TranscriptionResult {
	return &api.TranscriptionResult{Transcript: "Hello world", FileType: "mp3",
		ProcessingInfo: api.ProcessingInfo{WordCount: 2, ChunkCount: 1}}
}

func transcribed(t *testing.T) *Session {
	t.Helper()
	srvMock.On("Transcribe", mock.Anything, mock.Anything).Return(helloTranscript(), nil).Once()
	s := newTestSession()
	require.Nil(t, s.Transcribe(test.Ctx(t), &api.UploadFile{Name: "a.mp3", Data: []byte("audio")}))
	return s
}

func TestSession_InitialView(t *testing.T) {
	initTest(t)
	v := newTestSession().View()
	assert.Equal(t, "s1", v.SessionID)
	assert.Equal(t, "IDLE", v.State)
	assert.Equal(t, "", v.Status)
	assert.False(t, v.TranscriptVisible)
	assert.False(t, v.AnalysisOptionsVisible)
	assert.False(t, v.AnalyzeEnabled)
	assert.False(t, v.SummaryVisible)
	assert.Equal(t, "comprehensive", v.AnalysisType)
}

func TestSession_Transcribe(t *testing.T) {
	initTest(t)
	s := transcribed(t)

	v := s.View()
	assert.Equal(t, "TRANSCRIPT_READY", v.State)
	assert.Equal(t, "✅ Transcription complete!", v.Status)
	assert.Equal(t, "Hello world", v.Transcript)
	assert.Equal(t, "mp3", v.FileType)
	assert.Equal(t, 2, v.WordCount)
	assert.Equal(t, 1, v.ChunkCount)
	assert.True(t, v.TranscriptVisible)
	assert.True(t, v.AnalysisOptionsVisible)
	assert.True(t, v.AnalyzeEnabled)
	assert.Equal(t, []string{"TRANSCRIBING", "TRANSCRIPT_READY"}, obsMock.states())
	assert.Equal(t, "⏳ Transcribing...", obsMock.views[0].Status)

	srvMock.AssertNumberOfCalls(t, "Transcribe", 1)
	f := srvMock.Calls[0].Arguments.Get(1).(*api.UploadFile)
	assert.Equal(t, "a.mp3", f.Name)
	assert.Equal(t, []byte("audio"), f.Data)
}

func TestSession_Transcribe_EmptyTranscript(t *testing.T) {
	initTest(t)
	srvMock.On("Transcribe", mock.Anything, mock.Anything).Return(&api.TranscriptionResult{FileType: "txt"}, nil)
	s := newTestSession()

	require.Nil(t, s.Transcribe(test.Ctx(t), &api.UploadFile{Name: "a.txt"}))

	v := s.View()
	assert.True(t, v.TranscriptVisible)
	assert.False(t, v.AnalyzeEnabled)
	assert.ErrorIs(t, s.Analyze(test.Ctx(t), api.Sentiment), ErrNoTranscript)
	srvMock.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
}

func TestSession_Transcribe_Validation(t *testing.T) {
	tests := []struct {
		name string
		file *api.UploadFile
		ext  []string
		want string
	}{
		{name: "no file", file: nil, want: "Please select a file"},
		{name: "no name", file: &api.UploadFile{Data: []byte("a")}, want: "Please select a file"},
		{name: "extension", file: &api.UploadFile{Name: "a.exe"}, ext: []string{".mp3"}, want: "Unsupported file type: a.exe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initTest(t)
			testData.Extensions = tt.ext
			s := newTestSession()

			err := s.Transcribe(test.Ctx(t), tt.file)

			var errV *utils.ErrValidation
			require.ErrorAs(t, err, &errV)
			assert.Equal(t, tt.want, errV.Error())
			srvMock.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
			assert.Equal(t, "IDLE", s.View().State)
			assert.Empty(t, obsMock.states())
		})
	}
}

func TestSession_Transcribe_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "service", err: utils.NewErrService("unsupported format"), want: "❌ unsupported format"},
		{name: "transport", err: utils.NewErrTransport(errors.New("connection refused")), want: "❌ Error: connection refused"},
		{name: "other", err: errors.New("olia"), want: "❌ Error: olia"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initTest(t)
			srvMock.On("Transcribe", mock.Anything, mock.Anything).Return(nil, tt.err)
			s := newTestSession()

			err := s.Transcribe(test.Ctx(t), &api.UploadFile{Name: "a.mp3"})

			assert.ErrorIs(t, err, tt.err)
			v := s.View()
			assert.Equal(t, "ERROR", v.State)
			assert.Equal(t, tt.want, v.Status)
			assert.False(t, v.TranscriptVisible)
			assert.False(t, v.AnalyzeEnabled)
		})
	}
}

func TestSession_Transcribe_NilResponse(t *testing.T) {
	initTest(t)
	srvMock.On("Transcribe", mock.Anything, mock.Anything).Return(nil, nil)
	s := newTestSession()

	err := s.Transcribe(test.Ctx(t), &api.UploadFile{Name: "a.mp3"})

	var errT *utils.ErrTransport
	assert.ErrorAs(t, err, &errT)
	assert.Equal(t, "❌ Error: empty response", s.View().Status)
}

func TestSession_Transcribe_KeepsPrevious(t *testing.T) {
	initTest(t)
	s := transcribed(t)
	srvMock.On("Transcribe", mock.Anything, mock.Anything).Return(nil, utils.NewErrService("unsupported format"))

	assert.NotNil(t, s.Transcribe(test.Ctx(t), &api.UploadFile{Name: "b.mp3"}))

	v := s.View()
	assert.Equal(t, "ERROR", v.State)
	assert.Equal(t, "❌ unsupported format", v.Status)
	assert.Equal(t, "Hello world", v.Transcript)
	assert.True(t, v.AnalyzeEnabled)
}

func TestSession_Analyze(t *testing.T) {
	initTest(t)
	s := transcribed(t)
	srvMock.On("Analyze", mock.Anything, mock.Anything).Return(&api.AnalysisResult{SentimentAnalysis: "**Positive**",
		WordCount: 2, ProcessingTime: 0.5}, nil)

	require.Nil(t, s.Analyze(test.Ctx(t), api.Sentiment))

	v := s.View()
	assert.Equal(t, "ANALYSIS_READY", v.State)
	assert.Equal(t, "✅ Analysis complete!", v.Status)
	assert.Equal(t, "Hello world", v.Transcript)
	assert.Equal(t, "sentiment", v.AnalysisType)
	assert.True(t, v.SummaryVisible)
	require.NotNil(t, v.Summary)
	require.Len(t, v.Summary.Sections, 1)
	assert.False(t, v.Summary.Tabbed)
	assert.Equal(t, "😊 Sentiment Analysis", v.Summary.Sections[0].Title)
	assert.Contains(t, string(v.Summary.Sections[0].HTML), "<strong>Positive</strong>")
	assert.Equal(t, "Processed 2 words in 0.50s", v.Summary.Meta)
	assert.Equal(t, []string{"TRANSCRIBING", "TRANSCRIPT_READY", "ANALYZING", "ANALYSIS_READY"}, obsMock.states())

	req := srvMock.Calls[1].Arguments.Get(1).(*api.AnalysisRequest)
	assert.Equal(t, &api.AnalysisRequest{Transcript: "Hello world", AnalysisType: api.Sentiment}, req)
}

func TestSession_Analyze_DefaultType(t *testing.T) {
	initTest(t)
	s := transcribed(t)
	srvMock.On("Analyze", mock.Anything, mock.Anything).Return(&api.AnalysisResult{Summary: "sum"}, nil)

	require.Nil(t, s.Analyze(test.Ctx(t), ""))

	req := srvMock.Calls[1].Arguments.Get(1).(*api.AnalysisRequest)
	assert.Equal(t, api.Comprehensive, req.AnalysisType)
	assert.Equal(t, "📋 Comprehensive Summary", s.View().Summary.Sections[0].Title)
}

func TestSession_Analyze_WrongType(t *testing.T) {
	initTest(t)
	s := transcribed(t)

	err := s.Analyze(test.Ctx(t), "olia")

	var errV *utils.ErrValidation
	assert.ErrorAs(t, err, &errV)
	srvMock.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
	assert.Equal(t, "TRANSCRIPT_READY", s.View().State)
}

func TestSession_Analyze_NoTranscript(t *testing.T) {
	initTest(t)
	s := newTestSession()

	assert.ErrorIs(t, s.Analyze(test.Ctx(t), api.All), ErrNoTranscript)

	srvMock.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
	assert.Equal(t, "IDLE", s.View().State)
	assert.Empty(t, obsMock.states())
}

func TestSession_Analyze_Error_KeepsPrevious(t *testing.T) {
	initTest(t)
	s := transcribed(t)
	srvMock.On("Analyze", mock.Anything, mock.Anything).Return(&api.AnalysisResult{TopicAnalysis: "- a"}, nil).Once()
	srvMock.On("Analyze", mock.Anything, mock.Anything).Return(nil, utils.NewErrService("model failed")).Once()
	require.Nil(t, s.Analyze(test.Ctx(t), api.Topics))

	assert.NotNil(t, s.Analyze(test.Ctx(t), api.Actions))

	v := s.View()
	assert.Equal(t, "ERROR", v.State)
	assert.Equal(t, "❌ model failed", v.Status)
	assert.Equal(t, "Hello world", v.Transcript)
	assert.True(t, v.AnalyzeEnabled)
	require.NotNil(t, v.Summary)
	assert.Equal(t, "🎯 Key Topics", v.Summary.Sections[0].Title)
}

func TestSession_Analyze_Builder_Fail(t *testing.T) {
	initTest(t)
	bMock := &mocks.Builder{}
	testData.Builder = bMock
	s := transcribed(t)
	srvMock.On("Analyze", mock.Anything, mock.Anything).Return(&api.AnalysisResult{}, nil)
	bMock.On("Build", mock.Anything, mock.Anything).Return(nil, errors.New("render failed"))

	assert.NotNil(t, s.Analyze(test.Ctx(t), api.Topics))

	v := s.View()
	assert.Equal(t, "ERROR", v.State)
	assert.Equal(t, "❌ Error: render failed", v.Status)
	assert.False(t, v.SummaryVisible)
}

func TestSession_Tabs(t *testing.T) {
	initTest(t)
	s := transcribed(t)
	srvMock.On("Analyze", mock.Anything, mock.Anything).Return(&api.AnalysisResult{ComprehensiveSummary: "c",
		TopicAnalysis: "t", ActionItems: "a", SentimentAnalysis: "s"}, nil)
	require.Nil(t, s.Analyze(test.Ctx(t), api.All))
	v := s.View()
	require.True(t, v.Summary.Tabbed)
	require.Len(t, v.Summary.Sections, 4)
	assert.Equal(t, "comprehensive", v.Summary.ActiveID())

	for _, id := range []string{"sentiment", "topics", "topics", "actions", "comprehensive"} {
		require.Nil(t, s.SelectTab(id))
		v := s.View()
		active := 0
		for _, sec := range v.Summary.Sections {
			if sec.Active {
				active++
				assert.Equal(t, id, sec.ID)
			}
		}
		assert.Equal(t, 1, active)
	}
}

func TestSession_Tabs_Fail(t *testing.T) {
	initTest(t)
	s := transcribed(t)
	assert.ErrorIs(t, s.SelectTab("topics"), ErrNoTabs)

	srvMock.On("Analyze", mock.Anything, mock.Anything).Return(&api.AnalysisResult{ComprehensiveSummary: "c"}, nil)
	require.Nil(t, s.Analyze(test.Ctx(t), api.Comprehensive))
	assert.ErrorIs(t, s.SelectTab("comprehensive"), ErrNoTabs)

	require.Nil(t, s.Analyze(test.Ctx(t), api.All))
	require.Nil(t, s.SelectTab("actions"))
	var errU *render.ErrUnknownTab
	assert.ErrorAs(t, s.SelectTab("olia"), &errU)
	assert.Equal(t, "actions", s.View().Summary.ActiveID())
}

func TestSession_View_Copy(t *testing.T) {
	initTest(t)
	s := transcribed(t)
	srvMock.On("Analyze", mock.Anything, mock.Anything).Return(&api.AnalysisResult{ComprehensiveSummary: "c"}, nil)
	require.Nil(t, s.Analyze(test.Ctx(t), api.All))

	v := s.View()
	require.Nil(t, s.SelectTab("actions"))

	assert.Equal(t, "comprehensive", v.Summary.ActiveID())
	assert.Equal(t, "actions", s.View().Summary.ActiveID())
}

func TestSession_Analyze_Stale(t *testing.T) {
	initTest(t)
	s := transcribed(t)
	started, release := make(chan bool), make(chan bool)
	srvMock.On("Analyze", mock.Anything, mock.MatchedBy(func(r *api.AnalysisRequest) bool {
		return r.AnalysisType == api.Topics
	})).Run(func(args mock.Arguments) {
		close(started)
		<-release
	}).Return(&api.AnalysisResult{TopicAnalysis: "old"}, nil)
	srvMock.On("Analyze", mock.Anything, mock.MatchedBy(func(r *api.AnalysisRequest) bool {
		return r.AnalysisType == api.Actions
	})).Return(&api.AnalysisResult{ActionItems: "new"}, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Analyze(context.Background(), api.Topics) }()
	<-started
	require.Nil(t, s.Analyze(test.Ctx(t), api.Actions))
	close(release)

	assert.ErrorIs(t, <-errCh, ErrStale)
	v := s.View()
	assert.Equal(t, "ANALYSIS_READY", v.State)
	assert.Equal(t, "actions", v.AnalysisType)
	assert.Equal(t, "✅ Action Items", v.Summary.Sections[0].Title)
	assert.Contains(t, string(v.Summary.Sections[0].HTML), "new")
}

func TestSession_Transcribe_DropsRunningAnalysis(t *testing.T) {
	initTest(t)
	s := transcribed(t)
	started, release := make(chan bool), make(chan bool)
	srvMock.On("Analyze", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		close(started)
		<-release
	}).Return(&api.AnalysisResult{TopicAnalysis: "old"}, nil)
	srvMock.On("Transcribe", mock.Anything, mock.Anything).
		Return(&api.TranscriptionResult{Transcript: "Other"}, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Analyze(context.Background(), api.Topics) }()
	<-started
	require.Nil(t, s.Transcribe(test.Ctx(t), &api.UploadFile{Name: "b.txt"}))
	close(release)

	assert.ErrorIs(t, <-errCh, ErrStale)
	v := s.View()
	assert.Equal(t, "TRANSCRIPT_READY", v.State)
	assert.Equal(t, "Other", v.Transcript)
	assert.False(t, v.SummaryVisible)
}

func TestSession_Analyze_DroppedByNewTranscript(t *testing.T) {
	initTest(t)
	s := transcribed(t)
	trStarted, trRelease := make(chan bool), make(chan bool)
	srvMock.On("Transcribe", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		close(trStarted)
		<-trRelease
	}).Return(&api.TranscriptionResult{Transcript: "Other meeting"}, nil)
	anStarted, anRelease := make(chan bool), make(chan bool)
	srvMock.On("Analyze", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		close(anStarted)
		<-anRelease
	}).Return(&api.AnalysisResult{TopicAnalysis: "old"}, nil)

	trErr := make(chan error, 1)
	go func() { trErr <- s.Transcribe(context.Background(), &api.UploadFile{Name: "b.txt"}) }()
	<-trStarted
	anErr := make(chan error, 1)
	go func() { anErr <- s.Analyze(context.Background(), api.Topics) }()
	<-anStarted
	close(trRelease)
	require.Nil(t, <-trErr)
	close(anRelease)

	assert.ErrorIs(t, <-anErr, ErrStale)
	req := srvMock.Calls[len(srvMock.Calls)-1].Arguments.Get(1).(*api.AnalysisRequest)
	assert.Equal(t, "Hello world", req.Transcript)
	v := s.View()
	assert.Equal(t, "TRANSCRIPT_READY", v.State)
	assert.Equal(t, "Other meeting", v.Transcript)
	assert.False(t, v.SummaryVisible)
}

func TestSession_Seq(t *testing.T) {
	initTest(t)
	s := newTestSession()
	assert.Equal(t, uint64(0), s.View().Seq)
	s = transcribed(t)
	srvMock.On("Analyze", mock.Anything, mock.Anything).Return(&api.AnalysisResult{ComprehensiveSummary: "c"}, nil)
	require.Nil(t, s.Analyze(test.Ctx(t), api.All))
	require.Nil(t, s.SelectTab("actions"))

	require.Len(t, obsMock.views, 5)
	for i, v := range obsMock.views {
		assert.Equal(t, uint64(i+1), v.Seq)
	}
	assert.Equal(t, uint64(5), s.View().Seq)
}

func TestSession_Idle(t *testing.T) {
	initTest(t)
	now := time.Date(2022, 1, 1, 10, 0, 0, 0, time.UTC)
	s := newSession("s1", testData, func() time.Time { return now })

	assert.False(t, s.idle(now.Add(time.Minute), time.Minute))
	assert.True(t, s.idle(now.Add(time.Minute+time.Second), time.Minute))
	s.state = Analyzing
	assert.False(t, s.idle(now.Add(time.Hour), time.Minute))
}

func Test_statusFor(t *testing.T) {
	assert.Equal(t, "❌ bad", statusFor(utils.NewErrService("bad")))
	assert.Equal(t, "❌ Error: refused", statusFor(utils.NewErrTransport(errors.New("refused"))))
	assert.Equal(t, "❌ Error: olia", statusFor(errors.New("olia")))
}
