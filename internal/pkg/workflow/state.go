package workflow

// State represents a workflow state of the session
type State int

const (
	// Idle - nothing submitted yet
	Idle State = iota + 1
	// Transcribing - upload request is in flight
	Transcribing
	// TranscriptReady - transcript is available, analysis can be started
	TranscriptReady
	// Analyzing - summarize request is in flight
	Analyzing
	// AnalysisReady - final step
	AnalysisReady
	// Error - last action failed
	Error
)

var stateName = map[State]string{Idle: "IDLE", Transcribing: "TRANSCRIBING", TranscriptReady: "TRANSCRIPT_READY",
	Analyzing: "ANALYZING", AnalysisReady: "ANALYSIS_READY", Error: "ERROR"}

func (st State) String() string {
	return stateName[st]
}

// Busy returns true while a request is in flight
func (st State) Busy() bool {
	return st == Transcribing || st == Analyzing
}
