package workflow

import "github.com/airenas/meetsum/internal/pkg/render"

// View is a read only projection of the session used for page rendering
type View struct {
	SessionID              string          `json:"sessionID"`
	Seq                    uint64          `json:"seq"`
	State                  string          `json:"state"`
	Status                 string          `json:"status,omitempty"`
	Alert                  string          `json:"alert,omitempty"`
	Transcript             string          `json:"transcript,omitempty"`
	FileType               string          `json:"fileType,omitempty"`
	WordCount              int             `json:"wordCount,omitempty"`
	ChunkCount             int             `json:"chunkCount,omitempty"`
	TranscriptVisible      bool            `json:"transcriptVisible"`
	AnalysisOptionsVisible bool            `json:"analysisOptionsVisible"`
	AnalyzeEnabled         bool            `json:"analyzeEnabled"`
	AnalysisType           string          `json:"analysisType"`
	SummaryVisible         bool            `json:"summaryVisible"`
	Summary                *render.Summary `json:"summary,omitempty"`
}
