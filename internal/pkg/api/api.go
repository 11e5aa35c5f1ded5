package api

import (
	"fmt"
	"strings"
)

// UploadFile is a file sent for transcription
type UploadFile struct {
	Name string
	Data []byte
}

// ProcessingInfo keeps service side processing counters
type ProcessingInfo struct {
	WordCount  int `json:"word_count"`
	ChunkCount int `json:"chunk_count"`
}

// TranscriptionResult is a response of the upload method
type TranscriptionResult struct {
	Transcript     string         `json:"transcript"`
	FileType       string         `json:"file_type,omitempty"`
	ProcessingInfo ProcessingInfo `json:"processing_info"`
	Error          string         `json:"error,omitempty"`
}

// AnalysisRequest is a body of the summarize method
type AnalysisRequest struct {
	Transcript   string       `json:"transcript"`
	AnalysisType AnalysisType `json:"analysis_type,omitempty"`
}

// AnalysisResult is a response of the summarize method.
// Text fields are filled depending on the requested analysis type
type AnalysisResult struct {
	Success              *bool        `json:"success,omitempty"`
	AnalysisType         AnalysisType `json:"analysis_type,omitempty"`
	Summary              string       `json:"summary,omitempty"`
	ComprehensiveSummary string       `json:"comprehensive_summary,omitempty"`
	TopicAnalysis        string       `json:"topic_analysis,omitempty"`
	ActionItems          string       `json:"action_items,omitempty"`
	SentimentAnalysis    string       `json:"sentiment_analysis,omitempty"`
	ProcessingTime       float64      `json:"processing_time"`
	WordCount            int          `json:"word_count"`
	InputLength          int          `json:"input_length,omitempty"`
	TotalChunks          int          `json:"total_chunks,omitempty"`
	Error                string       `json:"error,omitempty"`
}

// AnalysisType selects texts the service derives from a transcript
type AnalysisType string

const (
	// Comprehensive - full structured summary
	Comprehensive AnalysisType = "comprehensive"
	// Topics - key topics only
	Topics AnalysisType = "topics"
	// Actions - action items only
	Actions AnalysisType = "actions"
	// Sentiment - sentiment and tone analysis
	Sentiment AnalysisType = "sentiment"
	// All - every analysis above
	All AnalysisType = "all"
)

var analysisTypes = []AnalysisType{Comprehensive, Topics, Actions, Sentiment, All}

// AnalysisTypes returns supported types in UI order
func AnalysisTypes() []AnalysisType {
	res := make([]AnalysisType, len(analysisTypes))
	copy(res, analysisTypes)
	return res
}

// ParseAnalysisType returns type from string, empty value means comprehensive
func ParseAnalysisType(s string) (AnalysisType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Comprehensive, nil
	}
	for _, t := range analysisTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown analysis type '%s'", s)
}

func (t AnalysisType) String() string {
	return string(t)
}

// Text returns analysis text of the result by type
func (r *AnalysisResult) Text(t AnalysisType) string {
	switch t {
	case Comprehensive:
		if r.ComprehensiveSummary != "" {
			return r.ComprehensiveSummary
		}
		return r.Summary
	case Topics:
		return r.TopicAnalysis
	case Actions:
		return r.ActionItems
	case Sentiment:
		return r.SentimentAnalysis
	}
	return ""
}
