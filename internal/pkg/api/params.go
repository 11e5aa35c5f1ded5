package api

const (
	// PrmFile form file param name
	PrmFile = "file"
	// PrmAnalysisType analysis type param name
	PrmAnalysisType = "analysis_type"
)
