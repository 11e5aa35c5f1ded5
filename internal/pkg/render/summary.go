package render

import (
	"fmt"
	"html/template"

	"github.com/airenas/meetsum/internal/pkg/api"
)

const noContent = "*No content returned.*"

// Section is one rendered analysis block, in tabbed mode it is a tab panel
type Section struct {
	ID     string        `json:"id"`
	Label  string        `json:"label"`
	Title  string        `json:"title"`
	HTML   template.HTML `json:"html"`
	Active bool          `json:"active"`
}

// Summary is a rendered analysis result
type Summary struct {
	Type     api.AnalysisType `json:"type"`
	Tabbed   bool             `json:"tabbed"`
	Sections []Section        `json:"sections"`
	Meta     string           `json:"meta,omitempty"`
}

// ErrUnknownTab is returned by Select for a tab not in the summary
type ErrUnknownTab struct {
	ID string
}

func (e *ErrUnknownTab) Error() string {
	return fmt.Sprintf("unknown tab '%s'", e.ID)
}

type sectionInfo struct {
	label, title string
}

var sections = map[api.AnalysisType]sectionInfo{
	api.Comprehensive: {label: "Summary", title: "📋 Comprehensive Summary"},
	api.Topics:        {label: "Topics", title: "🎯 Key Topics"},
	api.Actions:       {label: "Action Items", title: "✅ Action Items"},
	api.Sentiment:     {label: "Sentiment", title: "😊 Sentiment Analysis"},
}

var tabOrder = []api.AnalysisType{api.Comprehensive, api.Topics, api.Actions, api.Sentiment}

// Builder makes Summary from the service result
type Builder struct {
	md *Markdown
}

// NewBuilder creates builder
func NewBuilder(md *Markdown) *Builder {
	return &Builder{md: md}
}

// Build renders the result for the analysis type
func (b *Builder) Build(res *api.AnalysisResult, t api.AnalysisType) (*Summary, error) {
	if res == nil {
		return nil, fmt.Errorf("no result")
	}
	out := &Summary{Type: t, Meta: meta(res)}
	types := tabOrder
	if t == api.All {
		out.Tabbed = true
	} else {
		if _, ok := sections[t]; !ok {
			return nil, fmt.Errorf("unknown analysis type '%s'", t)
		}
		types = []api.AnalysisType{t}
	}
	for i, st := range types {
		txt := res.Text(st)
		if txt == "" {
			txt = noContent
		}
		h, err := b.md.Render(txt)
		if err != nil {
			return nil, fmt.Errorf("can't render %s: %w", st, err)
		}
		info := sections[st]
		out.Sections = append(out.Sections, Section{ID: st.String(), Label: info.label, Title: info.title,
			HTML: h, Active: i == 0})
	}
	return out, nil
}

func meta(res *api.AnalysisResult) string {
	if res.WordCount == 0 && res.ProcessingTime == 0 {
		return ""
	}
	return fmt.Sprintf("Processed %d words in %.2fs", res.WordCount, res.ProcessingTime)
}

// Select activates the tab by ID and deactivates all others
func (s *Summary) Select(id string) error {
	found := false
	for _, sec := range s.Sections {
		if sec.ID == id {
			found = true
			break
		}
	}
	if !found {
		return &ErrUnknownTab{ID: id}
	}
	for i := range s.Sections {
		s.Sections[i].Active = s.Sections[i].ID == id
	}
	return nil
}

// ActiveID returns the active section ID
func (s *Summary) ActiveID() string {
	for _, sec := range s.Sections {
		if sec.Active {
			return sec.ID
		}
	}
	return ""
}

// Clone returns a copy not sharing sections
func (s *Summary) Clone() *Summary {
	if s == nil {
		return nil
	}
	res := *s
	res.Sections = make([]Section, len(s.Sections))
	copy(res.Sections, s.Sections)
	return &res
}
