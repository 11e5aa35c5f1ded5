package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/airenas/meetsum/internal/pkg/workflow"
	"github.com/labstack/echo/v4"
)

//go:embed templates/index.html
var templatesFS embed.FS

var pageTmpl = template.Must(template.ParseFS(templatesFS, "templates/index.html"))

type pageData struct {
	View  *workflow.View
	Types []typeOption
}

func writePage(c echo.Context, code int, v *workflow.View) error {
	data := pageData{View: v, Types: typeOptions(v.AnalysisType)}
	var b bytes.Buffer
	if err := pageTmpl.Execute(&b, data); err != nil {
		return fmt.Errorf("can't render page: %w", err)
	}
	return c.HTMLBlob(code, b.Bytes())
}
