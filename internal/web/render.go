package web

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"net/http"

	"lungdetect/internal/dto"
	"lungdetect/internal/site"
)

//go:embed templates/*.html
var templateFS embed.FS

// UploadCaption labels the uploaded radiograph next to its results.
const UploadCaption = "Uploaded Image."

// DemoView is a demo as shown on the page.
type DemoView struct {
	site.Demo
	Result string
	Shown  bool
}

// PageData is everything the index template needs.
type PageData struct {
	Site       *site.Site
	Demos      []DemoView
	Result     *dto.AnalysisResult
	Warning     string
	UploadName  string
	UploadImage template.URL
}

// NewPageData prepares a page with every demo result hidden.
func NewPageData(s *site.Site) *PageData {
	demos := make([]DemoView, 0, len(s.Demos))
	for _, d := range s.Demos {
		demos = append(demos, DemoView{Demo: d, Result: d.Result()})
	}
	return &PageData{Site: s, Demos: demos}
}

// ShowUpload embeds the analysed upload in the page as a data URI.
func (p *PageData) ShowUpload(name, format string, data []byte) {
	mime := "image/jpeg"
	if format == "png" {
		mime = "image/png"
	}
	p.UploadName = name
	p.UploadImage = template.URL("data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data))
}

// ShowDemo reveals the result of one demo.
func (p *PageData) ShowDemo(id int) bool {
	for i := range p.Demos {
		if p.Demos[i].ID == id {
			p.Demos[i].Shown = true
			return true
		}
	}
	return false
}

// Renderer executes the page templates.
type Renderer struct {
	index *template.Template
}

func NewRenderer() (*Renderer, error) {
	index, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Renderer{index: index}, nil
}

// Render writes the page with the given status. The template runs into a
// buffer first so a failure never leaves a half-written page.
func (r *Renderer) Render(w http.ResponseWriter, status int, data *PageData) error {
	var buf bytes.Buffer
	if err := r.index.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
