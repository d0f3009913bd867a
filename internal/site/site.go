package site

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"lungdetect/internal/labels"
)

//go:embed site.toml
var defaultContent []byte

// Link is one entry of the author sidebar.
type Link struct {
	Label string `toml:"label" json:"label"`
	URL   string `toml:"url" json:"url"`
}

// Author is the sidebar content.
type Author struct {
	Title    string `toml:"title" json:"title"`
	Name     string `toml:"name" json:"name"`
	Headshot string `toml:"headshot" json:"headshot"`
	Email    string `toml:"email" json:"email"`
	Links    []Link `toml:"links" json:"links"`
}

// Demo is a bundled radiograph with a precomputed result.
type Demo struct {
	ID       int      `toml:"id" json:"id"`
	Image    string   `toml:"image" json:"-"`
	Caption  string   `toml:"caption" json:"caption"`
	Findings []string `toml:"findings" json:"findings"`
	Clear    bool     `toml:"clear" json:"clear"`
}

// Labels resolves the finding keys in the order they were listed.
func (d Demo) Labels() []labels.Label {
	out := make([]labels.Label, 0, len(d.Findings))
	for _, key := range d.Findings {
		if l, ok := labels.ByKey(key); ok {
			out = append(out, l)
		}
	}
	return out
}

// Result is the text shown under the demo after "Detect".
func (d Demo) Result() string {
	return labels.Summary(d.Labels())
}

// Site holds the page copy.
type Site struct {
	Title         string `toml:"title"`
	Intro         string `toml:"intro"`
	DemoHeading   string `toml:"demo_heading"`
	UploadHeading string `toml:"upload_heading"`
	UploadIntro   string `toml:"upload_intro"`
	Disclaimer    string `toml:"disclaimer"`
	Footer        string `toml:"footer"`
	ProjectURL    string `toml:"project_url"`
	Author        Author `toml:"author"`
	Demos         []Demo `toml:"demos"`
}

// Default returns the embedded content.
func Default() (*Site, error) {
	return Parse(defaultContent)
}

// Load reads content from path, or the embedded default when path is empty.
func Load(path string) (*Site, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read site config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates TOML content.
func Parse(data []byte) (*Site, error) {
	var s Site
	if err := toml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse site config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks demo ids and finding keys.
func (s *Site) Validate() error {
	if s.Title == "" {
		return fmt.Errorf("site config: title is required")
	}

	seen := make(map[int]bool, len(s.Demos))
	for _, d := range s.Demos {
		if d.ID <= 0 {
			return fmt.Errorf("site config: demo id must be positive, got %d", d.ID)
		}
		if seen[d.ID] {
			return fmt.Errorf("site config: duplicate demo id %d", d.ID)
		}
		seen[d.ID] = true

		if d.Image == "" {
			return fmt.Errorf("site config: demo %d has no image", d.ID)
		}
		if d.Clear && len(d.Findings) > 0 {
			return fmt.Errorf("site config: demo %d is clear but lists findings", d.ID)
		}
		if !d.Clear && len(d.Findings) == 0 {
			return fmt.Errorf("site config: demo %d needs findings or clear = true", d.ID)
		}
		for _, key := range d.Findings {
			if _, ok := labels.ByKey(key); !ok {
				return fmt.Errorf("site config: demo %d: unknown finding %q", d.ID, key)
			}
		}
	}
	return nil
}

// Demo returns the demo with the given id.
func (s *Site) Demo(id int) (Demo, bool) {
	for _, d := range s.Demos {
		if d.ID == id {
			return d, true
		}
	}
	return Demo{}, false
}
