package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"lungdetect/internal/logger"
	"lungdetect/internal/site"
	"lungdetect/internal/web"
)

// DemoInfo is a bundled demo as returned by the API.
type DemoInfo struct {
	ID       int      `json:"id"`
	Caption  string   `json:"caption"`
	ImageURL string   `json:"imageUrl"`
	Findings []string `json:"findings"`
	Clear    bool     `json:"clear"`
	Result   string   `json:"result"`
}

func demoID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.URL.Query().Get("id"))
	return id, err == nil
}

// DemoDetectHandler reveals the precomputed result of a demo, optionally
// after a short simulated delay.
func DemoDetectHandler(content *site.Site, renderer *web.Renderer, delay time.Duration, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := demoID(r)
		if !ok {
			http.Error(w, "Invalid demo id", http.StatusBadRequest)
			return
		}

		data := web.NewPageData(content)
		if !data.ShowDemo(id) {
			http.NotFound(w, r)
			return
		}

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		render(w, renderer, http.StatusOK, data, logger)
	}
}

// DemoImageHandler serves the square thumbnail of a demo.
func DemoImageHandler(content *site.Site, thumbs *site.Thumbnails, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := demoID(r)
		if !ok {
			http.Error(w, "Invalid demo id", http.StatusBadRequest)
			return
		}
		demo, ok := content.Demo(id)
		if !ok {
			http.NotFound(w, r)
			return
		}

		data, err := thumbs.Get(demo)
		if err != nil {
			logger.Error("Failed to render thumbnail for demo %d: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Write(data)
	}
}

// DemosHandler lists the demos with their results.
func DemosHandler(content *site.Site, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		demos := make([]DemoInfo, 0, len(content.Demos))
		for _, d := range content.Demos {
			findings := d.Findings
			if findings == nil {
				findings = []string{}
			}
			demos = append(demos, DemoInfo{
				ID:       d.ID,
				Caption:  d.Caption,
				ImageURL: fmt.Sprintf("/demos/image?id=%d", d.ID),
				Findings: findings,
				Clear:    d.Clear,
				Result:   d.Result(),
			})
		}
		writeJSON(w, http.StatusOK, demos, logger)
	}
}
