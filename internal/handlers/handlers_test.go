package handlers

import (
	"bytes"
	"encoding/json"
	"image"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lungdetect/internal/config"
	"lungdetect/internal/dto"
	"lungdetect/internal/labels"
	"lungdetect/internal/logger"
	"lungdetect/internal/middleware"
	"lungdetect/internal/repository/sqlite"
	"lungdetect/internal/services"
	"lungdetect/internal/services/ai"
	"lungdetect/internal/services/storage"
	"lungdetect/internal/site"
	"lungdetect/internal/web"
)

// ========================================
// Test Setup Helpers
// ========================================

type stubBackend struct {
	output []float32
	panics bool
}

func (b *stubBackend) Run(input []float32) ([]float32, error) {
	if b.panics {
		panic("boom")
	}
	return b.output, nil
}

func (b *stubBackend) Close() error { return nil }

type env struct {
	cfg      *config.Config
	log      *logger.Logger
	manager  *services.Manager
	content  *site.Site
	renderer *web.Renderer
	analyses *sqlite.AnalysisRepository
	findings *sqlite.FindingRepository
	buffer   *storage.BufferService
}

func newEnv(t *testing.T, backend ai.Backend) *env {
	t.Helper()
	root := t.TempDir()

	cfg := &config.Config{
		ModelBackend:   config.BackendONNX,
		Threshold:      0.5,
		QueueSize:      4,
		RequestTimeout: 5 * time.Second,
		MaxUploadSize:  1 << 20,
		ImageDirectory: filepath.Join(root, "images"),
		AdminPassword:  "secret",
	}
	log := logger.NewDiscardLogger()

	db, err := sqlite.New(filepath.Join(root, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	e := &env{
		cfg:      cfg,
		log:      log,
		analyses: sqlite.NewAnalysisRepository(db),
		findings: sqlite.NewFindingRepository(db),
	}
	e.buffer = storage.NewBufferService(cfg.ImageDirectory, 1, log, e.analyses)

	detector := ai.NewDetectorService(backend, ai.DefaultMetadata(), 0.5, log)
	e.manager = services.NewManager([]*ai.DetectorService{detector}, e.buffer, nil, cfg, log)
	t.Cleanup(e.manager.Stop)

	e.content, err = site.Default()
	require.NoError(t, err)
	e.renderer, err = web.NewRenderer()
	require.NoError(t, err)
	return e
}

func output(hot ...int) []float32 {
	out := make([]float32, labels.Count+1)
	for _, i := range hot {
		out[i] = 0.9
	}
	return out
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, url, field, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// ========================================
// Page
// ========================================

func TestIndexHandler(t *testing.T) {
	e := newEnv(t, &stubBackend{output: output()})
	h := IndexHandler(e.content, e.renderer, e.log)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Submit Your Own")

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDetectHandler_ShowsFindings(t *testing.T) {
	e := newEnv(t, &stubBackend{output: output(3, 10)})
	h := DetectHandler(e.manager, e.content, e.renderer, e.cfg, e.log)

	rec := httptest.NewRecorder()
	h(rec, multipartRequest(t, "/detect", UploadField, "chest.jpg", jpegBytes(t, 300, 200)))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Abnormality Detected: Cardiomegaly")
	assert.Contains(t, body, "Abnormality Detected: Pleural Effusion")
	assert.Contains(t, body, "chest.jpg")
	assert.Contains(t, body, `src="data:image/jpeg;base64,`)
	assert.Contains(t, body, web.UploadCaption)
	assert.NotContains(t, body, ai.UserWarning)
}

func TestDetectHandler_NoFindings(t *testing.T) {
	e := newEnv(t, &stubBackend{output: output(labels.NoFindingIndex)})
	h := DetectHandler(e.manager, e.content, e.renderer, e.cfg, e.log)

	rec := httptest.NewRecorder()
	h(rec, multipartRequest(t, "/detect", UploadField, "chest.jpg", jpegBytes(t, 64, 64)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), labels.NoneDetected)
}

func TestDetectHandler_InvalidUploadShowsWarning(t *testing.T) {
	big := bytes.Repeat([]byte{0xff}, 2<<20)

	tests := []struct {
		name    string
		backend *stubBackend
		req     func(t *testing.T) *http.Request
	}{
		{"not an image", &stubBackend{output: output()}, func(t *testing.T) *http.Request {
			return multipartRequest(t, "/detect", UploadField, "notes.txt", []byte("hello"))
		}},
		{"truncated jpeg", &stubBackend{output: output()}, func(t *testing.T) *http.Request {
			data := jpegBytes(t, 64, 64)
			return multipartRequest(t, "/detect", UploadField, "x.jpg", data[:len(data)/3])
		}},
		{"wrong field", &stubBackend{output: output()}, func(t *testing.T) *http.Request {
			return multipartRequest(t, "/detect", "file", "x.jpg", jpegBytes(t, 8, 8))
		}},
		{"too large", &stubBackend{output: output()}, func(t *testing.T) *http.Request {
			return multipartRequest(t, "/detect", UploadField, "x.jpg", big)
		}},
		{"not multipart", &stubBackend{output: output()}, func(t *testing.T) *http.Request {
			return httptest.NewRequest(http.MethodPost, "/detect", strings.NewReader("image=1"))
		}},
		{"backend panic", &stubBackend{panics: true}, func(t *testing.T) *http.Request {
			return multipartRequest(t, "/detect", UploadField, "x.jpg", jpegBytes(t, 8, 8))
		}},
		{"bad model output", &stubBackend{output: []float32{0.1}}, func(t *testing.T) *http.Request {
			return multipartRequest(t, "/detect", UploadField, "x.jpg", jpegBytes(t, 8, 8))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.backend)
			h := DetectHandler(e.manager, e.content, e.renderer, e.cfg, e.log)

			rec := httptest.NewRecorder()
			assert.NotPanics(t, func() { h(rec, tt.req(t)) })

			assert.NotEqual(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), ai.UserWarning)
			assert.Contains(t, rec.Body.String(), "<title>Lung Abnormality Detection</title>")
			assert.NotContains(t, rec.Body.String(), web.UploadCaption)
		})
	}
}

func TestDetectHandler_GetRedirects(t *testing.T) {
	e := newEnv(t, &stubBackend{output: output()})
	rec := httptest.NewRecorder()
	DetectHandler(e.manager, e.content, e.renderer, e.cfg, e.log)(rec, httptest.NewRequest(http.MethodGet, "/detect", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

// ========================================
// Demos
// ========================================

func TestDemoDetectHandler(t *testing.T) {
	e := newEnv(t, &stubBackend{output: output()})
	h := DemoDetectHandler(e.content, e.renderer, 0, e.log)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/demos/detect?id=2", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Abnormality Detected: Interstitial Lung Disease (ILD)")

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/demos/detect?id=99", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/demos/detect?id=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDemoImageHandler(t *testing.T) {
	e := newEnv(t, &stubBackend{output: output()})
	h := DemoImageHandler(e.content, site.NewThumbnails(32, t.TempDir(), e.log), e.log)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/demos/image?id=1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/demos/image?id=7", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDemosHandler(t *testing.T) {
	e := newEnv(t, &stubBackend{output: output()})

	rec := httptest.NewRecorder()
	DemosHandler(e.content, e.log)(rec, httptest.NewRequest(http.MethodGet, "/api/demos", nil))

	var demos []DemoInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &demos))
	require.Len(t, demos, 4)
	assert.True(t, demos[2].Clear)
	assert.Equal(t, labels.AllClear, demos[2].Result)
	assert.Equal(t, "/demos/image?id=1", demos[0].ImageURL)
}

// ========================================
// Predict API
// ========================================

func TestPredictHandler(t *testing.T) {
	e := newEnv(t, &stubBackend{output: output(0)})
	h := PredictHandler(e.manager, e.cfg, e.log)

	rec := httptest.NewRecorder()
	h(rec, multipartRequest(t, "/api/predict", UploadField, "a.jpg", jpegBytes(t, 20, 10)))
	require.Equal(t, http.StatusOK, rec.Code)

	var res dto.AnalysisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "Abnormality Detected: Aortic Enlargement", res.Summary)
	assert.Equal(t, "jpeg", res.Image.Format)
	assert.Len(t, res.Findings, labels.Count)
}

func TestPredictHandler_Invalid(t *testing.T) {
	e := newEnv(t, &stubBackend{output: output(0)})
	h := PredictHandler(e.manager, e.cfg, e.log)

	rec := httptest.NewRecorder()
	h(rec, multipartRequest(t, "/api/predict", UploadField, "a.gif", []byte("GIF89a")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var res dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, ai.UserWarning, res.Warning)

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/predict", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPredictTensorHandler(t *testing.T) {
	e := newEnv(t, &stubBackend{output: output(12)})
	h := PredictTensorHandler(e.manager, e.cfg, e.log)
	e.cfg.MaxUploadSize = 8 << 20

	payload, err := json.Marshal(TensorRequest{Image: make([]float32, ai.DefaultMetadata().InputSize())})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/api/predict/tensor", bytes.NewReader(payload)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Pneumothorax")

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/api/predict/tensor", strings.NewReader(`{"image":[1,2,3]}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Expected 65536 values, got 3")

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/api/predict/tensor", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLabelsHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LabelsHandler(logger.NewDiscardLogger())(rec, httptest.NewRequest(http.MethodGet, "/api/labels", nil))

	var got []labels.Label
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, labels.Count)
}

func TestHealthHandler(t *testing.T) {
	e := newEnv(t, &stubBackend{output: output()})

	rec := httptest.NewRecorder()
	HealthHandler(e.manager, e.cfg, e.log)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, 1, status.Workers)
	assert.True(t, status.History)
}

// ========================================
// History
// ========================================

func TestHistoryHandlers(t *testing.T) {
	e := newEnv(t, &stubBackend{output: output(3)})

	rec := httptest.NewRecorder()
	PredictHandler(e.manager, e.cfg, e.log)(rec, multipartRequest(t, "/api/predict", UploadField, "a.jpg", jpegBytes(t, 16, 16)))
	require.Equal(t, http.StatusOK, rec.Code)

	// buffer limit is 1, the record is already flushed
	rec = httptest.NewRecorder()
	HistoryHandler(e.analyses, e.findings, e.log)(rec, httptest.NewRequest(http.MethodGet, "/api/history?label=cardiomegaly", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Items []struct {
			ID       string   `json:"id"`
			Filename string   `json:"filename"`
			Summary  string   `json:"summary"`
			Labels   []string `json:"labels"`
		} `json:"items"`
		Length int `json:"length"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Equal(t, 1, page.Length)
	item := page.Items[0]
	assert.Equal(t, []string{"cardiomegaly"}, item.Labels)
	assert.Equal(t, "Abnormality Detected: Cardiomegaly", item.Summary)

	rec = httptest.NewRecorder()
	ViewHistoryImageHandler(e.cfg.ImageDirectory)(rec, httptest.NewRequest(http.MethodGet, "/api/history/view?image="+item.Filename, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	HistoryStatsHandler(e.analyses, e.findings, e.log)(rec, httptest.NewRequest(http.MethodGet, "/api/history/stats", nil))
	var stats HistoryStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalAnalyses)
	assert.Equal(t, 1, stats.LabelCounts["cardiomegaly"])

	rec = httptest.NewRecorder()
	DeleteHistoryHandler(e.buffer, e.log)(rec, httptest.NewRequest(http.MethodPost, "/api/history/delete?id="+item.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := os.Stat(filepath.Join(e.cfg.ImageDirectory, item.Filename))
	assert.True(t, os.IsNotExist(err))
}

func TestViewHistoryImageHandler_RejectsTraversal(t *testing.T) {
	h := ViewHistoryImageHandler(t.TempDir())

	for _, name := range []string{"../secret", "a/b.png", ".."} {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/api/history/view?image="+name, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestClearHistoryHandler(t *testing.T) {
	e := newEnv(t, &stubBackend{output: output(3)})
	h := ClearHistoryHandler(e.buffer, e.log)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/history/clear", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/api/history/clear", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// ========================================
// Auth
// ========================================

func TestLoginLogout(t *testing.T) {
	cfg := &config.Config{AdminPassword: "secret"}
	sessions := middleware.NewSessions(time.Hour)
	login := LoginHandler(cfg, sessions, logger.NewDiscardLogger())

	post := func(password string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("password="+password))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		login(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, post("wrong").Code)

	rec := post("secret")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	token := cookies[0].Value
	assert.True(t, sessions.Valid(token))

	req := httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: token})
	rec = httptest.NewRecorder()
	LogoutHandler(sessions)(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.False(t, sessions.Valid(token))
}

func TestLoginDisabledWithoutPassword(t *testing.T) {
	login := LoginHandler(&config.Config{}, middleware.NewSessions(time.Hour), logger.NewDiscardLogger())

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("password="))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	login(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// ========================================
// Logs
// ========================================

func TestLogsHandlers(t *testing.T) {
	log, err := logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})
	require.NoError(t, err)
	defer log.Close()

	log.Info("hello from test")

	rec := httptest.NewRecorder()
	ShowLogsHandler(log, logger.InfoFile)(rec, httptest.NewRequest(http.MethodGet, "/logs/info", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hello from test")

	rec = httptest.NewRecorder()
	ClearLogsHandler(log, logger.InfoFile)(rec, httptest.NewRequest(http.MethodPost, "/logs/info/clear", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	ShowLogsHandler(log, logger.InfoFile)(rec, httptest.NewRequest(http.MethodGet, "/logs/info", nil))
	assert.NotContains(t, rec.Body.String(), "hello from test")
}
