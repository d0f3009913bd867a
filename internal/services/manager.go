package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"lungdetect/internal/config"
	"lungdetect/internal/dto"
	"lungdetect/internal/logger"
	"lungdetect/internal/services/ai"
	"lungdetect/internal/services/storage"
	"lungdetect/internal/services/websocket"

	"github.com/google/uuid"
)

// ErrBusy is returned when every worker is occupied and the queue is full.
var ErrBusy = errors.New("processing queue full")

// ErrStopped is returned after Stop.
var ErrStopped = errors.New("manager stopped")

// EventAnalysis is the websocket event type of a finished upload.
const EventAnalysis = "analysis"

type Manager struct {
	bufferService    *storage.BufferService // nil when history is disabled
	detectorServices []*ai.DetectorService
	websocketService *websocket.HubService
	logger           *logger.Logger

	processingQueue chan processingTask
	numWorkers      int
	stopped         bool

	stopMu sync.RWMutex
	wg     sync.WaitGroup
}

type processingTask struct {
	ctx    context.Context
	upload *dto.Upload
	tensor []float32
	reply  chan taskResult
}

type taskResult struct {
	result *dto.AnalysisResult
	err    error
}

// NewManager starts one worker per detector service.
func NewManager(detectorServices []*ai.DetectorService, bufferService *storage.BufferService, websocketService *websocket.HubService, config *config.Config, logger *logger.Logger) *Manager {
	manager := &Manager{
		detectorServices: detectorServices,
		bufferService:    bufferService,
		websocketService: websocketService,
		numWorkers:       len(detectorServices),
		processingQueue:  make(chan processingTask, config.QueueSize),
		logger:           logger,
	}

	for i := 0; i < manager.numWorkers; i++ {
		manager.wg.Add(1)
		go manager.processingWorker(i)
	}

	manager.logger.Info("Manager started with %d worker(s), queue size %d", manager.numWorkers, config.QueueSize)
	return manager
}

// Analyze classifies an uploaded radiograph. It fails fast with ErrBusy
// when the queue is full and otherwise waits for a worker or ctx.
func (m *Manager) Analyze(ctx context.Context, upload dto.Upload) (*dto.AnalysisResult, error) {
	return m.submit(ctx, processingTask{upload: &upload})
}

// AnalyzeTensor classifies an already preprocessed input. Such requests
// are not recorded in the history.
func (m *Manager) AnalyzeTensor(ctx context.Context, data []float32) (*dto.AnalysisResult, error) {
	return m.submit(ctx, processingTask{tensor: data})
}

func (m *Manager) submit(ctx context.Context, task processingTask) (*dto.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	task.ctx = ctx
	task.reply = make(chan taskResult, 1)

	m.stopMu.RLock()
	if m.stopped {
		m.stopMu.RUnlock()
		return nil, ErrStopped
	}
	select {
	case m.processingQueue <- task:
	default:
		m.stopMu.RUnlock()
		m.logger.Warning("Processing queue full - rejecting request")
		return nil, ErrBusy
	}
	m.stopMu.RUnlock()

	select {
	case res := <-task.reply:
		return res.result, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) GetWebsocketService() *websocket.HubService {
	return m.websocketService
}

func (m *Manager) GetBufferService() *storage.BufferService {
	return m.bufferService
}

func (m *Manager) GetDetectorService() []*ai.DetectorService {
	return m.detectorServices
}

// Metadata describes the model every worker runs.
func (m *Manager) Metadata() ai.Metadata {
	if len(m.detectorServices) == 0 {
		return ai.DefaultMetadata()
	}
	return m.detectorServices[0].Metadata()
}

// Workers returns the number of processing workers.
func (m *Manager) Workers() int {
	return m.numWorkers
}

// QueueLength returns the number of waiting tasks.
func (m *Manager) QueueLength() int {
	return len(m.processingQueue)
}

// processingWorker przetwarza zadania w osobnym wątku
func (m *Manager) processingWorker(workerID int) {
	defer m.wg.Done()

	m.logger.Info("Processing worker %d started", workerID)

	for task := range m.processingQueue {
		if err := task.ctx.Err(); err != nil {
			task.reply <- taskResult{err: err}
			continue
		}
		result, err := m.process(task, workerID)
		task.reply <- taskResult{result: result, err: err}
	}

	m.logger.Info("Processing worker %d stopped", workerID)
}

func (m *Manager) process(task processingTask, workerID int) (*dto.AnalysisResult, error) {
	detector := m.detectorServices[workerID]
	id := uuid.NewString()

	if task.upload == nil {
		pred, err := detector.AnalyzeTensor(task.tensor)
		if err != nil {
			m.logger.Error("Worker %d: tensor analysis failed: %v", workerID, err)
			return nil, err
		}
		return dto.NewAnalysisResult(id, pred, nil), nil
	}

	img, format, err := ai.DecodeImageBytes(task.upload.Data)
	if err != nil {
		m.logger.Warning("Worker %d: rejected upload %q: %v", workerID, task.upload.Filename, err)
		return nil, err
	}

	pred, err := detector.Analyze(img)
	if err != nil {
		m.logger.Error("Worker %d: analysis of %q failed: %v", workerID, task.upload.Filename, err)
		return nil, err
	}

	bounds := img.Bounds()
	result := dto.NewAnalysisResult(id, pred, &dto.ImageDetails{
		Format: format,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	})
	m.logger.Info("Worker %d: %s -> %s (%dms)", workerID, task.upload.Filename, result.Summary, result.ElapsedMS)

	// the caller already got an error, so the analysis is not kept
	if err := task.ctx.Err(); err != nil {
		m.logger.Warning("Worker %d: %s abandoned by caller: %v", workerID, task.upload.Filename, err)
		return nil, err
	}

	m.record(*task.upload, result)
	return result, nil
}

// record stores the analysis and notifies viewers.
func (m *Manager) record(upload dto.Upload, result *dto.AnalysisResult) {
	now := time.Now()
	item := dto.BufferedAnalysis{Upload: upload, Result: result, CreatedAt: now}

	var filename string
	if m.bufferService != nil {
		filename = storage.StoredFilename(item)
		m.bufferService.Add(item)
	}

	if m.websocketService == nil {
		return
	}
	msg, err := json.Marshal(dto.Event{
		Type:     EventAnalysis,
		Analysis: result,
		Filename: filename,
		At:       now,
	})
	if err != nil {
		m.logger.Error("Failed to encode event: %v", err)
		return
	}
	m.websocketService.Broadcast(msg)
}

// Stop zatrzymuje wszystkie workery i zwalnia modele
func (m *Manager) Stop() {
	m.stopMu.Lock()
	if m.stopped {
		m.stopMu.Unlock()
		return
	}
	m.stopped = true
	close(m.processingQueue)
	m.stopMu.Unlock()

	m.wg.Wait()

	for i, detector := range m.detectorServices {
		if err := detector.Close(); err != nil {
			m.logger.Error("Failed to close detector %d: %v", i, err)
		}
	}
	m.logger.Info("All processing workers stopped")
}

// IsUserError reports whether err was caused by the upload rather than the server.
func IsUserError(err error) bool {
	return errors.Is(err, ai.ErrInvalidImage)
}

