package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"image-normalizer-go/internal/config"
	"image-normalizer-go/internal/imagefile"
	"image-normalizer-go/internal/logger"
	"image-normalizer-go/internal/processor"
	"image-normalizer-go/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// UploadField is the multipart field carrying the images, in order.
const UploadField = "files"

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	service    *processor.Service
	sink       storage.Sink
	validate   *validator.Validate
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	// wsMutex also serializes writes; a websocket.Conn allows one writer at a time.
	wsMutex sync.Mutex

	startedAt     time.Time
	activeBatches atomic.Int64
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ProcessedFile describes one stored result of a batch.
type ProcessedFile struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Location string `json:"location"`
}

// BatchError describes the failure that ended a batch.
type BatchError struct {
	Index   int    `json:"index"`
	Kind    string `json:"kind"`
	File    string `json:"file,omitempty"`
	Message string `json:"message"`
}

// BatchResult is the response body of the resize and compress endpoints.
type BatchResult struct {
	BatchID   string          `json:"batch_id"`
	Operation string          `json:"operation"`
	Files     []ProcessedFile `json:"files"`
	Error     *BatchError     `json:"error,omitempty"`
}

func NewServer(cfg *config.Config, log *logrus.Logger, service *processor.Service, sink storage.Sink) *Server {
	if log == nil {
		log = logger.NewNopLogger()
	}
	s := &Server{
		cfg:       cfg,
		log:       log,
		service:   service,
		sink:      sink,
		validate:  newValidator(),
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
		startedAt: time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/statistics", s.handleGetStatistics).Methods("GET")
	api.HandleFunc("/resize", s.handleResize).Methods("POST")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler returns the router serving every endpoint.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
		// Batches answer only once every file is processed.
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.wsMutex.Lock()
	for conn := range s.wsClients {
		conn.Close()
		delete(s.wsClients, conn)
	}
	s.wsMutex.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":        s.activeBatches.Load() > 0,
			"active_batches": s.activeBatches.Load(),
			"uptime":         time.Since(s.startedAt).Round(time.Second).String(),
			"storage":        s.cfg.Output.Storage,
		},
	})
}

func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	stats := s.service.Statistics()
	s.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"summary":    stats.GetSummary(),
			"counters":   stats.Snapshot(),
			"mime_types": stats.GetMimeTypeBreakdown(),
			"errors":     stats.GetErrorSummary(),
		},
	})
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	q, err := parseResizeQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(q); err != nil {
		s.writeError(w, validationMessage(err), http.StatusBadRequest)
		return
	}

	files, err := s.readUploads(w, r)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	opts := &processor.ResizeOptions{
		AspectRatio: processor.AspectRatio{
			KeepAspectRatio:    q.KeepAspectRatio,
			ForceMinDimensions: q.ForceMinDimensions,
		},
		Filter: q.Filter,
	}
	s.runBatch(w, r, "resize", func(ctx context.Context) <-chan processor.Result {
		return s.service.ResizeImages(ctx, files, q.Width, q.Height, opts)
	})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	q, err := parseCompressQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(q); err != nil {
		s.writeError(w, validationMessage(err), http.StatusBadRequest)
		return
	}

	files, err := s.readUploads(w, r)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.runBatch(w, r, "compress", func(ctx context.Context) <-chan processor.Result {
		return s.service.CompressImages(ctx, files, q.TargetMB)
	})
}

// runBatch stores every result of start as it arrives and answers once the
// stream ends. Progress is broadcast to websocket clients.
func (s *Server) runBatch(w http.ResponseWriter, r *http.Request, operation string, start func(context.Context) <-chan processor.Result) {
	ctx, cancel := context.WithCancel(r.Context())

	batchID := uuid.New().String()
	log := logger.ForOperation(s.log, operation, logrus.Fields{"batch_id": batchID})

	s.activeBatches.Add(1)
	defer s.activeBatches.Add(-1)

	result := BatchResult{BatchID: batchID, Operation: operation, Files: []ProcessedFile{}}

	results := start(ctx)
	// Draining waits for the producer to record the batch outcome.
	defer func() {
		cancel()
		for range results {
		}
	}()

	for res := range results {
		if res.Err != nil {
			result.Error = newBatchError(len(result.Files), res.Err)
			log.WithError(res.Err).Warn("Batch failed")
			s.broadcastWSMessage("batch_failed", result)
			s.writeJSON(w, statusFor(res.Err), APIResponse{Success: false, Data: result, Error: res.Err.Error()})
			return
		}

		location, err := s.sink.Save(ctx, res.File)
		if err != nil {
			result.Error = &BatchError{
				Index:   len(result.Files),
				Kind:    "STORAGE_ERROR",
				File:    res.File.Name,
				Message: err.Error(),
			}
			log.WithError(err).Error("Failed to store processed file")
			s.broadcastWSMessage("batch_failed", result)
			s.writeJSON(w, http.StatusInternalServerError, APIResponse{Success: false, Data: result, Error: err.Error()})
			return
		}

		file := ProcessedFile{
			Index:    len(result.Files),
			Name:     res.File.Name,
			MimeType: res.File.MimeType,
			Size:     res.File.Size(),
			Location: location,
		}
		result.Files = append(result.Files, file)
		s.broadcastWSMessage("file_processed", map[string]interface{}{
			"batch_id":  batchID,
			"operation": operation,
			"file":      file,
		})
	}

	log.WithField("files", len(result.Files)).Info("Batch stored")
	s.broadcastWSMessage("batch_completed", result)
	s.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: result})
}

// readUploads returns the uploaded files in the order they were sent.
func (s *Server) readUploads(w http.ResponseWriter, r *http.Request) ([]imagefile.ImageFile, error) {
	limit := s.cfg.Server.MaxUploadSize * imagefile.BytesPerMB
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, fmt.Errorf("invalid multipart body: %w", err)
	}

	headers := r.MultipartForm.File[UploadField]
	files := make([]imagefile.ImageFile, 0, len(headers))
	for _, fh := range headers {
		f, err := readUpload(fh)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func readUpload(fh *multipart.FileHeader) (imagefile.ImageFile, error) {
	src, err := fh.Open()
	if err != nil {
		return imagefile.ImageFile{}, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return imagefile.ImageFile{}, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	return imagefile.New(filepath.Base(fh.Filename), imagefile.DetectMimeType(data), data, time.Now()), nil
}

func newBatchError(index int, err error) *BatchError {
	be := &BatchError{
		Index:   index,
		Kind:    processor.KindOf(err).String(),
		Message: err.Error(),
	}
	var fe *processor.FileError
	if errors.As(err, &fe) && fe.File != nil {
		be.File = fe.File.Name
	}
	return be
}

func statusFor(err error) int {
	if processor.KindOf(err) == processor.KindNoFilesReceived {
		return http.StatusBadRequest
	}
	return http.StatusUnprocessableEntity
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	// Remove client on disconnect
	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}
