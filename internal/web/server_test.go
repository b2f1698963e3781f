package web

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"image-normalizer-go/internal/config"
	"image-normalizer-go/internal/orientation"
	"image-normalizer-go/internal/processor"
	"image-normalizer-go/internal/storage"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batchResponse struct {
	Success bool        `json:"success"`
	Data    BatchResult `json:"data"`
	Error   string      `json:"error"`
}

type upload struct {
	name string
	data []byte
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	log, _ := test.NewNullLogger()

	cfg := config.DefaultConfig()
	cfg.Output.Directory = t.TempDir()
	cfg.Processing.Orientation = orientation.BackendNone

	service, err := processor.New(cfg.ProcessorConfig(), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = service.Close() })

	sink, err := storage.NewLocalSink(cfg.Output.Directory, storage.DuplicateRename, log)
	require.NoError(t, err)

	return NewServer(cfg, log, service, sink), cfg.Output.Directory
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 3), G: uint8(y * 5), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, target string, files ...upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := mw.CreateFormFile(UploadField, f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(t *testing.T, s *Server, req *http.Request) (*httptest.ResponseRecorder, batchResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp batchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func TestResizeEndpoint(t *testing.T) {
	s, dir := newTestServer(t)
	req := multipartRequest(t, "/api/resize?width=40&height=40&keep_aspect_ratio=true&filter=box",
		upload{"first.png", pngBytes(t, 80, 40)},
		upload{"second.png", pngBytes(t, 20, 60)},
	)

	rec, resp := serve(t, s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, resp.Success)

	_, err := uuid.Parse(resp.Data.BatchID)
	assert.NoError(t, err)
	require.Len(t, resp.Data.Files, 2)
	assert.Equal(t, "first.png", resp.Data.Files[0].Name)
	assert.Equal(t, "second.png", resp.Data.Files[1].Name)
	assert.Equal(t, 1, resp.Data.Files[1].Index)

	wantSizes := []image.Point{{40, 20}, {13, 40}}
	for i, f := range resp.Data.Files {
		assert.True(t, strings.HasPrefix(f.Location, dir))
		data, err := os.ReadFile(f.Location)
		require.NoError(t, err)
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, wantSizes[i], image.Pt(cfg.Width, cfg.Height))
	}
}

func TestCompressEndpointFastPath(t *testing.T) {
	s, _ := newTestServer(t)
	original := pngBytes(t, 10, 10)
	req := multipartRequest(t, "/api/compress?target_mb=5", upload{"tiny.png", original})

	rec, resp := serve(t, s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, resp.Data.Files, 1)
	stored, err := os.ReadFile(resp.Data.Files[0].Location)
	require.NoError(t, err)
	assert.Equal(t, original, stored)
	assert.Equal(t, "image/png", resp.Data.Files[0].MimeType)
}

func TestBatchStopsAtFirstFailure(t *testing.T) {
	s, dir := newTestServer(t)
	req := multipartRequest(t, "/api/resize?width=10&height=10",
		upload{"good.png", pngBytes(t, 20, 20)},
		upload{"broken.png", []byte("definitely not an image")},
		upload{"never.png", pngBytes(t, 20, 20)},
	)

	rec, resp := serve(t, s, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.False(t, resp.Success)

	require.Len(t, resp.Data.Files, 1)
	require.NotNil(t, resp.Data.Error)
	assert.Equal(t, 1, resp.Data.Error.Index)
	assert.Equal(t, "ENGINE_ERROR", resp.Data.Error.Kind)
	assert.Equal(t, "broken.png", resp.Data.Error.File)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.Equal(t, int64(1), s.service.Statistics().Snapshot().BatchesFailed)
}

func TestNoFilesReceived(t *testing.T) {
	s, _ := newTestServer(t)

	for _, req := range []*http.Request{
		multipartRequest(t, "/api/compress?target_mb=1"),
		httptest.NewRequest(http.MethodPost, "/api/compress?target_mb=1", nil),
	} {
		rec, resp := serve(t, s, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, resp.Data.Error)
		assert.Equal(t, "NO_FILES_RECEIVED", resp.Data.Error.Kind)
		assert.Empty(t, resp.Data.Files)
	}
}

func TestQueryValidation(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		wantErr string
	}{
		{"missing target", "/api/compress", "target_mb is required"},
		{"non-numeric target", "/api/compress?target_mb=big", "invalid target_mb"},
		{"zero target", "/api/compress?target_mb=0", "TargetMB"},
		{"negative width", "/api/resize?width=-1&height=5", "Width"},
		{"bad bool", "/api/resize?width=1&height=1&keep_aspect_ratio=maybe", "keep_aspect_ratio"},
		{"unknown filter", "/api/resize?width=1&height=1&filter=sharpest", "Filter"},
	}

	s, _ := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := multipartRequest(t, tt.target, upload{"a.png", pngBytes(t, 2, 2)})
			rec, resp := serve(t, s, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, resp.Error, tt.wantErr)
		})
	}
}

func TestStatusAndStatistics(t *testing.T) {
	s, _ := newTestServer(t)
	serve(t, s, multipartRequest(t, "/api/compress?target_mb=1", upload{"a.png", pngBytes(t, 4, 4)}))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, false, status.Data["running"])
	assert.Equal(t, "local", status.Data["storage"])

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/statistics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		Data struct {
			Summary   string                 `json:"summary"`
			Counters  map[string]interface{} `json:"counters"`
			MimeTypes string                 `json:"mime_types"`
			Errors    string                 `json:"errors"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.NotEmpty(t, stats.Data.Summary)
	assert.Equal(t, float64(1), stats.Data.Counters["files_unchanged"])
	assert.Equal(t, float64(1), stats.Data.Counters["batches_completed"])
	assert.Contains(t, stats.Data.MimeTypes, "image/png: 1")
	assert.Equal(t, "No errors occurred during processing", stats.Data.Errors)
}

func TestWebSocketBroadcast(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		s.wsMutex.Lock()
		defer s.wsMutex.Unlock()
		return len(s.wsClients) == 1
	}, time.Second, 10*time.Millisecond)

	req := multipartRequest(t, "/api/resize?width=8&height=8",
		upload{"a.png", pngBytes(t, 16, 16)},
		upload{"b.png", pngBytes(t, 16, 16)},
	)
	rec, _ := serve(t, s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var types []string
	var names []string
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for len(types) < 3 {
		var msg struct {
			Type string `json:"type"`
			Data struct {
				File ProcessedFile `json:"file"`
			} `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		types = append(types, msg.Type)
		if msg.Type == "file_processed" {
			names = append(names, msg.Data.File.Name)
		}
	}

	assert.Equal(t, []string{"file_processed", "file_processed", "batch_completed"}, types)
	assert.Equal(t, []string{"a.png", "b.png"}, names)
}
