package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"waveline/internal/api"
	"waveline/internal/blobstore"
	"waveline/internal/delivery"
	"waveline/internal/ingest"
	"waveline/internal/ledger"
	"waveline/internal/logging"
	"waveline/internal/media/ffprobe"
	"waveline/internal/testsupport"
)

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: make(map[string][]byte)}
}

func (m *memBlobs) UploadFile(_ context.Context, key, localPath, _ string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memBlobs) DownloadFile(context.Context, string, string) error { return nil }

func (m *memBlobs) Open(_ context.Context, key string) (io.ReadCloser, blobstore.ObjectInfo, error) {
	m.mu.Lock()
	data, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return nil, blobstore.ObjectInfo{}, blobstore.ErrObjectMissing
	}
	return io.NopCloser(bytes.NewReader(data)), m.info(key, data), nil
}

func (m *memBlobs) Stat(_ context.Context, key string) (blobstore.ObjectInfo, error) {
	m.mu.Lock()
	data, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return blobstore.ObjectInfo{}, blobstore.ErrObjectMissing
	}
	return m.info(key, data), nil
}

func (m *memBlobs) info(key string, data []byte) blobstore.ObjectInfo {
	return blobstore.ObjectInfo{Key: key, Size: int64(len(data)), ContentType: blobstore.ContentTypeForKey(key)}
}

func (m *memBlobs) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memBlobs) PresignGet(_ context.Context, key, _ string) (string, error) {
	return "https://blobs.example/" + key + "?signed=1", nil
}

type fakeQueue struct {
	mu       sync.Mutex
	enqueued []string
}

func (f *fakeQueue) EnqueueTranscode(_ context.Context, recordID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, recordID)
	return nil
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

type testStack struct {
	handler http.Handler
	store   *ledger.Store
	blobs   *memBlobs
	queue   *fakeQueue
	pinger  *fakePinger
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	blobs := newMemBlobs()
	queue := &fakeQueue{}
	pinger := &fakePinger{}

	ingestSvc := ingest.NewService(cfg, store, blobs, queue, logging.NewNop()).WithProbe(
		func(context.Context, string, string) (ffprobe.Result, error) {
			return ffprobe.Result{Streams: []ffprobe.Stream{{CodecType: "audio", CodecName: "opus"}}}, nil
		},
	)
	deliverySvc := delivery.NewService(store, blobs)
	server := api.NewServer(cfg, ingestSvc, deliverySvc, store, pinger, logging.NewNop())
	return &testStack{
		handler: server.Router(),
		store:   store,
		blobs:   blobs,
		queue:   queue,
		pinger:  pinger,
	}
}

func multipartUpload(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func postUpload(t *testing.T, stack *testStack, fields map[string]string, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, fields, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recordings", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	stack.handler.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(resp.Body.Bytes(), target); err != nil {
		t.Fatalf("decode response %q: %v", resp.Body.String(), err)
	}
}

func TestUploadCreatesRecording(t *testing.T) {
	stack := newTestStack(t)

	resp := postUpload(t, stack, map[string]string{"source": "mobile", "external_id": "x-1"}, "note.opus", "audio-1")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var payload struct {
		ID               string `json:"id"`
		Status           string `json:"status"`
		Fingerprint      string `json:"fingerprint"`
		OriginalLocation string `json:"original_location"`
		Cached           bool   `json:"cached"`
	}
	decodeBody(t, resp, &payload)
	if payload.ID == "" || payload.Status != "pending" || payload.Cached {
		t.Fatalf("unexpected payload: %#v", payload)
	}
	if len(stack.queue.enqueued) != 1 {
		t.Fatalf("expected one enqueued job, got %v", stack.queue.enqueued)
	}
	if _, ok := stack.blobs.objects[payload.OriginalLocation]; !ok {
		t.Fatalf("original not stored at %s", payload.OriginalLocation)
	}
}

func TestUploadDuplicateReturnsCachedHit(t *testing.T) {
	stack := newTestStack(t)

	first := postUpload(t, stack, map[string]string{"source": "mobile"}, "a.opus", "same-bytes")
	if first.Code != http.StatusCreated {
		t.Fatalf("first upload: expected 201, got %d", first.Code)
	}
	second := postUpload(t, stack, map[string]string{"source": "web"}, "b.opus", "same-bytes")
	if second.Code != http.StatusOK {
		t.Fatalf("duplicate upload: expected 200, got %d", second.Code)
	}

	var payload struct {
		Cached bool `json:"cached"`
	}
	decodeBody(t, second, &payload)
	if !payload.Cached {
		t.Fatal("expected cached flag on duplicate upload")
	}
}

func TestUploadValidationErrors(t *testing.T) {
	stack := newTestStack(t)

	missingFile := postUpload(t, stack, map[string]string{"source": "mobile"}, "", "")
	if missingFile.Code != http.StatusBadRequest {
		t.Fatalf("missing file: expected 400, got %d", missingFile.Code)
	}
	var envelope struct {
		Error struct {
			Kind string `json:"kind"`
		} `json:"error"`
	}
	decodeBody(t, missingFile, &envelope)
	if envelope.Error.Kind != "validation" {
		t.Fatalf("unexpected error kind: %s", envelope.Error.Kind)
	}

	missingSource := postUpload(t, stack, nil, "a.opus", "audio")
	if missingSource.Code != http.StatusBadRequest {
		t.Fatalf("missing source: expected 400, got %d", missingSource.Code)
	}
}

func TestUploadFormatRejection(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	blobs := newMemBlobs()
	queue := &fakeQueue{}
	ingestSvc := ingest.NewService(cfg, store, blobs, queue, logging.NewNop()).WithProbe(
		func(context.Context, string, string) (ffprobe.Result, error) {
			return ffprobe.Result{Streams: []ffprobe.Stream{{CodecType: "audio", CodecName: "aac"}}}, nil
		},
	)
	server := api.NewServer(cfg, ingestSvc, delivery.NewService(store, blobs), store, &fakePinger{}, logging.NewNop())
	stack := &testStack{handler: server.Router(), store: store, blobs: blobs, queue: queue}

	resp := postUpload(t, stack, map[string]string{"source": "mobile"}, "a.m4a", "aac-bytes")
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Error struct {
			Kind    string         `json:"kind"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	decodeBody(t, resp, &envelope)
	if envelope.Error.Kind != "format_rejected" {
		t.Fatalf("unexpected kind: %s", envelope.Error.Kind)
	}
	if _, ok := envelope.Error.Details["detected_codecs"]; !ok {
		t.Fatalf("expected detected codecs in details: %#v", envelope.Error.Details)
	}
}

func TestStatusEndpoint(t *testing.T) {
	stack := newTestStack(t)

	created := postUpload(t, stack, map[string]string{"source": "mobile"}, "a.opus", "status-bytes")
	var uploaded struct {
		ID string `json:"id"`
	}
	decodeBody(t, created, &uploaded)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/recordings/"+uploaded.ID, nil)
	resp := httptest.NewRecorder()
	stack.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var record struct {
		ID     string `json:"id"`
		Source string `json:"source"`
		Status string `json:"status"`
	}
	decodeBody(t, resp, &record)
	if record.ID != uploaded.ID || record.Source != "mobile" || record.Status != "pending" {
		t.Fatalf("unexpected record view: %#v", record)
	}

	missing := httptest.NewRequest(http.MethodGet, "/api/v1/recordings/"+uuid.NewString(), nil)
	missingResp := httptest.NewRecorder()
	stack.handler.ServeHTTP(missingResp, missing)
	if missingResp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown record, got %d", missingResp.Code)
	}
}

func TestDownloadStreamsOriginal(t *testing.T) {
	stack := newTestStack(t)

	created := postUpload(t, stack, map[string]string{"source": "mobile"}, "a.opus", "download-bytes")
	var uploaded struct {
		ID string `json:"id"`
	}
	decodeBody(t, created, &uploaded)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/recordings/"+uploaded.ID+"/download?format=original", nil)
	resp := httptest.NewRecorder()
	stack.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if resp.Body.String() != "download-bytes" {
		t.Fatalf("unexpected body: %q", resp.Body.String())
	}
	if got := resp.Header().Get("Content-Type"); got != "audio/ogg" {
		t.Fatalf("unexpected content type: %s", got)
	}
	if got := resp.Header().Get("Content-Disposition"); !strings.Contains(got, uploaded.ID) {
		t.Fatalf("expected record id in disposition, got %s", got)
	}
}

func TestDownloadRedirectsToPresignedURL(t *testing.T) {
	stack := newTestStack(t)

	created := postUpload(t, stack, map[string]string{"source": "mobile"}, "a.opus", "redirect-bytes")
	var uploaded struct {
		ID string `json:"id"`
	}
	decodeBody(t, created, &uploaded)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/recordings/"+uploaded.ID+"/download?format=original&redirect=1", nil)
	resp := httptest.NewRecorder()
	stack.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307, got %d", resp.Code)
	}
	if loc := resp.Header().Get("Location"); !strings.Contains(loc, "signed=1") {
		t.Fatalf("expected presigned location, got %s", loc)
	}
}

func TestDownloadErrorMapping(t *testing.T) {
	stack := newTestStack(t)

	created := postUpload(t, stack, map[string]string{"source": "mobile"}, "a.opus", "error-bytes")
	var uploaded struct {
		ID               string `json:"id"`
		OriginalLocation string `json:"original_location"`
	}
	decodeBody(t, created, &uploaded)

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		stack.handler.ServeHTTP(resp, req)
		return resp
	}

	if resp := get("/api/v1/recordings/not-a-uuid/download?format=mp3"); resp.Code != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", resp.Code)
	}
	if resp := get("/api/v1/recordings/" + uploaded.ID + "/download?format=flac"); resp.Code != http.StatusBadRequest {
		t.Fatalf("bad selector: expected 400, got %d", resp.Code)
	}
	if resp := get("/api/v1/recordings/" + uuid.NewString() + "/download?format=mp3"); resp.Code != http.StatusNotFound {
		t.Fatalf("missing record: expected 404, got %d", resp.Code)
	}

	notReady := get("/api/v1/recordings/" + uploaded.ID + "/download?format=mp3")
	if notReady.Code != http.StatusConflict {
		t.Fatalf("not ready: expected 409, got %d", notReady.Code)
	}
	var envelope struct {
		Error struct {
			Kind    string         `json:"kind"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	decodeBody(t, notReady, &envelope)
	if envelope.Error.Kind != "variant_not_ready" || envelope.Error.Details["status"] != "pending" {
		t.Fatalf("unexpected not-ready envelope: %#v", envelope)
	}

	if err := stack.blobs.Remove(context.Background(), uploaded.OriginalLocation); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	gone := get("/api/v1/recordings/" + uploaded.ID + "/download?format=original")
	if gone.Code != http.StatusNotFound {
		t.Fatalf("object missing: expected 404, got %d", gone.Code)
	}
	decodeBody(t, gone, &envelope)
	if envelope.Error.Kind != "object_missing" {
		t.Fatalf("expected object_missing kind, got %s", envelope.Error.Kind)
	}
}

func TestHealthzReportsQueueState(t *testing.T) {
	stack := newTestStack(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/healthz", nil)
	resp := httptest.NewRecorder()
	stack.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	stack.pinger.err = errors.New("redis unreachable")
	degraded := httptest.NewRecorder()
	stack.handler.ServeHTTP(degraded, httptest.NewRequest(http.MethodGet, "/api/v1/healthz", nil))
	if degraded.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when queue backend is down, got %d", degraded.Code)
	}
	var payload struct {
		Status string `json:"status"`
		Queue  struct {
			OK bool `json:"ok"`
		} `json:"queue"`
	}
	decodeBody(t, degraded, &payload)
	if payload.Status != "degraded" || payload.Queue.OK {
		t.Fatalf("unexpected health payload: %#v", payload)
	}
}
