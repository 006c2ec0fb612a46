package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"reimagine/internal/api"
	"reimagine/internal/blobstore"
	"reimagine/internal/gallery"
	"reimagine/internal/models"
	"reimagine/internal/provider"
	"reimagine/internal/store"
)

type stubProvider struct {
	result provider.Result
	calls  int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Generate(_ context.Context, _ provider.Request) provider.Result {
	p.calls++
	return p.result
}

type testServer struct {
	srv      *Server
	handler  http.Handler
	provider *stubProvider
	blobs    blobstore.BlobStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithSweepAge(t, 0)
}

func newTestServerWithSweepAge(t *testing.T, sweepMinAge time.Duration) *testServer {
	t.Helper()
	dir := t.TempDir()
	records, err := store.Open(filepath.Join(dir, "reimagine.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { records.Close() })
	blobs, err := blobstore.NewLocalFS(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("open blobs: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	p := &stubProvider{}
	svc := gallery.NewService(records, blobs, p, gallery.Options{
		Logger:         logger,
		Metrics:        gallery.NewMetrics(reg),
		MaxUploadBytes: 64 << 10,
		SweepMinAge:    sweepMinAge,
	})
	srv := New("127.0.0.1:0", svc, reg, logger)
	return &testServer{srv: srv, handler: srv.Handler(), provider: p, blobs: blobs}
}

func testPNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func (ts *testServer) doJSON(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return ts.do(t, method, path, bytes.NewReader(body), "application/json")
}

func (ts *testServer) upload(t *testing.T, filename, comment string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		part, err := mw.CreateFormFile("image", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.WriteField("comment", comment); err != nil {
		t.Fatalf("write comment: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return ts.do(t, http.MethodPost, "/v1/images", &body, mw.FormDataContentType())
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestImageLifecycleHandlers(t *testing.T) {
	ts := newTestServer(t)
	original := testPNG(t, color.RGBA{R: 255, A: 255})

	w := ts.upload(t, "cat.png", "make it cyberpunk", original)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	created := decodeBody[models.Image](t, w)
	if created.Filename != "cat.png" || created.GeneratedFilename != nil {
		t.Fatalf("unexpected record: %+v", created)
	}

	w = ts.do(t, http.MethodGet, "/v1/blobs/originals/cat.png", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if !bytes.Equal(w.Body.Bytes(), original) {
		t.Fatal("original blob did not round-trip")
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png, got %q", ct)
	}

	generated := testPNG(t, color.RGBA{G: 255, A: 255})
	ts.provider.result = provider.ResultFromString("data:image/png;base64," + base64.StdEncoding.EncodeToString(generated))
	w = ts.doJSON(t, http.MethodPost, "/v1/generate", api.GenerateRequest{Filename: "cat.png"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	updated := decodeBody[models.Image](t, w)
	if !updated.HasGenerated() {
		t.Fatalf("expected generated filename, got %+v", updated)
	}

	w = ts.do(t, http.MethodGet, "/v1/blobs/generated/"+updated.GeneratedName(), nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if _, err := png.Decode(bytes.NewReader(w.Body.Bytes())); err != nil {
		t.Fatalf("generated blob is not a png: %v", err)
	}

	comment := "now in watercolor"
	w = ts.doJSON(t, http.MethodPatch, "/v1/images/cat.png", api.CommentUpdateRequest{Comment: &comment})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if got := decodeBody[models.Image](t, w); got.Comment != comment {
		t.Fatalf("expected comment %q, got %q", comment, got.Comment)
	}

	w = ts.do(t, http.MethodGet, "/v1/images", nil, "")
	list := decodeBody[[]models.Image](t, w)
	if len(list) != 1 || list[0].GeneratedName() != updated.GeneratedName() {
		t.Fatalf("unexpected list: %+v", list)
	}

	w = ts.do(t, http.MethodDelete, "/v1/images/cat.png", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	w = ts.do(t, http.MethodDelete, "/v1/images/cat.png", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected repeated delete to succeed, got %d (%s)", w.Code, w.Body.String())
	}

	w = ts.do(t, http.MethodGet, "/v1/blobs/generated/"+updated.GeneratedName(), nil, "")
	assertErrorCode(t, w, http.StatusNotFound, ErrCodeBlobNotFound)
	w = ts.do(t, http.MethodGet, "/v1/images/cat.png", nil, "")
	assertErrorCode(t, w, http.StatusNotFound, ErrCodeImageNotFound)
}

func TestUploadHandlerRejections(t *testing.T) {
	ts := newTestServer(t)
	valid := testPNG(t, color.White)

	t.Run("missing file", func(t *testing.T) {
		w := ts.upload(t, "", "comment", nil)
		assertErrorCode(t, w, http.StatusBadRequest, ErrCodeInvalidArgument)
		if got := decodeBody[api.ErrorResponse](t, w); got.Error != "No image file" {
			t.Fatalf("unexpected message %q", got.Error)
		}
	})

	t.Run("wrong extension", func(t *testing.T) {
		w := ts.upload(t, "notes.txt", "", valid)
		assertErrorCode(t, w, http.StatusBadRequest, ErrCodeInvalidArgument)
	})

	t.Run("not multipart", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/v1/images", strings.NewReader("{}"), "application/json")
		assertErrorCode(t, w, http.StatusBadRequest, ErrCodeInvalidArgument)
	})

	t.Run("too large", func(t *testing.T) {
		big := append(append([]byte{}, valid...), make([]byte, 2<<20)...)
		w := ts.upload(t, "big.png", "", big)
		assertErrorCode(t, w, http.StatusBadRequest, ErrCodeRequestTooLarge)
	})

	t.Run("duplicate", func(t *testing.T) {
		if w := ts.upload(t, "dup.png", "", valid); w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
		}
		w := ts.upload(t, "dup.png", "", valid)
		assertErrorCode(t, w, http.StatusConflict, ErrCodeImageExists)
	})
}

func TestGenerateHandlerFailures(t *testing.T) {
	ts := newTestServer(t)
	if w := ts.upload(t, "dog.png", "wag", testPNG(t, color.Black)); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}

	t.Run("missing filename", func(t *testing.T) {
		w := ts.doJSON(t, http.MethodPost, "/v1/generate", api.GenerateRequest{})
		assertErrorCode(t, w, http.StatusBadRequest, ErrCodeInvalidArgument)
	})

	t.Run("unknown filename", func(t *testing.T) {
		w := ts.doJSON(t, http.MethodPost, "/v1/generate", api.GenerateRequest{Filename: "nope.png"})
		assertErrorCode(t, w, http.StatusNotFound, ErrCodeImageNotFound)
	})

	t.Run("no image produced", func(t *testing.T) {
		ts.provider.result = provider.NoImage()
		w := ts.doJSON(t, http.MethodPost, "/v1/generate", api.GenerateRequest{Filename: "dog.png"})
		assertErrorCode(t, w, http.StatusUnprocessableEntity, ErrCodeNoImageProduced)
	})

	t.Run("provider message is verbatim", func(t *testing.T) {
		ts.provider.result = provider.Failed(provider.FailureProviderError, "quota exceeded for model")
		w := ts.doJSON(t, http.MethodPost, "/v1/generate", api.GenerateRequest{Filename: "dog.png"})
		assertErrorCode(t, w, http.StatusBadGateway, ErrCodeProviderError)
		if got := decodeBody[api.ErrorResponse](t, w); got.Error != "quota exceeded for model" {
			t.Fatalf("unexpected message %q", got.Error)
		}
	})

	w := ts.do(t, http.MethodGet, "/v1/images/dog.png", nil, "")
	if got := decodeBody[models.Image](t, w); got.GeneratedFilename != nil {
		t.Fatalf("failed generations must not touch the record, got %+v", got)
	}
}

func TestResetAndSweepHandlers(t *testing.T) {
	ts := newTestServer(t)
	if w := ts.upload(t, "a.png", "", testPNG(t, color.White)); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	if _, err := ts.blobs.Put(context.Background(), models.NamespaceGenerated, "generated_orphan.png", bytes.NewReader([]byte("x"))); err != nil {
		t.Fatalf("put orphan: %v", err)
	}

	w := ts.do(t, http.MethodPost, "/v1/admin/sweep", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	sweep := decodeBody[api.SweepResponse](t, w)
	if !sweep.DryRun || sweep.CandidateCount != 1 || sweep.DeletedCount != 0 {
		t.Fatalf("unexpected dry run result: %+v", sweep)
	}

	w = ts.do(t, http.MethodPost, "/v1/admin/sweep?apply=true", nil, "")
	sweep = decodeBody[api.SweepResponse](t, w)
	if sweep.DryRun || sweep.DeletedCount != 1 {
		t.Fatalf("unexpected apply result: %+v", sweep)
	}

	w = ts.do(t, http.MethodPost, "/v1/admin/sweep?apply=maybe", nil, "")
	assertErrorCode(t, w, http.StatusBadRequest, ErrCodeInvalidQuery)

	w = ts.do(t, http.MethodPost, "/v1/reset", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	reset := decodeBody[api.ResetResponse](t, w)
	if reset.RecordsRemoved != 1 || reset.OriginalsPurged != 1 {
		t.Fatalf("expected one original purged, got %+v", reset)
	}

	w = ts.do(t, http.MethodGet, "/v1/images", nil, "")
	if list := decodeBody[[]models.Image](t, w); len(list) != 0 {
		t.Fatalf("expected empty list after reset, got %+v", list)
	}
	w = ts.do(t, http.MethodGet, "/v1/blobs/originals/a.png", nil, "")
	assertErrorCode(t, w, http.StatusNotFound, ErrCodeBlobNotFound)
}

func TestSweepHandlerDefaultsToConfiguredMinAge(t *testing.T) {
	ts := newTestServerWithSweepAge(t, time.Hour)
	if _, err := ts.blobs.Put(context.Background(), models.NamespaceGenerated, "generated_fresh.png", bytes.NewReader([]byte("x"))); err != nil {
		t.Fatalf("put orphan: %v", err)
	}

	w := ts.do(t, http.MethodPost, "/v1/admin/sweep?apply=true", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if sweep := decodeBody[api.SweepResponse](t, w); sweep.CandidateCount != 0 || sweep.DeletedCount != 0 {
		t.Fatalf("fresh blob must be protected by the configured min age, got %+v", sweep)
	}
	if _, err := ts.blobs.Stat(context.Background(), models.NamespaceGenerated, "generated_fresh.png"); err != nil {
		t.Fatalf("fresh blob was removed: %v", err)
	}

	w = ts.do(t, http.MethodPost, "/v1/admin/sweep?apply=true&min_age=0s", nil, "")
	if sweep := decodeBody[api.SweepResponse](t, w); sweep.DeletedCount != 1 {
		t.Fatalf("explicit min_age should override the default, got %+v", sweep)
	}
}

func TestGenerateHandlerSurvivesClientCancel(t *testing.T) {
	ts := newTestServer(t)
	if w := ts.upload(t, "cat.png", "", testPNG(t, color.White)); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	ts.provider.result = provider.ImageBytes(testPNG(t, color.Black))

	body, err := json.Marshal(api.GenerateRequest{Filename: "cat.png"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/v1/generate", bytes.NewReader(body)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	ts.handler.ServeHTTP(httptest.NewRecorder(), req)

	w := ts.do(t, http.MethodGet, "/v1/images/cat.png", nil, "")
	if got := decodeBody[models.Image](t, w); !got.HasGenerated() {
		t.Fatalf("generation should be linked after the client left, got %+v", got)
	}
}

func TestFetchBlobRejectsUnknownNamespace(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/v1/blobs/thumbnails/a.png", nil, "")
	assertErrorCode(t, w, http.StatusBadRequest, ErrCodeInvalidNS)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/health", nil, "")
	if got := decodeBody[api.HealthResponse](t, w); got.Status != "ok" || got.Provider != "stub" {
		t.Fatalf("unexpected health response: %+v", got)
	}

	ts.provider.result = provider.NoImage()
	if w := ts.upload(t, "m.png", "", testPNG(t, color.White)); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	ts.doJSON(t, http.MethodPost, "/v1/generate", api.GenerateRequest{Filename: "m.png"})

	w = ts.do(t, http.MethodGet, "/metrics", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `reimagine_generations_total{outcome="no_image_produced",provider="stub"} 1`) {
		t.Fatalf("expected generation counter in metrics output, got:\n%s", w.Body.String())
	}
}
