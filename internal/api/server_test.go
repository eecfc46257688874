package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dvmax/mediaforge/internal/auth"
	"github.com/dvmax/mediaforge/internal/config"
	"github.com/dvmax/mediaforge/internal/domain"
	"github.com/dvmax/mediaforge/internal/effects"
	"github.com/dvmax/mediaforge/internal/gateway"
	"github.com/dvmax/mediaforge/internal/mediastore"
	"github.com/dvmax/mediaforge/internal/store"
	"github.com/dvmax/mediaforge/internal/transform"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type fakeRemote struct {
	calls int
}

func (r *fakeRemote) Upload(_ context.Context, kind string, data []byte, _ string) (mediastore.RemoteObject, error) {
	r.calls++
	return mediastore.RemoteObject{
		PublicID: kind + "-uploads/fixed",
		Bytes:    int64(len(data)),
	}, nil
}

type testEnv struct {
	server *Server
	remote *fakeRemote
	assets *store.MemoryAssetStore
}

func newTestEnv(verifier auth.Verifier) testEnv {
	logger := log.New(io.Discard, "", 0)
	remote := &fakeRemote{}
	assets := store.NewMemoryAssetStore()
	catalog := effects.DefaultCatalog()
	urls := mediastore.URLBuilder{Base: "https://media.example.com/demo"}

	uploads := config.UploadConfig{
		MaxVideoBytes:      70 * 1024 * 1024,
		MaxMediaBytes:      100 * 1024 * 1024,
		VideoUploadTimeout: 5 * time.Second,
		MediaUploadTimeout: 5 * time.Second,
	}

	srv := NewServer(logger, Options{
		Gateway:    gateway.New(logger, remote, assets, uploads),
		Transforms: transform.NewService(logger, catalog, urls, assets, nil),
		Catalog:    catalog,
		Assets:     assets,
		Verifier:   verifier,
	})
	return testEnv{server: srv, remote: remote, assets: assets}
}

func multipartUpload(t *testing.T, size int, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if size >= 0 {
		part, err := writer.CreateFormFile("file", "clip.mp4")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(make([]byte, size)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return body
}

func TestUploadVideoHappyPath(t *testing.T) {
	env := newTestEnv(nil)

	req := multipartUpload(t, 10*1024*1024, map[string]string{
		"title":        "demo",
		"description":  "ten megabyte clip",
		"mediaType":    "video",
		"originalSize": "10485760",
	})
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	asset, ok := body["asset"].(map[string]any)
	if !ok {
		t.Fatalf("expected asset object, got %v", body)
	}
	if asset["mediaType"] != "video" {
		t.Fatalf("expected kind video, got %v", asset["mediaType"])
	}
	if asset["originalSize"] != float64(10*1024*1024) {
		t.Fatalf("expected original size 10485760, got %v", asset["originalSize"])
	}
	if env.remote.calls != 1 {
		t.Fatalf("expected one remote upload, got %d", env.remote.calls)
	}

	if _, ok, _ := env.assets.Get(context.Background(), "video-uploads/fixed"); !ok {
		t.Fatal("expected persisted asset record")
	}
}

func TestUploadEmptyTitle(t *testing.T) {
	env := newTestEnv(nil)

	req := multipartUpload(t, 1024, map[string]string{"title": "   ", "mediaType": "video"})
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "MissingTitle" {
		t.Fatalf("expected MissingTitle, got %v", body["error"])
	}
	if env.remote.calls != 0 {
		t.Fatalf("expected zero remote uploads, got %d", env.remote.calls)
	}
}

func TestUploadOverVideoLimit(t *testing.T) {
	env := newTestEnv(nil)

	req := multipartUpload(t, 80*1024*1024, map[string]string{"title": "big", "mediaType": "video"})
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "FileTooLarge" {
		t.Fatalf("expected FileTooLarge, got %v", body["error"])
	}
	if message, _ := body["message"].(string); !strings.Contains(message, "70") {
		t.Fatalf("expected limit in message, got %q", body["message"])
	}
	if env.remote.calls != 0 {
		t.Fatalf("expected zero remote uploads, got %d", env.remote.calls)
	}
}

func TestUploadBodyCapStopsOversizedRequests(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	remote := &fakeRemote{}
	assets := store.NewMemoryAssetStore()
	uploads := config.UploadConfig{
		MaxVideoBytes:      70 * 1024 * 1024,
		MaxMediaBytes:      100 * 1024 * 1024,
		VideoUploadTimeout: 5 * time.Second,
		MediaUploadTimeout: 5 * time.Second,
	}
	srv := NewServer(logger, Options{
		Gateway:        gateway.New(logger, remote, assets, uploads),
		Catalog:        effects.DefaultCatalog(),
		Assets:         assets,
		MaxUploadBytes: 1 << 20,
	})

	req := multipartUpload(t, 3<<20, map[string]string{"title": "huge", "mediaType": "video"})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "FileTooLarge" {
		t.Fatalf("expected FileTooLarge, got %v", body["error"])
	}
	if remote.calls != 0 {
		t.Fatalf("expected zero remote uploads, got %d", remote.calls)
	}
	if listed, _ := assets.List(context.Background(), 0); len(listed) != 0 {
		t.Fatalf("expected no persisted assets, got %d", len(listed))
	}
}

func TestUploadMissingFile(t *testing.T) {
	env := newTestEnv(nil)

	req := multipartUpload(t, -1, map[string]string{"title": "demo"})
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "MissingFile" {
		t.Fatalf("expected MissingFile, got %v", body["error"])
	}
}

func TestTransformFiltersUnknownEffects(t *testing.T) {
	env := newTestEnv(nil)
	seedAsset(t, env.assets, "image-uploads/pic", domain.KindImage)

	rec := postJSON(t, env.server, "/transform", map[string]any{
		"publicId":  "image-uploads/pic",
		"effects":   []string{"autoCompress", "bogusEffect"},
		"mediaType": "image",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["transformationString"] != "q_auto,f_auto" {
		t.Fatalf("expected only the autoCompress fragment, got %v", body["transformationString"])
	}
	if body["estimatedCompression"] != "60-80%" {
		t.Fatalf("expected compression estimate, got %v", body["estimatedCompression"])
	}
}

func TestTransformAllUnknownEffects(t *testing.T) {
	env := newTestEnv(nil)
	seedAsset(t, env.assets, "image-uploads/pic", domain.KindImage)

	rec := postJSON(t, env.server, "/transform", map[string]any{
		"publicId":  "image-uploads/pic",
		"effects":   []string{"bogusOnly"},
		"mediaType": "image",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "NoValidEffects" {
		t.Fatalf("expected NoValidEffects, got %v", body["error"])
	}
}

func TestTransformEmptyEffectsIsInvalidRequest(t *testing.T) {
	env := newTestEnv(nil)
	seedAsset(t, env.assets, "image-uploads/pic", domain.KindImage)

	rec := postJSON(t, env.server, "/transform", map[string]any{
		"publicId":  "image-uploads/pic",
		"effects":   []string{},
		"mediaType": "image",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "InvalidRequest" {
		t.Fatalf("expected InvalidRequest, got %v", body["error"])
	}
}

func TestTransformUnknownAsset(t *testing.T) {
	env := newTestEnv(nil)

	rec := postJSON(t, env.server, "/transform", map[string]any{
		"publicId":  "image-uploads/ghost",
		"effects":   []string{"sepia"},
		"mediaType": "image",
	})

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUploadThenTransformURLsAreIdempotent(t *testing.T) {
	env := newTestEnv(nil)

	upload := multipartUpload(t, 2048, map[string]string{"title": "pic", "mediaType": "image"})
	uploadRec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(uploadRec, upload)
	if uploadRec.Code != http.StatusOK {
		t.Fatalf("upload failed: %d", uploadRec.Code)
	}

	request := map[string]any{
		"publicId":  "image-uploads/fixed",
		"effects":   []string{"sepia", "thumbnail"},
		"mediaType": "image",
	}
	first := decodeBody(t, postJSON(t, env.server, "/transform", request))
	second := decodeBody(t, postJSON(t, env.server, "/transform", request))

	if first["transformedUrl"] != second["transformedUrl"] {
		t.Fatalf("expected identical URLs, got %v and %v", first["transformedUrl"], second["transformedUrl"])
	}
	if first["originalUrl"] != second["originalUrl"] {
		t.Fatalf("expected identical original URLs, got %v and %v", first["originalUrl"], second["originalUrl"])
	}
}

func TestEffectsListing(t *testing.T) {
	env := newTestEnv(nil)

	req := httptest.NewRequest(http.MethodGet, "/effects", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	listing, ok := body["effects"].(map[string]any)
	if !ok || len(listing) != 7 {
		t.Fatalf("expected 7 effect categories, got %v", body["effects"])
	}
	if _, ok := body["supportedFormats"].(map[string]any); !ok {
		t.Fatalf("expected supportedFormats, got %v", body)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	env := newTestEnv(auth.StaticVerifier{Token: "expected"})

	req := httptest.NewRequest(http.MethodGet, "/effects", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "Unauthorized" {
		t.Fatalf("expected Unauthorized, got %v", body["error"])
	}
}

func TestHealthzBypassesAuth(t *testing.T) {
	env := newTestEnv(auth.StaticVerifier{Token: "expected"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestUploadSpanCarriesMediaAttributes(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	remote := &fakeRemote{}
	assets := store.NewMemoryAssetStore()
	uploads := config.UploadConfig{
		MaxVideoBytes:      70 * 1024 * 1024,
		MaxMediaBytes:      100 * 1024 * 1024,
		VideoUploadTimeout: 5 * time.Second,
		MediaUploadTimeout: 5 * time.Second,
	}

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer provider.Shutdown(context.Background())

	srv := NewServer(logger, Options{
		Gateway: gateway.New(logger, remote, assets, uploads),
		Catalog: effects.DefaultCatalog(),
		Assets:  assets,
		Tracer:  provider.Tracer("test"),
	})

	req := multipartUpload(t, 2048, map[string]string{"title": "clip", "mediaType": "video"})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload failed: %d", rec.Code)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != "POST /upload" {
		t.Fatalf("unexpected span name %q", span.Name())
	}

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if got := attrs["media.kind"].AsString(); got != "video" {
		t.Fatalf("expected media.kind=video, got %q", got)
	}
	if got := attrs["media.request_bytes"].AsInt64(); got <= 0 {
		t.Fatalf("expected positive media.request_bytes, got %d", got)
	}
}

func TestAssetsListing(t *testing.T) {
	env := newTestEnv(nil)
	seedAsset(t, env.assets, "video-uploads/a", domain.KindVideo)
	seedAsset(t, env.assets, "image-uploads/b", domain.KindImage)

	req := httptest.NewRequest(http.MethodGet, "/assets", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	assets, ok := body["assets"].([]any)
	if !ok || len(assets) != 2 {
		t.Fatalf("expected 2 assets, got %v", body["assets"])
	}
}

func seedAsset(t *testing.T, assets *store.MemoryAssetStore, publicID, kind string) {
	t.Helper()
	if err := assets.Create(context.Background(), domain.Asset{
		PublicID:  publicID,
		Kind:      kind,
		Title:     "seed",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed asset %s: %v", publicID, err)
	}
}

func postJSON(t *testing.T, server *Server, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}
