package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dvmax/mediaforge/internal/auth"
	"github.com/dvmax/mediaforge/internal/domain"
	"github.com/dvmax/mediaforge/internal/effects"
	"github.com/dvmax/mediaforge/internal/gateway"
	"github.com/dvmax/mediaforge/internal/store"
	"github.com/dvmax/mediaforge/internal/transform"
	"go.opentelemetry.io/otel/trace"
)

const multipartMemoryLimit = 32 << 20

// multipartOverheadBytes covers boundary framing and the metadata fields
// that ride along with the media bytes.
const multipartOverheadBytes = 1 << 20

type Server struct {
	logger                *log.Logger
	gateway               *gateway.Gateway
	transforms            *transform.Service
	catalog               *effects.Catalog
	assets                store.AssetStore
	verifier              auth.Verifier
	rateLimiter           RateLimiter
	rateLimitUserIDHeader string
	maxUploadBytes        int64
	metrics               *metrics
	tracer                trace.Tracer
	mux                   *http.ServeMux
}

type Options struct {
	Gateway      *gateway.Gateway
	Transforms   *transform.Service
	Catalog      *effects.Catalog
	Assets       store.AssetStore
	Verifier     auth.Verifier
	RateLimiter  RateLimiter
	UserIDHeader string
	// MaxUploadBytes bounds the whole upload request body; the per-kind
	// size gates still run in the gateway. Defaults to the media tier.
	MaxUploadBytes int64
	Tracer         trace.Tracer
}

func NewServer(logger *log.Logger, opts Options) *Server {
	verifier := opts.Verifier
	if verifier == nil {
		verifier = auth.Allow{}
	}
	userIDHeader := opts.UserIDHeader
	if userIDHeader == "" {
		userIDHeader = "X-User-ID"
	}
	maxUploadBytes := opts.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 100 << 20
	}

	s := &Server{
		logger:                logger,
		gateway:               opts.Gateway,
		transforms:            opts.Transforms,
		catalog:               opts.Catalog,
		assets:                opts.Assets,
		verifier:              verifier,
		rateLimiter:           opts.RateLimiter,
		rateLimitUserIDHeader: userIDHeader,
		maxUploadBytes:        maxUploadBytes,
		metrics:               newMetrics(),
		tracer:                opts.Tracer,
		mux:                   http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.withAuth(h)
	h = s.withRateLimit(h)
	h = s.withTracing(h)
	h = s.metrics.withHTTPMetrics(h)
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /upload", s.handleUpload)
	s.mux.HandleFunc("GET /effects", s.handleEffects)
	s.mux.HandleFunc("POST /transform", s.handleTransform)
	s.mux.HandleFunc("GET /assets", s.handleAssets)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// assetPayload is the wire shape of an asset. The remote identifier is
// exposed under both id and identifier for older clients.
type assetPayload struct {
	ID           string    `json:"id"`
	Identifier   string    `json:"identifier"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	MediaType    string    `json:"mediaType"`
	OriginalSize int64     `json:"originalSize"`
	DerivedSize  int64     `json:"derivedSize"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toAssetPayload(a domain.Asset) assetPayload {
	return assetPayload{
		ID:           a.PublicID,
		Identifier:   a.PublicID,
		Title:        a.Title,
		Description:  a.Description,
		MediaType:    a.Kind,
		OriginalSize: a.OriginalSizeBytes,
		DerivedSize:  a.DerivedSizeBytes,
		CreatedAt:    a.CreatedAt,
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Bound the body before parsing so an oversized upload is cut off at
	// the wire instead of being buffered to disk first.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+multipartOverheadBytes)

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, domain.NewError(
				domain.CodeFileTooLarge,
				fmt.Sprintf("file size must be less than %dMB", s.maxUploadBytes/1024/1024),
			))
			return
		}
		writeError(w, domain.WrapError(domain.CodeInvalidRequest, "invalid multipart form", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, domain.NewError(domain.CodeMissingFile, "please select a file to upload"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, domain.WrapError(domain.CodeInvalidRequest, "failed to read uploaded file", err))
		return
	}

	kind := resolveKind(r.FormValue("mediaType"), header)
	annotateMediaSpan(r.Context(), kind, 0)
	declaredSize, _ := strconv.ParseInt(r.FormValue("originalSize"), 10, 64)

	asset, err := s.gateway.Ingest(r.Context(), gateway.IngestInput{
		Data:         data,
		Filename:     header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Title:        r.FormValue("title"),
		Description:  r.FormValue("description"),
		Kind:         kind,
		DeclaredSize: declaredSize,
	})
	if err != nil {
		s.logger.Printf("ingest failed kind=%s size=%d err=%v", kind, len(data), err)
		s.metrics.uploadsTotal.WithLabelValues(kind, "failed").Inc()
		writeError(w, err)
		return
	}

	s.metrics.uploadsTotal.WithLabelValues(kind, "succeeded").Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "upload stored",
		"asset":   toAssetPayload(asset),
	})
}

// resolveKind prefers the declared media type and falls back to the part's
// content type.
func resolveKind(declared string, header *multipart.FileHeader) string {
	if strings.TrimSpace(declared) != "" {
		return domain.ParseKind(declared)
	}
	if header != nil && strings.HasPrefix(header.Header.Get("Content-Type"), "video/") {
		return domain.KindVideo
	}
	return domain.KindImage
}

func (s *Server) handleEffects(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"effects":          s.catalog.Listing(),
		"supportedFormats": effects.SupportedFormats(),
	})
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	var req domain.TransformRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, domain.WrapError(domain.CodeInvalidRequest, "invalid JSON body", err))
		return
	}
	annotateMediaSpan(r.Context(), domain.ParseKind(req.Kind), len(req.Effects))

	if strings.TrimSpace(req.PublicID) != "" {
		known, err := s.transforms.AssetExists(r.Context(), req.PublicID)
		if err != nil {
			s.logger.Printf("asset lookup failed public_id=%s err=%v", req.PublicID, err)
			writeError(w, domain.WrapError(domain.CodeInternal, "failed to load asset", err))
			return
		}
		if !known {
			writeError(w, domain.NewError(domain.CodeNotFound, "asset not found"))
			return
		}
	}

	result, err := s.transforms.Request(r.Context(), req)
	if err != nil {
		s.metrics.transformsTotal.WithLabelValues("failed").Inc()
		writeError(w, err)
		return
	}

	s.metrics.transformsTotal.WithLabelValues("succeeded").Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":              true,
		"originalUrl":          result.OriginalURL,
		"transformedUrl":       result.TransformedURL,
		"effects":              result.Effects,
		"publicId":             result.PublicID,
		"mediaType":            result.Kind,
		"estimatedCompression": result.EstimatedCompression,
		"transformationString": result.TransformationString,
	})
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	assets, err := s.assets.List(r.Context(), limit)
	if err != nil {
		s.logger.Printf("list assets failed err=%v", err)
		writeError(w, domain.WrapError(domain.CodeInternal, "failed to list assets", err))
		return
	}

	payload := make([]assetPayload, 0, len(assets))
	for _, a := range assets {
		payload = append(payload, toAssetPayload(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": payload})
}

func statusForCode(code domain.ErrorCode) int {
	switch code {
	case domain.CodeMissingFile, domain.CodeMissingTitle, domain.CodeInvalidRequest,
		domain.CodeFileTooLarge, domain.CodeNoValidEffects, domain.CodeCancelled:
		return http.StatusBadRequest
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized
	case domain.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := domain.CodeOf(err)
	writeJSON(w, statusForCode(code), map[string]string{
		"error":   string(code),
		"message": domain.MessageOf(err),
	})
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
