package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/poolchem/poolchem/pkg/dosing"
	"github.com/poolchem/poolchem/pkg/strip"
	"github.com/poolchem/poolchem/pkg/types"
	"github.com/poolchem/poolchem/server/internal/metrics"
	"github.com/poolchem/poolchem/server/internal/service"
)

// maxJSONBody bounds calculation request bodies.
const maxJSONBody = 64 << 10

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	svc       *service.Service
	metrics   *metrics.Metrics
	maxUpload int64
	mux       *http.ServeMux
}

// New creates a Handler wired to svc and registers all routes. maxUpload
// bounds strip image uploads.
func New(svc *service.Service, m *metrics.Metrics, maxUpload int64) http.Handler {
	if maxUpload <= 0 {
		maxUpload = strip.DefaultMaxBytes
	}
	h := &Handler{svc: svc, metrics: m, maxUpload: maxUpload, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/products", h.products)
	h.mux.HandleFunc("/api/v1/ranges", h.ranges)
	h.mux.HandleFunc("/api/v1/calculate", h.calculate)
	h.mux.HandleFunc("/api/v1/dose/", h.dose) // subtree, extracts {mode}
	h.mux.HandleFunc("/api/v1/strip/analyze", h.analyze)
	h.mux.HandleFunc("/", h.notFound)

	return h
}

// ServeHTTP tags the request with an ID, recovers panics, and records the
// outcome in logs and metrics.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := newRequestID()
	w.Header().Set("X-Request-Id", reqID)
	rr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	defer func() {
		if rec := recover(); rec != nil {
			rr.status = http.StatusInternalServerError
			if !rr.wroteHeader {
				jsonErr(rr, http.StatusInternalServerError, "internal error")
			}
			slog.Error("api: panic",
				"method", r.Method, "path", r.URL.Path, "req_id", reqID,
				"panic", fmt.Sprint(rec), "stack", string(debug.Stack()))
		}

		dur := time.Since(start)
		h.metrics.ObserveHTTP(routeLabel(r.URL.Path), methodLabel(r.Method), rr.status, dur)
		slog.Info("api: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rr.status,
			"duration", dur.Truncate(time.Microsecond),
			"req_id", reqID,
		)
	}()

	h.mux.ServeHTTP(rr, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	counts, err := h.metrics.CalculationCounts()
	if err != nil {
		slog.Warn("api: gather calculation counts", "err", err)
		counts = map[string]float64{}
	}
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:       "ok",
		ProductCount: len(h.svc.Catalog().Products),
		Calculations: counts,
	})
}

// products returns GET /api/v1/products with the full catalog.
func (h *Handler) products(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	jsonResp(w, http.StatusOK, h.svc.Catalog())
}

// ranges returns GET /api/v1/ranges with ideal ranges and captions.
func (h *Handler) ranges(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	cat := h.svc.Catalog()
	jsonResp(w, http.StatusOK, RangesResponse{Ranges: cat.Ranges, Captions: cat.Captions})
}

// calculate handles POST /api/v1/calculate.
func (h *Handler) calculate(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	if req.Mode == "" {
		jsonErr(w, http.StatusBadRequest, "mode is required")
		return
	}
	// Unknown names fall through to the calculator's unsupported-mode error.
	if mode, err := types.ParseMode(string(req.Mode)); err == nil {
		req.Mode = mode
	}
	h.run(w, req)
}

// dose handles POST /api/v1/dose/{mode}. The path mode overrides the body.
func (h *Handler) dose(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	mode, err := types.ParseMode(strings.TrimPrefix(r.URL.Path, "/api/v1/dose/"))
	if err != nil {
		jsonErr(w, http.StatusNotFound, err.Error())
		return
	}
	if mode == types.ModeStrip {
		jsonErr(w, http.StatusNotFound, "use /api/v1/strip/analyze for strip images")
		return
	}
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	req.Mode = mode
	h.run(w, req)
}

func (h *Handler) run(w http.ResponseWriter, req dosing.Request) {
	resp, err := h.svc.Calculate(service.FrontendHTTP, req)
	if err != nil {
		if service.IsClientError(err) {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("api: calculate", "mode", req.Mode, "err", err)
		jsonErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	jsonResp(w, http.StatusOK, resp)
}

// analyze handles POST /api/v1/strip/analyze with a multipart "image" field.
func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	// Leave room for multipart framing around the image itself.
	limit := h.maxUpload + 64<<10
	if r.ContentLength > limit {
		jsonErr(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	file, _, err := r.FormFile("image")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			jsonErr(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		jsonErr(w, http.StatusBadRequest, `multipart field "image" is required`)
		return
	}
	defer file.Close()

	resp, err := h.svc.Analyze(r.Context(), service.FrontendHTTP, file)
	switch {
	case errors.Is(err, strip.ErrTooLarge):
		jsonErr(w, http.StatusRequestEntityTooLarge, err.Error())
	case err != nil && service.IsClientError(err):
		jsonErr(w, http.StatusBadRequest, err.Error())
	case err != nil:
		slog.Error("api: analyze", "err", err)
		jsonErr(w, http.StatusInternalServerError, "internal error")
	default:
		jsonResp(w, http.StatusOK, resp)
	}
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	jsonErr(w, http.StatusNotFound, "not found")
}

// --- helpers ----------------------------------------------------------------

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (dosing.Request, bool) {
	var req dosing.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return dosing.Request{}, false
	}
	return req, true
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg, RequestID: w.Header().Get("X-Request-Id")})
}

// methodLabel folds methods the API never serves into "other".
func methodLabel(method string) string {
	switch method {
	case http.MethodGet, http.MethodPost:
		return method
	default:
		return "other"
	}
}

// routeLabel keeps metric label cardinality bounded.
func routeLabel(path string) string {
	switch {
	case path == "/api/v1/health":
		return "health"
	case path == "/api/v1/products":
		return "products"
	case path == "/api/v1/ranges":
		return "ranges"
	case path == "/api/v1/calculate":
		return "calculate"
	case strings.HasPrefix(path, "/api/v1/dose/"):
		return "dose"
	case path == "/api/v1/strip/analyze":
		return "strip_analyze"
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(p)
}

func newRequestID() string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "000000000000"
	}
	return hex.EncodeToString(b[:])
}
