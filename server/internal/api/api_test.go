package api_test

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/poolchem/poolchem/pkg/strip"
	"github.com/poolchem/poolchem/pkg/types"
	"github.com/poolchem/poolchem/server/internal/api"
	"github.com/poolchem/poolchem/server/internal/config"
	"github.com/poolchem/poolchem/server/internal/metrics"
	"github.com/poolchem/poolchem/server/internal/service"
)

// --- test helpers -----------------------------------------------------------

func newHandler(t *testing.T) http.Handler {
	t.Helper()
	m := metrics.New()
	svc, err := service.New(config.Default(), strip.NewRandomReader(42, 0), m)
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	return api.New(svc, m, 1<<20)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rr, req)
	return rr
}

func upload(t *testing.T, h http.Handler, field string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "strip.png")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write(data) //nolint:errcheck
	mw.Close()     //nolint:errcheck

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/strip/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 16))
	img.Set(1, 1, color.RGBA{R: 200, G: 40, B: 40, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

type calcResponse struct {
	Mode              types.Mode                 `json:"mode"`
	Product           string                     `json:"product"`
	TargetChlorinePPM float64                    `json:"target_chlorine_ppm"`
	TargetPPM         float64                    `json:"target_ppm"`
	Recommendation    types.DosingRecommendation `json:"recommendation"`
	Advisories        []struct {
		Key   string `json:"key"`
		Level string `json:"level"`
	} `json:"advisories"`
	Captions []string `json:"captions"`
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth(t *testing.T) {
	h := newHandler(t)
	rr := get(t, h, "/api/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Error("X-Request-Id header not set")
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.Status != "ok" || resp.ProductCount != 2 {
		t.Errorf("health = %+v", resp)
	}
	if len(resp.Calculations) != 0 {
		t.Errorf("calculations: got %v, want none", resp.Calculations)
	}
}

func TestHealth_CountsCalculations(t *testing.T) {
	h := newHandler(t)
	post(t, h, "/api/v1/dose/salt", `{"reading":{"volume_gallons":10000,"salt_ppm":3000}}`)
	post(t, h, "/api/v1/dose/salt", `{"reading":{"volume_gallons":10000,"salt_ppm":2500}}`)

	var resp api.HealthResponse
	decode(t, get(t, h, "/api/v1/health"), &resp)
	if resp.Calculations["salt"] != 2 {
		t.Errorf("salt calculations: got %v, want 2", resp.Calculations["salt"])
	}
}

// --- catalog endpoints ------------------------------------------------------

func TestProducts(t *testing.T) {
	h := newHandler(t)
	rr := get(t, h, "/api/v1/products")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var cat service.Catalog
	decode(t, rr, &cat)

	if len(cat.Products) != 2 {
		t.Fatalf("products: got %d, want 2", len(cat.Products))
	}
	if cat.Defaults.Product != "cal-hypo-73" {
		t.Errorf("default product: got %q", cat.Defaults.Product)
	}
	if len(cat.Modes) != len(types.Modes) {
		t.Errorf("modes: got %v", cat.Modes)
	}
}

func TestRanges(t *testing.T) {
	h := newHandler(t)
	var resp api.RangesResponse
	decode(t, get(t, h, "/api/v1/ranges"), &resp)

	if len(resp.Ranges) != 5 {
		t.Errorf("ranges: got %d, want 5", len(resp.Ranges))
	}
	found := false
	for _, c := range resp.Captions[types.ModeChlorinePH] {
		if c == "Ideal pH: 7.4–7.6" {
			found = true
		}
	}
	if !found {
		t.Errorf("chlorine_ph captions missing pH range: %v", resp.Captions[types.ModeChlorinePH])
	}
}

func TestCatalog_MethodNotAllowed(t *testing.T) {
	h := newHandler(t)
	rr := post(t, h, "/api/v1/products", "{}")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
	if rr.Header().Get("Allow") != http.MethodGet {
		t.Errorf("Allow: got %q", rr.Header().Get("Allow"))
	}
}

// --- /api/v1/calculate ------------------------------------------------------

func TestCalculate_ChlorinePH(t *testing.T) {
	h := newHandler(t)
	rr := post(t, h, "/api/v1/calculate", `{
		"mode": "chlorine_ph",
		"reading": {"volume_gallons": 25000, "chlorine_ppm": 1, "ph": 8, "stabilizer_ppm": 50}
	}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	var resp calcResponse
	decode(t, rr, &resp)

	if resp.TargetChlorinePPM != 4 {
		t.Errorf("target chlorine: got %v, want 4", resp.TargetChlorinePPM)
	}
	rec := resp.Recommendation
	if rec.CalciumHypochloriteLbs == nil || *rec.CalciumHypochloriteLbs != 0.83 {
		t.Errorf("cal-hypo: got %v, want 0.83", rec.CalciumHypochloriteLbs)
	}
	if rec.MuriaticAcidQuarts == nil || *rec.MuriaticAcidQuarts != 3.13 {
		t.Errorf("acid: got %v, want 3.13", rec.MuriaticAcidQuarts)
	}
	if rec.StabilizerLbs != nil || rec.SaltLbs != nil {
		t.Errorf("unexpected fields in %+v", rec)
	}

	keys := map[string]bool{}
	for _, a := range resp.Advisories {
		keys[a.Key] = true
	}
	if !keys["ph_high"] {
		t.Errorf("advisories: want ph_high, got %+v", resp.Advisories)
	}
	if len(resp.Captions) != 3 {
		t.Errorf("captions: got %v", resp.Captions)
	}
}

func TestCalculate_BadRequests(t *testing.T) {
	h := newHandler(t)
	tests := []struct {
		name string
		body string
	}{
		{"missing mode", `{"reading":{"volume_gallons":1000}}`},
		{"unknown mode", `{"mode":"bromine","reading":{"volume_gallons":1000}}`},
		{"malformed JSON", `{"mode":`},
		{"unknown field", `{"mode":"salt","reading":{"volume_gallons":1000},"colour":"blue"}`},
		{"zero volume", `{"mode":"salt","reading":{"salt_ppm":3000}}`},
		{"negative chlorine", `{"mode":"chlorine_ph","reading":{"volume_gallons":1000,"chlorine_ppm":-1,"ph":7.5}}`},
		{"unknown product", `{"mode":"chlorine_ph","product":"trichlor","reading":{"volume_gallons":1000,"ph":7.5}}`},
		{"strip mode", `{"mode":"strip","reading":{"volume_gallons":1000}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := post(t, h, "/api/v1/calculate", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want 400 (body: %s)", rr.Code, rr.Body.String())
			}
			var resp map[string]interface{}
			decode(t, rr, &resp)
			if resp["error"] == "" || resp["error"] == nil {
				t.Errorf("error message missing: %v", resp)
			}
		})
	}
}

func TestCalculate_ModeAliases(t *testing.T) {
	h := newHandler(t)
	for _, alias := range []string{"chlorine", "chlorine_ph"} {
		rr := post(t, h, "/api/v1/calculate", `{
			"mode": "`+alias+`",
			"reading": {"volume_gallons": 25000, "chlorine_ppm": 1, "ph": 8, "stabilizer_ppm": 50}
		}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status: got %d, want 200 (body: %s)", alias, rr.Code, rr.Body.String())
		}
		var resp calcResponse
		decode(t, rr, &resp)
		if resp.Mode != types.ModeChlorinePH {
			t.Errorf("%s: mode: got %q, want chlorine_ph", alias, resp.Mode)
		}
	}
}

func TestCalculate_MethodNotAllowed(t *testing.T) {
	h := newHandler(t)
	rr := get(t, h, "/api/v1/calculate")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/dose/{mode} ----------------------------------------------------

func TestDose_Stabilizer(t *testing.T) {
	h := newHandler(t)
	rr := post(t, h, "/api/v1/dose/stabilizer", `{"reading":{"volume_gallons":25000,"stabilizer_ppm":0}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	var resp calcResponse
	decode(t, rr, &resp)
	if resp.Mode != types.ModeStabilizer || resp.TargetPPM != 50 {
		t.Errorf("parameters = %+v", resp)
	}
	if resp.Recommendation.StabilizerLbs == nil || *resp.Recommendation.StabilizerLbs != 10.43 {
		t.Errorf("stabilizer: got %v, want 10.43", resp.Recommendation.StabilizerLbs)
	}
}

func TestDose_PathModeOverridesBody(t *testing.T) {
	h := newHandler(t)
	rr := post(t, h, "/api/v1/dose/alkalinity",
		`{"mode":"salt","reading":{"volume_gallons":25000,"ph":8,"alkalinity_ppm":80}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	var resp calcResponse
	decode(t, rr, &resp)
	if resp.Mode != types.ModeAlkalinity {
		t.Errorf("mode: got %q, want alkalinity", resp.Mode)
	}
	if resp.Recommendation.MuriaticAcidQuarts == nil || *resp.Recommendation.MuriaticAcidQuarts != 3.13 {
		t.Errorf("acid: got %v, want 3.13", resp.Recommendation.MuriaticAcidQuarts)
	}
}

func TestDose_Fixed_AlreadyAtTarget(t *testing.T) {
	h := newHandler(t)
	rr := post(t, h, "/api/v1/dose/fixed",
		`{"target_chlorine_ppm":3,"reading":{"volume_gallons":10000,"chlorine_ppm":5,"ph":7.2}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	var resp calcResponse
	decode(t, rr, &resp)
	rec := resp.Recommendation
	if rec.CalciumHypochloriteLbs == nil || *rec.CalciumHypochloriteLbs != 0 {
		t.Errorf("cal-hypo: got %v, want 0", rec.CalciumHypochloriteLbs)
	}
	if rec.MuriaticAcidQuarts == nil || *rec.MuriaticAcidQuarts != 0 {
		t.Errorf("acid: got %v, want 0", rec.MuriaticAcidQuarts)
	}
}

func TestDose_UnknownMode(t *testing.T) {
	h := newHandler(t)
	for _, path := range []string{"/api/v1/dose/bromine", "/api/v1/dose/strip", "/api/v1/dose/"} {
		rr := post(t, h, path, `{"reading":{"volume_gallons":1000}}`)
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s: got %d, want 404", path, rr.Code)
		}
	}
}

// --- /api/v1/strip/analyze --------------------------------------------------

func TestAnalyze_PNG(t *testing.T) {
	h := newHandler(t)
	rr := upload(t, h, "image", pngBytes(t))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	var resp service.StripResponse
	decode(t, rr, &resp)

	if !resp.Reading.Placeholder {
		t.Error("reading should be flagged as placeholder")
	}
	if resp.Notice == "" {
		t.Error("placeholder notice missing")
	}
	b := strip.DefaultBounds
	if resp.Reading.PH < b.PH[0] || resp.Reading.PH >= b.PH[1] {
		t.Errorf("pH %v outside %v", resp.Reading.PH, b.PH)
	}
	if len(resp.Captions) != 4 {
		t.Errorf("captions: got %v", resp.Captions)
	}
}

func TestAnalyze_Rejects(t *testing.T) {
	h := newHandler(t)

	if rr := upload(t, h, "image", []byte("not an image at all")); rr.Code != http.StatusBadRequest {
		t.Errorf("non-image: got %d, want 400", rr.Code)
	}
	if rr := upload(t, h, "photo", pngBytes(t)); rr.Code != http.StatusBadRequest {
		t.Errorf("wrong field: got %d, want 400", rr.Code)
	}
	if rr := get(t, h, "/api/v1/strip/analyze"); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: got %d, want 405", rr.Code)
	}
}

func TestAnalyze_TooLarge(t *testing.T) {
	m := metrics.New()
	svc, err := service.New(config.Default(), strip.NewRandomReader(1, 0), m)
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	h := api.New(svc, m, 16)

	rr := upload(t, h, "image", bytes.Repeat([]byte{0x89}, 128<<10))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status: got %d, want 413", rr.Code)
	}
}

// --- misc -------------------------------------------------------------------

func TestUnknownPath(t *testing.T) {
	h := newHandler(t)
	rr := get(t, h, "/api/v2/whatever")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

func TestMetrics_MethodLabelBounded(t *testing.T) {
	m := metrics.New()
	svc, err := service.New(config.Default(), strip.NewRandomReader(42, 0), m)
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	h := api.New(svc, m, 1<<20)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("BREW", "/api/v1/health", nil))
	get(t, h, "/api/v1/health")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	for _, want := range []string{
		`poolchem_http_requests_total{method="other",route="health",status="405"} 1`,
		`poolchem_http_requests_total{method="GET",route="health",status="200"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
	if strings.Contains(body, `method="BREW"`) {
		t.Error("raw request method leaked into a metric label")
	}
}
