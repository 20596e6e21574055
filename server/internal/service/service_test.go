package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/poolchem/poolchem/pkg/dosing"
	"github.com/poolchem/poolchem/pkg/strip"
	"github.com/poolchem/poolchem/pkg/types"
	"github.com/poolchem/poolchem/server/internal/config"
	"github.com/poolchem/poolchem/server/internal/metrics"
)

func newService(t *testing.T) (*Service, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	svc, err := New(config.Default(), strip.NewRandomReader(1, 0), m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc, m
}

func TestCalculate_AttachesAdvisories(t *testing.T) {
	svc, m := newService(t)
	resp, err := svc.Calculate(FrontendHTTP, dosing.Request{
		Mode: types.ModeChlorinePH,
		Reading: types.WaterReading{
			VolumeGallons: 25000, ChlorinePPM: 1, PH: 8.0, StabilizerPPM: 50,
		},
	})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if *resp.Recommendation.CalciumHypochloriteLbs != 0.83 {
		t.Errorf("cal-hypo: got %v, want 0.83", *resp.Recommendation.CalciumHypochloriteLbs)
	}
	found := false
	for _, h := range resp.Advisories {
		if h.Key == "ph_high" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected ph_high advisory, got %+v", resp.Advisories)
	}
	if len(resp.Captions) != 3 {
		t.Errorf("captions: got %q, want 3 for chlorine_ph", resp.Captions)
	}

	counts, _ := m.CalculationCounts()
	if counts["chlorine_ph"] != 1 {
		t.Errorf("calculation counter: got %v, want 1", counts["chlorine_ph"])
	}
}

func TestCalculate_InvalidInputIsClientError(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Calculate(FrontendWS, dosing.Request{Mode: types.ModeSalt})
	if !errors.Is(err, dosing.ErrInvalidInput) || !IsClientError(err) {
		t.Errorf("got %v, want client ErrInvalidInput", err)
	}
	if IsClientError(errors.New("disk on fire")) {
		t.Error("IsClientError(arbitrary) = true")
	}
}

func TestApply_SwapsCatalogAndNotifies(t *testing.T) {
	svc, _ := newService(t)

	var got []Catalog
	svc.Subscribe(func(c Catalog) { got = append(got, c) })

	cfg := config.Default()
	cfg.Dosing.Products = []dosing.Product{{Name: "only", Potency: 0.05}}
	cfg.Dosing.Defaults.Product = "only"
	if err := svc.Apply(cfg); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(got) != 1 || len(got[0].Products) != 1 || got[0].Products[0].Name != "only" {
		t.Fatalf("subscriber got %+v", got)
	}

	resp, err := svc.Calculate(FrontendHTTP, dosing.Request{
		Mode:    types.ModeChlorinePHFixed,
		Reading: types.WaterReading{VolumeGallons: 10000, PH: 7.5},
	})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	// 3 * 0.05 * 1 = 0.15
	if resp.Product != "only" || *resp.Recommendation.CalciumHypochloriteLbs != 0.15 {
		t.Errorf("after reload: %+v", resp.Result)
	}

	bad := config.Default()
	bad.Dosing.Products = nil
	if err := svc.Apply(bad); err == nil {
		t.Fatal("Apply(empty catalog): expected error")
	}
	if c := svc.Catalog(); c.Products[0].Name != "only" {
		t.Errorf("failed apply replaced catalog: %+v", c.Products)
	}
	if len(got) != 1 {
		t.Errorf("subscriber notified for failed apply")
	}
}

func TestAnalyze(t *testing.T) {
	svc, _ := newService(t)

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 8))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	resp, err := svc.Analyze(context.Background(), FrontendHTTP, &buf)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !resp.Reading.Placeholder || resp.Notice == "" {
		t.Errorf("placeholder reading must carry a notice: %+v", resp)
	}
	if len(resp.Captions) != 4 {
		t.Errorf("captions: got %q, want 4", resp.Captions)
	}

	_, err = svc.Analyze(context.Background(), FrontendHTTP, strings.NewReader("nope"))
	if !errors.Is(err, strip.ErrNotImage) {
		t.Errorf("got %v, want ErrNotImage", err)
	}
}

func TestCatalog_CaptionsPerMode(t *testing.T) {
	svc, _ := newService(t)
	c := svc.Catalog()
	if len(c.Modes) != len(types.Modes) {
		t.Errorf("modes: got %v", c.Modes)
	}
	if len(c.Captions[types.ModeSalt]) != 1 {
		t.Errorf("salt captions: got %q", c.Captions[types.ModeSalt])
	}
}
