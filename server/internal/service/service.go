// Package service is the seam between the front-ends (HTTP API, WebSocket
// sessions, Telegram bot) and the dosing engine. It holds the active
// calculator and advisory settings, swaps them atomically on config reload,
// and records metrics for every calculation and strip read.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/poolchem/poolchem/pkg/advisory"
	"github.com/poolchem/poolchem/pkg/dosing"
	"github.com/poolchem/poolchem/pkg/strip"
	"github.com/poolchem/poolchem/pkg/types"
	"github.com/poolchem/poolchem/server/internal/config"
	"github.com/poolchem/poolchem/server/internal/metrics"
)

// Front-end labels used in metrics and logs.
const (
	FrontendHTTP = "http"
	FrontendWS   = "ws"
	FrontendBot  = "bot"
)

// Response is a calculation result with the advisories for its reading.
type Response struct {
	dosing.Result
	Advisories []advisory.Hint `json:"advisories"`
	Captions   []string        `json:"captions"`
}

// StripResponse is a strip reading with its advisories.
type StripResponse struct {
	Reading    types.StripReading `json:"reading"`
	Advisories []advisory.Hint    `json:"advisories"`
	Captions   []string           `json:"captions"`
	Notice     string             `json:"notice,omitempty"`
}

// Catalog describes what the calculators accept.
type Catalog struct {
	Products []dosing.Product        `json:"products"`
	Defaults dosing.Defaults         `json:"defaults"`
	Modes    []types.Mode            `json:"modes"`
	Ranges   []advisory.Range        `json:"ranges"`
	Captions map[types.Mode][]string `json:"captions"`
}

// state is one immutable generation of settings.
type state struct {
	calc   *dosing.Calculator
	ranges []advisory.Range
	rules  []advisory.Rule
}

// Service is safe for concurrent use.
type Service struct {
	cur     atomic.Pointer[state]
	reader  strip.Reader
	metrics *metrics.Metrics

	mu        sync.Mutex
	listeners []func(Catalog)
}

// New builds a Service from cfg.
func New(cfg *config.Config, reader strip.Reader, m *metrics.Metrics) (*Service, error) {
	s := &Service{reader: reader, metrics: m}
	st, err := newState(cfg)
	if err != nil {
		return nil, err
	}
	s.cur.Store(st)
	return s, nil
}

func newState(cfg *config.Config) (*state, error) {
	calc, err := cfg.Calculator()
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	return &state{
		calc:   calc,
		ranges: cfg.Advisory.Ranges,
		rules:  cfg.Advisory.Rules,
	}, nil
}

// Apply swaps in a reloaded configuration and notifies subscribers. On error
// the previous settings stay active.
func (s *Service) Apply(cfg *config.Config) error {
	st, err := newState(cfg)
	if err != nil {
		s.metrics.ObserveConfigReload(metrics.OutcomeError)
		return err
	}
	s.cur.Store(st)
	s.metrics.ObserveConfigReload(metrics.OutcomeOK)

	cat := s.Catalog()
	s.mu.Lock()
	listeners := append([]func(Catalog){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(cat)
	}
	return nil
}

// Subscribe registers fn to be called with the new catalog after each Apply.
func (s *Service) Subscribe(fn func(Catalog)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Catalog returns the active products, defaults and ideal ranges.
func (s *Service) Catalog() Catalog {
	st := s.cur.Load()
	caps := make(map[types.Mode][]string, len(types.Modes))
	for _, m := range types.Modes {
		caps[m] = advisory.Captions(st.ranges, m)
	}
	return Catalog{
		Products: st.calc.Products(),
		Defaults: st.calc.Defaults(),
		Modes:    types.Modes,
		Ranges:   st.ranges,
		Captions: caps,
	}
}

// Calculate runs one dosing request and attaches advisories.
func (s *Service) Calculate(frontend string, req dosing.Request) (Response, error) {
	st := s.cur.Load()

	res, err := st.calc.Calculate(req)
	if err != nil {
		outcome := metrics.OutcomeError
		if IsClientError(err) {
			outcome = metrics.OutcomeInvalid
		}
		mode := req.Mode
		if errors.Is(err, dosing.ErrUnsupportedMode) {
			// Caller-supplied text; keep label cardinality bounded.
			mode = "unsupported"
		}
		s.metrics.ObserveCalculation(mode, frontend, outcome)
		return Response{}, err
	}
	s.metrics.ObserveCalculation(req.Mode, frontend, metrics.OutcomeOK)

	slog.Debug("calculation",
		"frontend", frontend,
		"mode", req.Mode,
		"product", res.Product,
		"volume_gallons", req.Reading.VolumeGallons,
	)

	return Response{
		Result:     res,
		Advisories: nonNil(advisory.Evaluate(req.Reading, req.Mode, st.ranges, st.rules)),
		Captions:   advisory.Captions(st.ranges, req.Mode),
	}, nil
}

// Analyze passes an uploaded image to the strip reader.
func (s *Service) Analyze(ctx context.Context, frontend string, img io.Reader) (StripResponse, error) {
	st := s.cur.Load()

	reading, err := s.reader.Read(ctx, img)
	if err != nil {
		outcome := metrics.OutcomeError
		if IsClientError(err) {
			outcome = metrics.OutcomeInvalid
		}
		s.metrics.ObserveStripRead(outcome)
		return StripResponse{}, err
	}
	s.metrics.ObserveStripRead(metrics.OutcomeOK)

	resp := StripResponse{
		Reading:    reading,
		Advisories: nonNil(advisory.Evaluate(reading.Reading(0), types.ModeStrip, st.ranges, st.rules)),
		Captions:   advisory.Captions(st.ranges, types.ModeStrip),
	}
	if reading.Placeholder {
		resp.Notice = strip.PlaceholderNotice
	}
	slog.Debug("strip read", "frontend", frontend, "placeholder", reading.Placeholder)
	return resp, nil
}

// IsClientError reports whether err was caused by the caller's input.
func IsClientError(err error) bool {
	return errors.Is(err, dosing.ErrInvalidInput) ||
		errors.Is(err, dosing.ErrUnknownProduct) ||
		errors.Is(err, dosing.ErrUnsupportedMode) ||
		errors.Is(err, strip.ErrNotImage) ||
		errors.Is(err, strip.ErrTooLarge)
}

func nonNil(h []advisory.Hint) []advisory.Hint {
	if h == nil {
		return []advisory.Hint{}
	}
	return h
}
