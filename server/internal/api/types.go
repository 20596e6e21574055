package api

import (
	"github.com/poolchem/poolchem/pkg/advisory"
	"github.com/poolchem/poolchem/pkg/types"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status       string             `json:"status"`
	ProductCount int                `json:"product_count"`
	Calculations map[string]float64 `json:"calculations"`
}

// RangesResponse is the payload for GET /api/v1/ranges.
type RangesResponse struct {
	Ranges   []advisory.Range        `json:"ranges"`
	Captions map[types.Mode][]string `json:"captions"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
