// Package strip reads test-strip photos into water readings.
//
// Reader is the capability interface. RandomReader is the only
// implementation: it checks that the upload is a PNG, JPEG or GIF image and
// then returns random values inside realistic bounds, flagged as placeholder
// data. A real image analyzer can replace it without touching the dosing
// formulas.
package strip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/poolchem/poolchem/pkg/types"
)

// ErrNotImage is returned when the upload cannot be decoded as an image.
var ErrNotImage = errors.New("strip: upload is not a supported image")

// ErrTooLarge is returned when the upload exceeds the reader's size limit.
var ErrTooLarge = errors.New("strip: upload too large")

// DefaultMaxBytes bounds the size of an accepted upload.
const DefaultMaxBytes = 10 << 20

// PlaceholderNotice is shown next to readings that were not derived from the
// image.
const PlaceholderNotice = "Placeholder values: the image was not analysed. Confirm with a test kit before dosing."

// Reader turns a strip photo into a reading.
type Reader interface {
	Read(ctx context.Context, img io.Reader) (types.StripReading, error)
}

// Bounds are the [min, max) intervals random readings are drawn from.
type Bounds struct {
	ChlorinePPM   [2]float64
	PH            [2]float64
	AlkalinityPPM [2]float64
	StabilizerPPM [2]float64
}

// DefaultBounds covers what a four-pad strip can show.
var DefaultBounds = Bounds{
	ChlorinePPM:   [2]float64{0, 10},
	PH:            [2]float64{6.8, 8.4},
	AlkalinityPPM: [2]float64{40, 180},
	StabilizerPPM: [2]float64{0, 100},
}

// RandomReader is the placeholder analyzer. It is safe for concurrent use.
type RandomReader struct {
	maxBytes int64
	bounds   Bounds

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomReader returns a RandomReader. A non-zero seed makes the sequence
// of readings reproducible; zero seeds from the runtime's entropy.
func NewRandomReader(seed uint64, maxBytes int64) *RandomReader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	var src rand.Source
	if seed != 0 {
		src = rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	} else {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &RandomReader{
		maxBytes: maxBytes,
		bounds:   DefaultBounds,
		rng:      rand.New(src),
	}
}

// Read checks that img is a decodable image and returns a random reading.
func (r *RandomReader) Read(ctx context.Context, img io.Reader) (types.StripReading, error) {
	data, err := io.ReadAll(io.LimitReader(img, r.maxBytes+1))
	if err != nil {
		return types.StripReading{}, fmt.Errorf("strip: read upload: %w", err)
	}
	if int64(len(data)) > r.maxBytes {
		return types.StripReading{}, ErrTooLarge
	}
	if err := ctx.Err(); err != nil {
		return types.StripReading{}, err
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return types.StripReading{}, fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return types.StripReading{
		ChlorinePPM:   r.draw(r.bounds.ChlorinePPM, 1),
		PH:            r.draw(r.bounds.PH, 1),
		AlkalinityPPM: r.draw(r.bounds.AlkalinityPPM, 0),
		StabilizerPPM: r.draw(r.bounds.StabilizerPPM, 0),
		Placeholder:   true,
	}, nil
}

// draw returns a value in [b[0], b[1]) rounded to the given decimal places,
// matching the resolution of a strip's colour chart.
func (r *RandomReader) draw(b [2]float64, places int) float64 {
	v := b[0] + r.rng.Float64()*(b[1]-b[0])
	scale := math.Pow10(places)
	v = math.Floor(v*scale) / scale
	return v
}
