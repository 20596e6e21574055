package strip

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 16))
	for y := 0; y < 16; y++ {
		img.Set(1, y, color.RGBA{R: 200, G: 40, B: 120, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestRandomReader_ReadsWithinBounds(t *testing.T) {
	r := NewRandomReader(42, 0)
	data := pngBytes(t)

	for i := 0; i < 50; i++ {
		got, err := r.Read(context.Background(), bytes.NewReader(data))
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if !got.Placeholder {
			t.Error("Placeholder = false, want true")
		}
		checkIn(t, "chlorine", got.ChlorinePPM, DefaultBounds.ChlorinePPM)
		checkIn(t, "ph", got.PH, DefaultBounds.PH)
		checkIn(t, "alkalinity", got.AlkalinityPPM, DefaultBounds.AlkalinityPPM)
		checkIn(t, "stabilizer", got.StabilizerPPM, DefaultBounds.StabilizerPPM)
	}
}

func checkIn(t *testing.T, name string, v float64, b [2]float64) {
	t.Helper()
	if v < b[0] || v >= b[1] {
		t.Errorf("%s = %v outside [%v, %v)", name, v, b[0], b[1])
	}
}

func TestRandomReader_SeedIsReproducible(t *testing.T) {
	data := pngBytes(t)
	a, _ := NewRandomReader(7, 0).Read(context.Background(), bytes.NewReader(data))
	b, _ := NewRandomReader(7, 0).Read(context.Background(), bytes.NewReader(data))
	if a != b {
		t.Errorf("same seed, different readings: %+v vs %+v", a, b)
	}
}

func TestRandomReader_RejectsNonImage(t *testing.T) {
	r := NewRandomReader(1, 0)
	_, err := r.Read(context.Background(), strings.NewReader("definitely not a png"))
	if !errors.Is(err, ErrNotImage) {
		t.Errorf("got %v, want ErrNotImage", err)
	}
}

func TestRandomReader_RejectsOversize(t *testing.T) {
	r := NewRandomReader(1, 16)
	_, err := r.Read(context.Background(), bytes.NewReader(pngBytes(t)))
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("got %v, want ErrTooLarge", err)
	}
}

func TestRandomReader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRandomReader(1, 0).Read(ctx, bytes.NewReader(pngBytes(t)))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
