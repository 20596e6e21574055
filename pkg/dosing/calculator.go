package dosing

import (
	"fmt"

	"github.com/poolchem/poolchem/pkg/types"
)

// Product is one calcium hypochlorite product the calculator can dose.
type Product struct {
	// Name is the catalog key, e.g. "cal-hypo-73".
	Name string `yaml:"name" json:"name"`

	// Description is free text shown to users.
	Description string `yaml:"description" json:"description,omitempty"`

	// Potency is lbs of product per ppm of chlorine per 10,000 gallons.
	Potency float64 `yaml:"potency" json:"potency"`
}

// Defaults fill in request fields a caller leaves empty.
type Defaults struct {
	// Product is the catalog entry used when a request names none.
	Product string `yaml:"product" json:"product"`

	// TargetPH is the acid target for every acid formula.
	TargetPH float64 `yaml:"target_ph" json:"target_ph"`

	// TargetChlorinePPM is the chlorine target for the fixed-target mode.
	TargetChlorinePPM float64 `yaml:"target_chlorine_ppm" json:"target_chlorine_ppm"`

	// TargetStabilizerPPM is the CYA level the stabilizer mode aims for.
	TargetStabilizerPPM float64 `yaml:"target_stabilizer_ppm" json:"target_stabilizer_ppm"`

	// TargetSaltPPM is the salt level the salt mode aims for.
	TargetSaltPPM float64 `yaml:"target_salt_ppm" json:"target_salt_ppm"`
}

// DefaultProducts is the built-in catalog.
func DefaultProducts() []Product {
	return []Product{
		{Name: "cal-hypo-65", Description: "Calcium hypochlorite, 65% available chlorine", Potency: PotencyCalHypo65},
		{Name: "cal-hypo-73", Description: "Calcium hypochlorite, 73% available chlorine", Potency: PotencyCalHypo73},
	}
}

// DefaultDefaults returns the built-in request defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		Product:             "cal-hypo-73",
		TargetPH:            DefaultTargetPH,
		TargetChlorinePPM:   3,
		TargetStabilizerPPM: 50,
		TargetSaltPPM:       3200,
	}
}

// Request asks the calculator for one recommendation. Optional fields left nil
// (or empty) take the calculator's defaults.
type Request struct {
	Mode    types.Mode         `json:"mode"`
	Reading types.WaterReading `json:"reading"`

	// Product selects the calcium hypochlorite product by catalog name.
	Product string `json:"product,omitempty"`

	// TargetChlorinePPM is only read in ModeChlorinePHFixed.
	TargetChlorinePPM *float64 `json:"target_chlorine_ppm,omitempty"`

	TargetPH *float64 `json:"target_ph,omitempty"`

	// TargetPPM is the stabilizer or salt target, depending on Mode.
	TargetPPM *float64 `json:"target_ppm,omitempty"`
}

// Result is a recommendation together with the parameters that produced it.
type Result struct {
	Mode              types.Mode                 `json:"mode"`
	Product           string                     `json:"product,omitempty"`
	Potency           float64                    `json:"potency,omitempty"`
	TargetChlorinePPM float64                    `json:"target_chlorine_ppm,omitempty"`
	TargetPH          float64                    `json:"target_ph,omitempty"`
	TargetPPM         float64                    `json:"target_ppm,omitempty"`
	Recommendation    types.DosingRecommendation `json:"recommendation"`
}

// Calculator dispatches requests to the dosing formulas using a fixed product
// catalog. It is immutable and safe for concurrent use.
type Calculator struct {
	products map[string]Product
	order    []string
	defaults Defaults
}

// NewCalculator validates the catalog and defaults and returns a Calculator.
func NewCalculator(products []Product, d Defaults) (*Calculator, error) {
	if len(products) == 0 {
		return nil, fmt.Errorf("dosing: catalog is empty")
	}
	c := &Calculator{
		products: make(map[string]Product, len(products)),
		defaults: d,
	}
	for i, p := range products {
		if p.Name == "" {
			return nil, fmt.Errorf("dosing: products[%d]: name is required", i)
		}
		if _, dup := c.products[p.Name]; dup {
			return nil, fmt.Errorf("dosing: products[%d]: duplicate name %q", i, p.Name)
		}
		if err := checkPotency(p.Potency); err != nil {
			return nil, fmt.Errorf("dosing: product %q: %w", p.Name, err)
		}
		c.products[p.Name] = p
		c.order = append(c.order, p.Name)
	}
	if _, ok := c.products[d.Product]; !ok {
		return nil, fmt.Errorf("dosing: default product %q: %w", d.Product, ErrUnknownProduct)
	}
	if err := firstErr(
		checkPH("defaults.target_ph", d.TargetPH),
		checkLevel("defaults.target_chlorine_ppm", d.TargetChlorinePPM),
		checkLevel("defaults.target_stabilizer_ppm", d.TargetStabilizerPPM),
		checkLevel("defaults.target_salt_ppm", d.TargetSaltPPM),
	); err != nil {
		return nil, err
	}
	return c, nil
}

// DefaultCalculator returns a Calculator over the built-in catalog.
func DefaultCalculator() *Calculator {
	c, err := NewCalculator(DefaultProducts(), DefaultDefaults())
	if err != nil {
		panic(err)
	}
	return c
}

// Products returns the catalog in configuration order.
func (c *Calculator) Products() []Product {
	out := make([]Product, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.products[name])
	}
	return out
}

// Defaults returns the request defaults.
func (c *Calculator) Defaults() Defaults { return c.defaults }

// Product looks up a catalog entry. An empty name selects the default product.
func (c *Calculator) Product(name string) (Product, error) {
	if name == "" {
		name = c.defaults.Product
	}
	p, ok := c.products[name]
	if !ok {
		return Product{}, fmt.Errorf("dosing: product %q: %w", name, ErrUnknownProduct)
	}
	return p, nil
}

// Calculate runs the formula selected by req.Mode.
func (c *Calculator) Calculate(req Request) (Result, error) {
	res := Result{Mode: req.Mode}
	r := req.Reading

	switch req.Mode {
	case types.ModeChlorinePH, types.ModeChlorinePHFixed:
		p, err := c.Product(req.Product)
		if err != nil {
			return Result{}, err
		}
		res.Product, res.Potency = p.Name, p.Potency
		res.TargetPH = valueOr(req.TargetPH, c.defaults.TargetPH)

		var rec types.DosingRecommendation
		if req.Mode == types.ModeChlorinePH {
			res.TargetChlorinePPM = TargetChlorine(r.StabilizerPPM, r.AlgaePresent)
			rec, err = ChlorineAndPH(r, p.Potency, res.TargetPH)
		} else {
			res.TargetChlorinePPM = valueOr(req.TargetChlorinePPM, c.defaults.TargetChlorinePPM)
			rec, err = ChlorineAndPHToTarget(r, p.Potency, res.TargetChlorinePPM, res.TargetPH)
		}
		if err != nil {
			return Result{}, err
		}
		res.Recommendation = rec

	case types.ModeStabilizer:
		res.TargetPPM = valueOr(req.TargetPPM, c.defaults.TargetStabilizerPPM)
		lbs, err := StabilizerDose(r.VolumeGallons, r.StabilizerPPM, res.TargetPPM)
		if err != nil {
			return Result{}, err
		}
		res.Recommendation.StabilizerLbs = &lbs

	case types.ModeSalt:
		res.TargetPPM = valueOr(req.TargetPPM, c.defaults.TargetSaltPPM)
		lbs, err := SaltDose(r.VolumeGallons, r.SaltPPM, res.TargetPPM)
		if err != nil {
			return Result{}, err
		}
		res.Recommendation.SaltLbs = &lbs

	case types.ModeAlkalinity:
		res.TargetPH = valueOr(req.TargetPH, c.defaults.TargetPH)
		qt, err := AcidDemandByAlkalinity(r.VolumeGallons, r.PH, r.AlkalinityPPM, res.TargetPH)
		if err != nil {
			return Result{}, err
		}
		res.Recommendation.MuriaticAcidQuarts = &qt

	default:
		return Result{}, fmt.Errorf("dosing: mode %q: %w", req.Mode, ErrUnsupportedMode)
	}

	return res, nil
}

func valueOr(p *float64, def float64) float64 {
	if p != nil {
		return *p
	}
	return def
}
