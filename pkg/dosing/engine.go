package dosing

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/poolchem/poolchem/pkg/types"
)

// Calcium hypochlorite potency factors in lbs per ppm per 10,000 gallons.
// The two values come from different product concentrations and are selected
// by product name, never mixed inside a formula.
const (
	PotencyCalHypo65 = 0.013
	PotencyCalHypo73 = 0.111
)

// Chemistry constants.
const (
	// DefaultTargetPH is the pH the acid formulas aim for when none is given.
	DefaultTargetPH = 7.5

	// AlgaeChlorinePPM is the shock target used whenever algae is present.
	AlgaeChlorinePPM = 12.0

	// NeutralAlkalinityPPM is the total alkalinity at which the acid demand
	// multiplier equals 1.
	NeutralAlkalinityPPM = 80.0

	// AcidQuartsPerTenthPH is quarts of muriatic acid per 0.1 pH drop per
	// 10,000 gallons.
	AcidQuartsPerTenthPH = 0.25

	// DryAdditiveLbsPerPPMGallon converts a ppm deficit over one gallon into
	// pounds of dry additive (stabilizer or salt).
	DryAdditiveLbsPerPPMGallon = 0.00000834
)

// Stabilizer tiers for the derived chlorine target. A stabilizer level at or
// below MaxCYA maps to TargetPPM.
var chlorineTiers = []struct {
	MaxCYA    float64
	TargetPPM float64
}{
	{30, 2.5},
	{50, 4},
	{70, 5},
}

// chlorineAboveTiers is the target when stabilizer exceeds every tier.
const chlorineAboveTiers = 6.0

const maxPH = 14.0

var (
	tenThousand    = decimal.NewFromInt(10000)
	phStep         = decimal.RequireFromString("0.1")
	acidPerStep    = decimal.RequireFromString("0.25")
	additiveFactor = decimal.RequireFromString("0.00000834")
	neutralTA      = decimal.NewFromInt(80)
	hundred        = decimal.NewFromInt(100)
)

// TargetChlorine returns the free chlorine target in ppm for a stabilizer
// level. Algae overrides every tier.
func TargetChlorine(stabilizerPPM float64, algaePresent bool) float64 {
	if algaePresent {
		return AlgaeChlorinePPM
	}
	for _, tier := range chlorineTiers {
		if stabilizerPPM <= tier.MaxCYA {
			return tier.TargetPPM
		}
	}
	return chlorineAboveTiers
}

// ChlorineAndPH computes the calcium hypochlorite and muriatic acid doses for
// reading, deriving the chlorine target from stabilizer level and algae.
func ChlorineAndPH(r types.WaterReading, potency, targetPH float64) (types.DosingRecommendation, error) {
	target := TargetChlorine(r.StabilizerPPM, r.AlgaePresent)
	return ChlorineAndPHToTarget(r, potency, target, targetPH)
}

// ChlorineAndPHToTarget is ChlorineAndPH with a caller-supplied chlorine
// target. Stabilizer level and algae are ignored.
func ChlorineAndPHToTarget(r types.WaterReading, potency, targetChlorine, targetPH float64) (types.DosingRecommendation, error) {
	if err := firstErr(
		checkVolume(r.VolumeGallons),
		checkLevel("chlorine_ppm", r.ChlorinePPM),
		checkPH("ph", r.PH),
		checkPotency(potency),
		checkLevel("target_chlorine_ppm", targetChlorine),
		checkPH("target_ph", targetPH),
	); err != nil {
		return types.DosingRecommendation{}, err
	}

	volume := decimal.NewFromFloat(r.VolumeGallons)

	deficit := clampZero(decimal.NewFromFloat(targetChlorine).Sub(decimal.NewFromFloat(r.ChlorinePPM)))
	calHypo := deficit.Mul(decimal.NewFromFloat(potency)).Mul(volume).Div(tenThousand)

	excess := clampZero(decimal.NewFromFloat(r.PH).Sub(decimal.NewFromFloat(targetPH)))
	acid := excess.Div(phStep).Mul(acidPerStep).Mul(volume).Div(tenThousand)

	return types.DosingRecommendation{
		CalciumHypochloriteLbs: round2(calHypo),
		MuriaticAcidQuarts:     round2(acid),
	}, nil
}

// StabilizerDose returns pounds of stabilizer (cyanuric acid) needed to raise
// currentPPM to targetPPM in volumeGallons of water.
func StabilizerDose(volumeGallons, currentPPM, targetPPM float64) (float64, error) {
	return additiveDose(volumeGallons, currentPPM, targetPPM)
}

// SaltDose returns pounds of salt needed to raise currentPPM to targetPPM.
// It shares StabilizerDose's formula.
func SaltDose(volumeGallons, currentPPM, targetPPM float64) (float64, error) {
	return additiveDose(volumeGallons, currentPPM, targetPPM)
}

func additiveDose(volumeGallons, currentPPM, targetPPM float64) (float64, error) {
	if err := firstErr(
		checkVolume(volumeGallons),
		checkLevel("current_ppm", currentPPM),
		checkLevel("target_ppm", targetPPM),
	); err != nil {
		return 0, err
	}

	deficit := clampZero(decimal.NewFromFloat(targetPPM).Sub(decimal.NewFromFloat(currentPPM)))
	lbs := deficit.Mul(decimal.NewFromFloat(volumeGallons)).Mul(additiveFactor)
	return *round2(lbs), nil
}

// AcidDemandByAlkalinity returns quarts of muriatic acid needed to bring phValue
// down to targetPH, scaled by total alkalinity around NeutralAlkalinityPPM:
// each 100 ppm above neutral doubles the baseline demand.
func AcidDemandByAlkalinity(volumeGallons, phValue, alkalinityPPM, targetPH float64) (float64, error) {
	if err := firstErr(
		checkVolume(volumeGallons),
		checkPH("ph", phValue),
		checkLevel("alkalinity_ppm", alkalinityPPM),
		checkPH("target_ph", targetPH),
	); err != nil {
		return 0, err
	}

	factor := acidPerStep.Mul(decimal.NewFromFloat(volumeGallons)).Div(tenThousand)
	steps := decimal.NewFromFloat(phValue).Sub(decimal.NewFromFloat(targetPH)).Div(phStep)
	multiplier := decimal.NewFromInt(1).Add(decimal.NewFromFloat(alkalinityPPM).Sub(neutralTA).Div(hundred))

	quarts := clampZero(factor.Mul(steps).Mul(multiplier))
	return *round2(quarts), nil
}

// clampZero restricts d to be non-negative.
func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// round2 rounds half away from zero to two places.
func round2(d decimal.Decimal) *float64 {
	v := d.Round(2).InexactFloat64()
	return &v
}

// --- validation -------------------------------------------------------------

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func checkVolume(v float64) error {
	if !finite(v) || v <= 0 {
		return &InputError{Field: "volume_gallons", Value: v, Reason: "must be a positive number"}
	}
	return nil
}

func checkLevel(field string, v float64) error {
	if !finite(v) || v < 0 {
		return &InputError{Field: field, Value: v, Reason: "must not be negative"}
	}
	return nil
}

func checkPH(field string, v float64) error {
	if !finite(v) || v < 0 || v > maxPH {
		return &InputError{Field: field, Value: v, Reason: "must be within 0–14"}
	}
	return nil
}

func checkPotency(v float64) error {
	if !finite(v) || v <= 0 {
		return &InputError{Field: "potency", Value: v, Reason: "must be positive"}
	}
	return nil
}
