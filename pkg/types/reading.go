package types

// WaterReading is one set of water-chemistry measurements for a pool.
// Fields are independent; no cross-field invariant is enforced here.
type WaterReading struct {
	// VolumeGallons is the pool volume in US gallons. Must be positive.
	VolumeGallons float64 `json:"volume_gallons"`

	// ChlorinePPM is the free chlorine level.
	ChlorinePPM float64 `json:"chlorine_ppm"`

	// PH is the measured pH, typically 6.0–9.0.
	PH float64 `json:"ph"`

	// StabilizerPPM is the cyanuric acid (CYA) level.
	StabilizerPPM float64 `json:"stabilizer_ppm"`

	// AlkalinityPPM is the total alkalinity.
	AlkalinityPPM float64 `json:"alkalinity_ppm"`

	// SaltPPM is the salt level for saltwater pools.
	SaltPPM float64 `json:"salt_ppm"`

	// AlgaePresent forces the shock-level chlorine target.
	AlgaePresent bool `json:"algae_present"`
}

// DosingRecommendation holds the chemical quantities to add. A nil field means
// the calculation that produced it does not cover that chemical. Every non-nil
// value is non-negative and rounded to two decimal places.
type DosingRecommendation struct {
	CalciumHypochloriteLbs *float64 `json:"calcium_hypochlorite_lbs,omitempty"`
	MuriaticAcidQuarts     *float64 `json:"muriatic_acid_quarts,omitempty"`
	StabilizerLbs          *float64 `json:"stabilizer_lbs,omitempty"`
	SaltLbs                *float64 `json:"salt_lbs,omitempty"`
}

// StripReading is the output of a test-strip reader. Placeholder is true when
// the values were not derived from the image.
type StripReading struct {
	ChlorinePPM   float64 `json:"chlorine_ppm"`
	PH            float64 `json:"ph"`
	AlkalinityPPM float64 `json:"alkalinity_ppm"`
	StabilizerPPM float64 `json:"stabilizer_ppm"`
	Placeholder   bool    `json:"placeholder"`
}

// Reading converts a strip reading into a WaterReading for the given volume so
// it can be fed to the advisory rules or the dosing engine.
func (s StripReading) Reading(volumeGallons float64) WaterReading {
	return WaterReading{
		VolumeGallons: volumeGallons,
		ChlorinePPM:   s.ChlorinePPM,
		PH:            s.PH,
		AlkalinityPPM: s.AlkalinityPPM,
		StabilizerPPM: s.StabilizerPPM,
	}
}
