// Package dosing computes pool chemical doses from water-chemistry readings.
//
// engine.go holds the pure formulas. Every operation is deterministic and
// side-effect free; quantities are computed in exact decimal arithmetic,
// clamped at zero ("no dose needed") and rounded half away from zero to two
// decimal places:
//
//	cal-hypo lbs  = max(0, targetCl - Cl) * potency * volume / 10000
//	acid quarts   = (max(0, pH - targetPH) / 0.1) * 0.25 * volume / 10000
//	additive lbs  = max(0, target - current) * volume * 0.00000834
//	acid (TA adj) = max(0, 0.25*volume/10000 * ((pH - targetPH)/0.1) * (1 + (TA - 80)/100))
//
// calculator.go wraps the formulas in a Calculator that owns a catalog of
// calcium hypochlorite products and dispatches a Request on its Mode.
//
// Invalid inputs (non-positive volume, negative levels, pH outside 0–14,
// non-positive potency) are rejected with an error wrapping ErrInvalidInput.
package dosing
