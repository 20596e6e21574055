// Package report renders calculator output as plain text for the CLI and the
// chat bot.
package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/poolchem/poolchem/pkg/advisory"
	"github.com/poolchem/poolchem/pkg/dosing"
	"github.com/poolchem/poolchem/pkg/types"
)

// Amount formats a dose without trailing zeros, e.g. 0.1 or 3.13.
func Amount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Recommendation renders the "Add:" list. Chemicals the calculation did not
// cover are omitted.
func Recommendation(rec types.DosingRecommendation) string {
	var b strings.Builder
	b.WriteString("Add:\n")
	line := func(v *float64, unit, chemical string) {
		if v != nil {
			fmt.Fprintf(&b, "- %s %s of %s\n", Amount(*v), unit, chemical)
		}
	}
	line(rec.CalciumHypochloriteLbs, "lbs", "Cal Hypo")
	line(rec.MuriaticAcidQuarts, "quarts", "Muriatic Acid")
	line(rec.StabilizerLbs, "lbs", "Stabilizer")
	line(rec.SaltLbs, "lbs", "Salt")
	return b.String()
}

// Targets describes the parameters a result was computed with.
func Targets(res dosing.Result) string {
	switch res.Mode {
	case types.ModeChlorinePH, types.ModeChlorinePHFixed:
		return fmt.Sprintf("Target: %s ppm free chlorine, pH %s (%s)",
			Amount(res.TargetChlorinePPM), Amount(res.TargetPH), res.Product)
	case types.ModeStabilizer:
		return fmt.Sprintf("Target: %s ppm stabilizer", Amount(res.TargetPPM))
	case types.ModeSalt:
		return fmt.Sprintf("Target: %s ppm salt", Amount(res.TargetPPM))
	case types.ModeAlkalinity:
		return fmt.Sprintf("Target: pH %s", Amount(res.TargetPH))
	default:
		return ""
	}
}

// Hints renders advisories one per line, most severe first.
func Hints(hints []advisory.Hint) string {
	var b strings.Builder
	for _, h := range hints {
		fmt.Fprintf(&b, "[%s] %s: %s\n", strings.ToUpper(h.Level), h.Title, h.Detail)
	}
	return b.String()
}

// Captions renders the ideal-range captions one per line.
func Captions(captions []string) string {
	if len(captions) == 0 {
		return ""
	}
	return strings.Join(captions, "\n") + "\n"
}

// Calculation renders a full calculator answer: targets, the "Add:" list,
// advisories and ideal ranges, separated by blank lines.
func Calculation(res dosing.Result, hints []advisory.Hint, captions []string) string {
	sections := []string{}
	if t := Targets(res); t != "" {
		sections = append(sections, t+"\n")
	}
	sections = append(sections, Recommendation(res.Recommendation))
	if h := Hints(hints); h != "" {
		sections = append(sections, h)
	}
	if c := Captions(captions); c != "" {
		sections = append(sections, c)
	}
	return strings.Join(sections, "\n")
}

// Strip renders a strip reading with its notice, advisories and ranges.
func Strip(r types.StripReading, hints []advisory.Hint, captions []string, notice string) string {
	var b strings.Builder
	b.WriteString("Strip reading:\n")
	fmt.Fprintf(&b, "- Free chlorine: %s ppm\n", Amount(r.ChlorinePPM))
	fmt.Fprintf(&b, "- pH: %s\n", Amount(r.PH))
	fmt.Fprintf(&b, "- Total alkalinity: %s ppm\n", Amount(r.AlkalinityPPM))
	fmt.Fprintf(&b, "- Stabilizer: %s ppm\n", Amount(r.StabilizerPPM))

	sections := []string{b.String()}
	if notice != "" {
		sections = append(sections, notice+"\n")
	}
	if h := Hints(hints); h != "" {
		sections = append(sections, h)
	}
	if c := Captions(captions); c != "" {
		sections = append(sections, c)
	}
	return strings.Join(sections, "\n")
}
