package advisory

import (
	"fmt"
	"slices"
	"sort"

	"github.com/poolchem/poolchem/pkg/types"
)

// Hint levels, most severe first.
const (
	LevelCritical = "critical"
	LevelWarning  = "warning"
	LevelInfo     = "info"
)

// Range is the ideal band for one reading field.
type Range struct {
	// Field is a reading field name, e.g. "ph".
	Field string `yaml:"field" json:"field"`

	// Label is the display name, e.g. "pH" or "Free chlorine".
	Label string `yaml:"label" json:"label"`

	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`

	// Unit is appended to captions, e.g. "ppm". Empty for pH.
	Unit string `yaml:"unit" json:"unit,omitempty"`
}

// Caption renders the range the way the calculators show it.
func (rg Range) Caption() string {
	unit := ""
	if rg.Unit != "" {
		unit = " " + rg.Unit
	}
	return fmt.Sprintf("Ideal %s: %g–%g%s", rg.Label, rg.Min, rg.Max, unit)
}

// Validate checks that the range names a known field and is not inverted.
func (rg Range) Validate() error {
	if _, ok := numericField(rg.Field, types.WaterReading{}); !ok {
		return fmt.Errorf("range: unknown field %q", rg.Field)
	}
	if rg.Min > rg.Max {
		return fmt.Errorf("range %q: min %g exceeds max %g", rg.Field, rg.Min, rg.Max)
	}
	return nil
}

// Rule is a configurable threshold check against a reading.
type Rule struct {
	// Name is a stable identifier, used as the hint key.
	Name string `yaml:"name" json:"name"`

	// Condition is "field op value", e.g. "ph > 8.2".
	Condition string `yaml:"condition" json:"condition"`

	// Severity is one of: critical | warning | info. Defaults to warning.
	Severity string `yaml:"severity" json:"severity"`

	// Message is the hint detail. A generic message is used when empty.
	Message string `yaml:"message" json:"message,omitempty"`
}

// Validate checks that the rule can be evaluated.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	switch r.Severity {
	case LevelCritical, LevelWarning, LevelInfo, "":
	default:
		return fmt.Errorf("rule %q: unknown severity %q", r.Name, r.Severity)
	}
	if _, _, _, err := parseCondition(r.Condition); err != nil {
		return fmt.Errorf("rule %q: %w", r.Name, err)
	}
	return nil
}

// Hint is one human-readable insight about a reading.
type Hint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "critical" | "warning" | "info".
	Level  string `json:"level"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	// Value is the reading value that triggered the hint, if any.
	Value *float64 `json:"value,omitempty"`
}

// DefaultRanges returns the built-in ideal ranges.
func DefaultRanges() []Range {
	return []Range{
		{Field: "chlorine_ppm", Label: "free chlorine", Min: 1, Max: 3, Unit: "ppm"},
		{Field: "ph", Label: "pH", Min: 7.4, Max: 7.6},
		{Field: "stabilizer_ppm", Label: "stabilizer (CYA)", Min: 30, Max: 50, Unit: "ppm"},
		{Field: "alkalinity_ppm", Label: "total alkalinity", Min: 80, Max: 120, Unit: "ppm"},
		{Field: "salt_ppm", Label: "salt", Min: 2700, Max: 3400, Unit: "ppm"},
	}
}

// DefaultRules returns the built-in threshold rules.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:      "algae",
			Condition: "algae_present == true",
			Severity:  LevelCritical,
			Message:   "Algae present: shock to 12 ppm, brush the walls and run the filter continuously until the water clears.",
		},
		{
			Name:      "ph_very_high",
			Condition: "ph > 8.2",
			Severity:  LevelCritical,
			Message:   "At this pH most free chlorine is inactive. Lower pH before relying on any chlorine dose.",
		},
		{
			Name:      "cya_excessive",
			Condition: "stabilizer_ppm > 100",
			Severity:  LevelWarning,
			Message:   "Stabilizer above 100 ppm locks up chlorine. Only a partial drain and refill lowers it.",
		},
	}
}

// modeFields lists the reading fields each calculator collects.
var modeFields = map[types.Mode][]string{
	types.ModeChlorinePH:      {"chlorine_ppm", "ph", "stabilizer_ppm"},
	types.ModeChlorinePHFixed: {"chlorine_ppm", "ph"},
	types.ModeStabilizer:      {"stabilizer_ppm"},
	types.ModeSalt:            {"salt_ppm"},
	types.ModeAlkalinity:      {"ph", "alkalinity_ppm"},
	types.ModeStrip:           {"chlorine_ppm", "ph", "alkalinity_ppm", "stabilizer_ppm"},
}

// collects reports whether mode gathers field from the user. Every
// calculator takes the volume; only the derived-target chlorine mode asks
// about algae.
func collects(mode types.Mode, field string) bool {
	fields, ok := modeFields[mode]
	if !ok {
		return false
	}
	switch field {
	case "volume_gallons":
		return mode != types.ModeStrip
	case "algae_present":
		return mode == types.ModeChlorinePH
	}
	return slices.Contains(fields, field)
}

// Captions returns the ideal-range captions for the fields mode collects,
// in range order.
func Captions(ranges []Range, mode types.Mode) []string {
	out := make([]string, 0, len(ranges))
	for _, rg := range rangesFor(ranges, mode) {
		out = append(out, rg.Caption())
	}
	return out
}

// Evaluate derives hints for reading r as collected by mode: out-of-range
// warnings for the mode's fields, then every rule on a collected field that
// fires.
func Evaluate(r types.WaterReading, mode types.Mode, ranges []Range, rules []Rule) []Hint {
	var hints []Hint

	for _, rg := range rangesFor(ranges, mode) {
		v, _ := numericField(rg.Field, r)
		switch {
		case v < rg.Min:
			hints = append(hints, rangeHint(rg, v, "low", "Low"))
		case v > rg.Max:
			hints = append(hints, rangeHint(rg, v, "high", "High"))
		}
	}

	for _, rule := range rules {
		field, _, _, err := parseCondition(rule.Condition)
		if err != nil || !collects(mode, field) {
			continue
		}
		fires, value := evalCondition(rule.Condition, r)
		if !fires {
			continue
		}
		sev := rule.Severity
		if sev == "" {
			sev = LevelWarning
		}
		msg := rule.Message
		if msg == "" {
			msg = fmt.Sprintf("%s fired: %s (value %.2f)", rule.Name, rule.Condition, value)
		}
		v := value
		hints = append(hints, Hint{
			Key:    rule.Name,
			Level:  sev,
			Title:  rule.Name,
			Detail: msg,
			Value:  &v,
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank(hints[i].Level) < levelRank(hints[j].Level)
	})
	return hints
}

func rangeHint(rg Range, v float64, dir, title string) Hint {
	value := v
	return Hint{
		Key:    rg.Field + "_" + dir,
		Level:  LevelWarning,
		Title:  fmt.Sprintf("%s %s", title, rg.Label),
		Detail: fmt.Sprintf("Measured %g is outside the ideal band. %s.", v, rg.Caption()),
		Value:  &value,
	}
}

func rangesFor(ranges []Range, mode types.Mode) []Range {
	fields := modeFields[mode]
	var out []Range
	for _, rg := range ranges {
		for _, f := range fields {
			if rg.Field == f {
				out = append(out, rg)
				break
			}
		}
	}
	return out
}

func levelRank(level string) int {
	switch level {
	case LevelCritical:
		return 0
	case LevelWarning:
		return 1
	default:
		return 2
	}
}
