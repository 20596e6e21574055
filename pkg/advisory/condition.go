package advisory

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/poolchem/poolchem/pkg/types"
)

// evalCondition evaluates a rule condition string against a reading.
//
// Supported expressions (field operator value):
//
//	ph > 7.8
//	chlorine_ppm < 1
//	stabilizer_ppm >= 100
//	algae_present == true
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, r types.WaterReading) (bool, float64) {
	field, op, rhs, err := parseCondition(cond)
	if err != nil {
		return false, 0
	}

	if field == "algae_present" {
		want, _ := strconv.ParseBool(rhs)
		v := 0.0
		if r.AlgaePresent {
			v = 1
		}
		switch op {
		case "==":
			return r.AlgaePresent == want, v
		case "!=":
			return r.AlgaePresent != want, v
		}
		return false, 0
	}

	v, _ := numericField(field, r)
	threshold, _ := strconv.ParseFloat(rhs, 64)
	return compareFloat(v, op, threshold), v
}

// parseCondition splits and checks a condition. It is also used to reject
// bad rules at config load time.
func parseCondition(cond string) (field, op, rhs string, err error) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("condition %q: want \"field op value\"", cond)
	}
	field, op, rhs = parts[0], parts[1], parts[2]

	switch op {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return "", "", "", fmt.Errorf("condition %q: unknown operator %q", cond, op)
	}

	if field == "algae_present" {
		if op != "==" && op != "!=" {
			return "", "", "", fmt.Errorf("condition %q: algae_present supports == and != only", cond)
		}
		if _, perr := strconv.ParseBool(rhs); perr != nil {
			return "", "", "", fmt.Errorf("condition %q: %q is not a boolean", cond, rhs)
		}
		return field, op, rhs, nil
	}

	if _, ok := numericField(field, types.WaterReading{}); !ok {
		return "", "", "", fmt.Errorf("condition %q: unknown field %q", cond, field)
	}
	if _, perr := strconv.ParseFloat(rhs, 64); perr != nil {
		return "", "", "", fmt.Errorf("condition %q: %q is not a number", cond, rhs)
	}
	return field, op, rhs, nil
}

// numericField maps a field name to its value in the reading.
func numericField(field string, r types.WaterReading) (float64, bool) {
	switch field {
	case "volume_gallons":
		return r.VolumeGallons, true
	case "chlorine_ppm":
		return r.ChlorinePPM, true
	case "ph":
		return r.PH, true
	case "stabilizer_ppm":
		return r.StabilizerPPM, true
	case "alkalinity_ppm":
		return r.AlkalinityPPM, true
	case "salt_ppm":
		return r.SaltPPM, true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
