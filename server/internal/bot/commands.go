package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/poolchem/poolchem/pkg/dosing"
	"github.com/poolchem/poolchem/pkg/types"
)

// errUsage marks argument errors; the reply is the command's usage line.
var errUsage = errors.New("bad arguments")

// usage lists the calculator commands and their arguments.
var usage = map[string]string{
	"chlorine":   "/chlorine <gallons> <chlorine ppm> <pH> <stabilizer ppm> [algae] [product]",
	"fixed":      "/fixed <gallons> <chlorine ppm> <pH> <target chlorine ppm> [target pH] [product]",
	"stabilizer": "/stabilizer <gallons> <current ppm> [target ppm]",
	"salt":       "/salt <gallons> <current ppm> [target ppm]",
	"alkalinity": "/alkalinity <gallons> <pH> <alkalinity ppm>",
}

// commandOrder is the order commands appear in /help.
var commandOrder = []string{"chlorine", "fixed", "stabilizer", "salt", "alkalinity"}

// parseCommand turns a calculator command and its arguments into a Request.
// It reports ok=false for commands that are not calculators.
func parseCommand(command, args string) (req dosing.Request, ok bool, err error) {
	fields := strings.Fields(args)

	switch command {
	case "chlorine":
		nums, rest, err := numbers(fields, 4, 2)
		if err != nil {
			return req, true, err
		}
		req = dosing.Request{
			Mode: types.ModeChlorinePH,
			Reading: types.WaterReading{
				VolumeGallons: nums[0],
				ChlorinePPM:   nums[1],
				PH:            nums[2],
				StabilizerPPM: nums[3],
			},
		}
		for _, tok := range rest {
			switch strings.ToLower(tok) {
			case "algae", "yes", "true":
				req.Reading.AlgaePresent = true
			default:
				if req.Product != "" {
					return req, true, fmt.Errorf("%w: unexpected %q", errUsage, tok)
				}
				req.Product = tok
			}
		}
		return req, true, nil

	case "fixed":
		nums, rest, err := numbers(fields, 4, 2)
		if err != nil {
			return req, true, err
		}
		target := nums[3]
		req = dosing.Request{
			Mode: types.ModeChlorinePHFixed,
			Reading: types.WaterReading{
				VolumeGallons: nums[0],
				ChlorinePPM:   nums[1],
				PH:            nums[2],
			},
			TargetChlorinePPM: &target,
		}
		if len(rest) > 0 {
			if ph, perr := strconv.ParseFloat(rest[0], 64); perr == nil {
				req.TargetPH = &ph
				rest = rest[1:]
			}
		}
		switch len(rest) {
		case 0:
		case 1:
			req.Product = rest[0]
		default:
			return req, true, fmt.Errorf("%w: unexpected %q", errUsage, rest[1])
		}
		return req, true, nil

	case "stabilizer", "salt":
		nums, rest, err := numbers(fields, 2, 1)
		if err != nil {
			return req, true, err
		}
		req.Reading.VolumeGallons = nums[0]
		if command == "stabilizer" {
			req.Mode = types.ModeStabilizer
			req.Reading.StabilizerPPM = nums[1]
		} else {
			req.Mode = types.ModeSalt
			req.Reading.SaltPPM = nums[1]
		}
		if len(rest) == 1 {
			target, err := strconv.ParseFloat(rest[0], 64)
			if err != nil {
				return req, true, fmt.Errorf("%w: target %q is not a number", errUsage, rest[0])
			}
			req.TargetPPM = &target
		}
		return req, true, nil

	case "alkalinity":
		nums, _, err := numbers(fields, 3, 0)
		if err != nil {
			return req, true, err
		}
		req = dosing.Request{
			Mode: types.ModeAlkalinity,
			Reading: types.WaterReading{
				VolumeGallons: nums[0],
				PH:            nums[1],
				AlkalinityPPM: nums[2],
			},
		}
		return req, true, nil
	}

	return req, false, nil
}

// numbers parses the first n fields as floats and returns up to extra
// remaining fields untouched.
func numbers(fields []string, n, extra int) ([]float64, []string, error) {
	if len(fields) < n || len(fields) > n+extra {
		return nil, nil, fmt.Errorf("%w: want %d to %d values, got %d", errUsage, n, n+extra, len(fields))
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(strings.TrimSuffix(fields[i], ","), 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %q is not a number", errUsage, fields[i])
		}
		out[i] = v
	}
	return out, fields[n:], nil
}

func helpText() string {
	var b strings.Builder
	b.WriteString("Pool chemistry calculator. Commands:\n")
	for _, c := range commandOrder {
		b.WriteString(usage[c] + "\n")
	}
	b.WriteString("/ranges - ideal ranges\n")
	b.WriteString("/help - this message\n\n")
	b.WriteString("Send a photo of a test strip for a placeholder reading.")
	return b.String()
}
