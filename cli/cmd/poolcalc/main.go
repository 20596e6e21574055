// Command poolcalc prints pool chemical doses for a water reading.
//
//	poolcalc chlorine   -volume 25000 -chlorine 1 -ph 8 -cya 50 [-algae] [-product cal-hypo-73]
//	poolcalc fixed      -volume 25000 -chlorine 0 -ph 8 [-target 3] [-target-ph 7.5]
//	poolcalc stabilizer -volume 25000 -current 0 [-target 50]
//	poolcalc salt       -volume 25000 -current 2800 [-target 3200]
//	poolcalc alkalinity -volume 25000 -ph 8 -ta 80
//	poolcalc analyze    [-seed N] strip.jpg
//	poolcalc products
//
// Every calculator accepts -json to print the full result as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/poolchem/poolchem/pkg/advisory"
	"github.com/poolchem/poolchem/pkg/dosing"
	"github.com/poolchem/poolchem/pkg/report"
	"github.com/poolchem/poolchem/pkg/strip"
	"github.com/poolchem/poolchem/pkg/types"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// output is what a calculator prints in -json mode.
type output struct {
	dosing.Result
	Advisories []advisory.Hint `json:"advisories"`
	Captions   []string        `json:"captions"`
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usageText)
		return exitUsage
	}

	switch args[0] {
	case "-h", "-help", "--help", "help":
		fmt.Fprintln(stdout, usageText)
		return exitOK
	case "products":
		return listProducts(stdout)
	case "analyze":
		return analyze(ctx, args[1:], stdout, stderr)
	}

	mode, err := types.ParseMode(args[0])
	if err != nil || mode == types.ModeStrip {
		fmt.Fprintf(stderr, "poolcalc: unknown command %q\n\n%s\n", args[0], usageText)
		return exitUsage
	}
	return calculate(mode, args[1:], stdout, stderr)
}

func calculate(mode types.Mode, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(string(mode), flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		r        types.WaterReading
		current  float64
		target   float64
		targetPH float64
		product  string
		asJSON   bool
	)
	fs.Float64Var(&r.VolumeGallons, "volume", 0, "pool volume in US gallons")
	fs.BoolVar(&asJSON, "json", false, "print the result as JSON")

	switch mode {
	case types.ModeChlorinePH, types.ModeChlorinePHFixed:
		fs.Float64Var(&r.ChlorinePPM, "chlorine", 0, "free chlorine ppm")
		fs.Float64Var(&r.PH, "ph", 0, "measured pH")
		fs.Float64Var(&targetPH, "target-ph", 0, "pH target (default from catalog)")
		fs.StringVar(&product, "product", "", "calcium hypochlorite product (see: poolcalc products)")
		if mode == types.ModeChlorinePH {
			fs.Float64Var(&r.StabilizerPPM, "cya", 0, "stabilizer (cyanuric acid) ppm")
			fs.BoolVar(&r.AlgaePresent, "algae", false, "algae present; shock to 12 ppm")
		} else {
			fs.Float64Var(&target, "target", 0, "free chlorine target ppm (default from catalog)")
		}
	case types.ModeStabilizer, types.ModeSalt:
		fs.Float64Var(&current, "current", 0, "current level ppm")
		fs.Float64Var(&target, "target", 0, "target level ppm (default from catalog)")
	case types.ModeAlkalinity:
		fs.Float64Var(&r.PH, "ph", 0, "measured pH")
		fs.Float64Var(&r.AlkalinityPPM, "ta", 0, "total alkalinity ppm")
		fs.Float64Var(&targetPH, "target-ph", 0, "pH target (default from catalog)")
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	switch mode {
	case types.ModeStabilizer:
		r.StabilizerPPM = current
	case types.ModeSalt:
		r.SaltPPM = current
	}

	req := dosing.Request{Mode: mode, Reading: r, Product: product}
	if set["target-ph"] {
		req.TargetPH = &targetPH
	}
	if set["target"] {
		if mode == types.ModeChlorinePHFixed {
			req.TargetChlorinePPM = &target
		} else {
			req.TargetPPM = &target
		}
	}

	res, err := dosing.DefaultCalculator().Calculate(req)
	if err != nil {
		fmt.Fprintf(stderr, "poolcalc: %v\n", err)
		if errors.Is(err, dosing.ErrInvalidInput) || errors.Is(err, dosing.ErrUnknownProduct) {
			return exitUsage
		}
		return exitError
	}

	ranges := advisory.DefaultRanges()
	out := output{
		Result:     res,
		Advisories: advisory.Evaluate(r, mode, ranges, advisory.DefaultRules()),
		Captions:   advisory.Captions(ranges, mode),
	}
	if asJSON {
		return printJSON(stdout, stderr, out)
	}
	fmt.Fprint(stdout, report.Calculation(out.Result, out.Advisories, out.Captions))
	return exitOK
}

func analyze(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(stderr)
	seed := fs.Uint64("seed", 0, "seed for reproducible placeholder readings (0 = random)")
	asJSON := fs.Bool("json", false, "print the reading as JSON")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "poolcalc: analyze takes exactly one image path")
		return exitUsage
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "poolcalc: %v\n", err)
		return exitError
	}
	defer f.Close()

	reading, err := strip.NewRandomReader(*seed, strip.DefaultMaxBytes).Read(ctx, f)
	if err != nil {
		fmt.Fprintf(stderr, "poolcalc: %v\n", err)
		return exitError
	}

	ranges := advisory.DefaultRanges()
	hints := advisory.Evaluate(reading.Reading(0), types.ModeStrip, ranges, advisory.DefaultRules())
	captions := advisory.Captions(ranges, types.ModeStrip)
	notice := ""
	if reading.Placeholder {
		notice = strip.PlaceholderNotice
	}

	if *asJSON {
		return printJSON(stdout, stderr, struct {
			Reading    types.StripReading `json:"reading"`
			Advisories []advisory.Hint    `json:"advisories"`
			Captions   []string           `json:"captions"`
			Notice     string             `json:"notice,omitempty"`
		}{reading, hints, captions, notice})
	}
	fmt.Fprint(stdout, report.Strip(reading, hints, captions, notice))
	return exitOK
}

func listProducts(stdout io.Writer) int {
	c := dosing.DefaultCalculator()
	def := c.Defaults().Product
	for _, p := range c.Products() {
		marker := " "
		if p.Name == def {
			marker = "*"
		}
		fmt.Fprintf(stdout, "%s %-12s potency %-6s %s\n", marker, p.Name, report.Amount(p.Potency), p.Description)
	}
	return exitOK
}

func printJSON(stdout, stderr io.Writer, v interface{}) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "poolcalc: %v\n", err)
		return exitError
	}
	return exitOK
}

const usageText = `usage: poolcalc <command> [flags]

Commands:
  chlorine     chlorine and pH, target derived from stabilizer and algae
  fixed        chlorine and pH to explicit targets
  stabilizer   stabilizer (cyanuric acid) to target
  salt         salt to target
  alkalinity   acid demand corrected by total alkalinity
  analyze      read a test-strip photo (placeholder values)
  products     list calcium hypochlorite products

Run "poolcalc <command> -h" for the flags of a command.`
