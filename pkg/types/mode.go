package types

import "fmt"

// Mode selects which calculator a front-end invokes.
type Mode string

const (
	// ModeChlorinePH derives the chlorine target from stabilizer level and algae.
	ModeChlorinePH Mode = "chlorine_ph"
	// ModeChlorinePHFixed uses caller-supplied chlorine and pH targets.
	ModeChlorinePHFixed Mode = "chlorine_ph_fixed"
	ModeStabilizer      Mode = "stabilizer"
	ModeSalt            Mode = "salt"
	// ModeAlkalinity is acid demand corrected by total alkalinity.
	ModeAlkalinity Mode = "alkalinity"
	// ModeStrip is the placeholder image analyzer. It is not a dosing mode.
	ModeStrip Mode = "strip"
)

// Modes lists every mode in display order.
var Modes = []Mode{
	ModeChlorinePH,
	ModeChlorinePHFixed,
	ModeStabilizer,
	ModeSalt,
	ModeAlkalinity,
	ModeStrip,
}

// ParseMode accepts a canonical mode name or one of the short aliases used by
// the CLI and the chat bot.
func ParseMode(s string) (Mode, error) {
	switch s {
	case string(ModeChlorinePH), "chlorine":
		return ModeChlorinePH, nil
	case string(ModeChlorinePHFixed), "fixed":
		return ModeChlorinePHFixed, nil
	case string(ModeStabilizer), "cya":
		return ModeStabilizer, nil
	case string(ModeSalt):
		return ModeSalt, nil
	case string(ModeAlkalinity), "ta":
		return ModeAlkalinity, nil
	case string(ModeStrip), "analyze":
		return ModeStrip, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}
