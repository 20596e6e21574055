// Package advisory turns a water reading into human-readable hints: the
// ideal-range captions shown next to every calculator, below/above-range
// warnings, and configurable threshold rules such as "ph > 8.2".
//
// Hints are ordered critical first, then warnings, then info.
package advisory
