// Package mix provides the crossfader gain law shared by manual fader moves
// and autopilot transitions.
package mix

import "math"

// Levels maps a fader position in [0,1] to gain levels for deck A and deck B
// using an equal-power law: position 0 is full A / silent B, position 1 the
// inverse. The cosine curve keeps perceived loudness steady through the
// midpoint, which a linear fade does not.
func Levels(position float64) (levelA, levelB float64) {
	if position < 0 {
		position = 0
	}
	if position > 1 {
		position = 1
	}
	levelA = math.Cos(position * math.Pi / 2)
	levelB = math.Cos((1 - position) * math.Pi / 2)
	return levelA, levelB
}
