package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port int

	// Autopilot behavior
	MonitorInterval   time.Duration // cadence of the remaining-time check
	Lookahead         time.Duration // start a transition when less than this remains
	CrossfadeDuration time.Duration // total crossfade length
	CrossfadeSteps    int           // discrete fader steps per crossfade

	// Analysis
	AnalysisCachePath string  // sqlite file; set to the empty string to disable the cache
	DefaultTempo      float64 // substituted when periodicity detection has no confident answer

	// Engine ramps
	RateRampDuration time.Duration // playback rate ramp on speed changes
	GainRampDuration time.Duration // volume ramp on level changes
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Port: envInt("DECKHAND_PORT", 8080),

		MonitorInterval:   time.Duration(envInt("DECKHAND_MONITOR_INTERVAL_MS", 1000)) * time.Millisecond,
		Lookahead:         time.Duration(envInt("DECKHAND_LOOKAHEAD_SEC", 10)) * time.Second,
		CrossfadeDuration: time.Duration(envInt("DECKHAND_CROSSFADE_MS", 8000)) * time.Millisecond,
		CrossfadeSteps:    envInt("DECKHAND_CROSSFADE_STEPS", 100),

		AnalysisCachePath: envStrEmptyOK("DECKHAND_ANALYSIS_CACHE", "deckhand-analysis.db"),
		DefaultTempo:      envFloat("DECKHAND_DEFAULT_TEMPO", 128),

		RateRampDuration: time.Duration(envInt("DECKHAND_RATE_RAMP_MS", 100)) * time.Millisecond,
		GainRampDuration: time.Duration(envInt("DECKHAND_GAIN_RAMP_MS", 100)) * time.Millisecond,
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envStrEmptyOK distinguishes unset from set-but-empty, so an operator can
// disable a feature by exporting the variable with no value.
func envStrEmptyOK(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
