package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port int

	// Audio
	Volume       float64       // initial master level, 0..1
	Speaker      bool          // play through the local output device
	WakeMargin   time.Duration // pulse envelopes are queued this far ahead
	BufferFrames int           // per-sink frame queue

	// Streaming
	OpusBitrate int
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	return Config{
		Port: envInt("SRUTHI_PORT", 8080),

		Volume:       envFloat("SRUTHI_VOLUME", 0.5),
		Speaker:      envBool("SRUTHI_SPEAKER", true),
		WakeMargin:   time.Duration(envInt("SRUTHI_WAKE_MARGIN_MS", 100)) * time.Millisecond,
		BufferFrames: envInt("SRUTHI_BUFFER_FRAMES", 10),

		OpusBitrate: envInt("SRUTHI_OPUS_BITRATE", 128000),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if n, err := strconv.Atoi(envStr(key, "")); err == nil {
		return n
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(envStr(key, ""), 64); err == nil {
		return f
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if b, err := strconv.ParseBool(envStr(key, "")); err == nil {
		return b
	}
	return fallback
}
