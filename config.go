package goscanco

import (
	"os"
	"strconv"
	"strings"
)

// Config represents the library's runtime configuration.
type Config struct {
	LogLevel string

	// StrictMode is populated from GOSCANCO_STRICTMODE. No reader consults
	// it: an ISQ header whose extended-header directory does not resolve
	// cleanly is always read with the calibration block simply absent
	// (Open Question 4), never rejected.
	StrictMode bool

	// OpenFileLimit caps the number of files a batch caller (e.g.
	// cmd/scanco-info) may have open concurrently. The core itself never
	// opens more than one file at a time (§5).
	OpenFileLimit int

	// ReadBufferSize is populated from GOSCANCO_BUFFERSIZE. Nothing in this
	// module consults it; Facade.Read reads the payload in one io.ReadAll.
	ReadBufferSize int

	// do not access / write `set`; used internally by GetConfig.
	set bool
}

func intFromEnvDefault(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func boolFromEnvDefault(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func strFromEnvDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

var config Config

// GetConfig returns the library configuration, populating it from the
// process environment on first use.
func GetConfig() Config {
	if !config.set {
		config.LogLevel = strings.ToLower(strFromEnvDefault("GOSCANCO_LOGLEVEL", "info"))
		config.StrictMode = boolFromEnvDefault("GOSCANCO_STRICTMODE", false)
		config.OpenFileLimit = intFromEnvDefault("GOSCANCO_OPENFILELIMIT", 64)
		config.ReadBufferSize = intFromEnvDefault("GOSCANCO_BUFFERSIZE", 2*1024*1024)
		config.set = true
	}
	return config
}

// OverrideConfig replaces the process-wide configuration parsed from the
// environment with newConfig.
func OverrideConfig(newConfig Config) {
	newConfig.set = true
	config = newConfig
}
