package core

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// LogEnv is the environment variable that controls the global log level.
const LogEnv = "COLSEL_LOG"

// init sets the global logging level from COLSEL_LOG.
func init() {
	ConfigureLogging()
}

// ConfigureLogging reads COLSEL_LOG and sets the global zerolog level.
// "off" or "0" disables logging, "full" enables debug output and anything else
// (including an unset variable) selects info.
func ConfigureLogging() {
	debugMode := strings.TrimSpace(strings.ToLower(os.Getenv(LogEnv)))

	switch debugMode {
	case "off", "0":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	case "full":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
