package featureflags

import (
	"os"
	"strings"
)

// Known flags
const (
	// DisableAutoProvision stops clients from being created when an identity is created.
	// Registration still provisions explicitly.
	DisableAutoProvision = "disable_auto_provision"
	// StatsStream exposes the staff websocket that pushes client statistics.
	StatsStream = "stats_stream"
)

// Enabled returns true if a flag is enabled via environment variable.
// Flags are read from env as FLAG_<NAME>=true/1/yes (case-insensitive)
func Enabled(name string) bool {
	return EnabledIn(os.LookupEnv, name)
}

// EnabledIn resolves a flag through lookup instead of the process environment
func EnabledIn(lookup func(string) (string, bool), name string) bool {
	v, _ := lookup("FLAG_" + strings.ToUpper(name))
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
