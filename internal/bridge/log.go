package bridge

import "github.com/rs/zerolog"

// logger is silent by default; embedders opt in via SetLogger. Only internal
// invariant violations are logged at error level.
var logger = zerolog.Nop()

// SetLogger installs the diagnostic logger for the bridge.
func SetLogger(l zerolog.Logger) {
	logger = l
}
