package checks

import (
	"runtime/debug"
	"strings"

	"github.com/phuslu/log"
)

// Checks has its own package, to prevent dependency cycles

func Check(err error) {
	if err != nil {
		log.Fatal().Err(err).Str("stack", trimmedStack()).Msg("unrecoverable error")
	}
}

func CheckWithMessage(err error, message string) {
	if err != nil {
		log.Fatal().Err(err).Str("stack", trimmedStack()).Msg(message)
	}
}

// trimmedStack drops the goroutine header and the frames of this package.
func trimmedStack() string {
	lines := strings.Split(string(debug.Stack()), "\n")
	if len(lines) > 7 {
		lines = lines[7:]
	}
	return strings.Join(lines, "\n")
}
