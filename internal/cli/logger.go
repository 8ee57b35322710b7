package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// InitLogger builds the CLI logger writing JSON lines to w.
func InitLogger(level string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("%w: log level %q", ErrInvalidInput, level)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.WarnLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
