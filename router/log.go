package router

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	aggLog      zerolog.Logger
	composerLog zerolog.Logger
	slippageLog zerolog.Logger
	serviceLog  zerolog.Logger
)

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	base := zerolog.New(out).With().Timestamp()
	aggLog = base.Str("component", "aggregator").Logger()
	composerLog = base.Str("component", "composer").Logger()
	slippageLog = base.Str("component", "slippage").Logger()
	serviceLog = base.Str("component", "route-service").Logger()
}
