package graph

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	builderLog zerolog.Logger
	cacheLog   zerolog.Logger
	pathLog    zerolog.Logger
	indexerLog zerolog.Logger
)

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	base := zerolog.New(out).With().Timestamp()
	builderLog = base.Str("component", "graph-builder").Logger()
	cacheLog = base.Str("component", "graph-cache").Logger()
	pathLog = base.Str("component", "pathfinder").Logger()
	indexerLog = base.Str("component", "indexer").Logger()
}
