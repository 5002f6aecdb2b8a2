/*
Package log provides structured logging for hamster using zerolog.

A single global Logger is configured once at startup with Init and then
specialised per component. Every package that logs takes a child logger
instead of writing to the global one directly, so each line carries the
component that produced it.

# Configuration

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Logging.Level),
		JSONOutput: cfg.Logging.JSON,
	})

Level is one of debug, info, warn or error; unknown names fall back to info.
JSONOutput selects newline-delimited JSON, otherwise a human readable console
writer is used. Output defaults to stdout.

# Context loggers

	WithComponent("provider")        component=provider
	WithResourceID("agent", 3)       component=agent resource_id=3

Child loggers compose with zerolog's own With():

	logger := log.WithComponent("reconciler")
	logger.Info().
		Uint64("epoch", epoch).
		Int("timed_out_resources", len(res.TimedOutResources)).
		Msg("Liveness sweep finished")

# Output

JSON:

	{"level":"info","component":"provider","resource_id":3,"time":"2026-01-10T10:30:01Z","message":"Resource registered"}

Console:

	10:30:01 INF Resource registered component=provider resource_id=3

# Levels

Debug is used for per-step placement decisions, Info for committed state
changes, Warn for timed out nodes and failed redistributions, Error for
failures that abort an operation or a background loop iteration.
*/
package log
