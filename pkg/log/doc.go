/*
Package log provides structured logging for fleetroll using zerolog.

The package keeps one global zerolog.Logger that is configured once by the
CLI through Init. Components derive child loggers with WithComponent and add
rollout context (run ID, state, agent) with the With* helpers, so every line
of a rollout can be correlated:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithRunID(log.WithComponent("rollout"), runID)
	logger.Info().Str("state", "CANARY_NEW").Msg("Rolling out state")

Console output (the default) is meant for operators watching a rollout;
JSON output is meant for CI systems that ship logs elsewhere. Logs go to
stderr so stdout stays free for command output such as `fleetroll status`.
*/
package log
