/*
Package events provides an in-memory event broker for rollout progress.

The orchestrator and the drain coordinator publish events (step started,
agent drained, rollback started, ...) to a Broker. Subscribers receive every
event on a buffered channel; a full subscriber buffer drops the event rather
than blocking the rollout.

The CLI attaches a JSONLSink when `--events-file` is set, producing one JSON
object per line:

	{"id":"…","type":"agent.drained","timestamp":"…","message":"Stopped agent","metadata":{"agent":"bamboo-agent-x1"}}

Stop flushes events that were published before it was called and closes all
subscriber channels, so a sink has written everything once Wait returns:

	broker := events.NewBroker()
	broker.Start()
	sink := events.NewJSONLSink(broker, file)
	// ... run rollout with broker as publisher ...
	broker.Stop()
	err := sink.Wait()

Publishers that may be absent are handled with Emit, which ignores a nil
Publisher.
*/
package events
