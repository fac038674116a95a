package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	b.Start()

	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())

	b.Publish(&Event{Type: EventStepStarted, Message: "Rolling out CANARY_NEW"})

	select {
	case event := <-sub:
		assert.Equal(t, EventStepStarted, event.Type)
		assert.NotEmpty(t, event.ID)
		assert.False(t, event.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())
	b.Stop()
}

func TestBrokerStopFlushesAndClosesSubscribers(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()

	// Events queued before the loop starts must still reach the subscriber
	Emit(b, EventAgentDrained, "Stopped agent", map[string]string{"agent": "bamboo-agent-a"})
	Emit(b, EventAgentDrained, "Stopped agent", map[string]string{"agent": "bamboo-agent-b"})

	b.Start()
	b.Stop()

	var agents []string
	for event := range sub {
		agents = append(agents, event.Metadata["agent"])
	}
	assert.ElementsMatch(t, []string{"bamboo-agent-a", "bamboo-agent-b"}, agents)

	// Publishing after Stop must not block
	b.Publish(&Event{Type: EventRolloutCompleted})
	b.Stop()
}

func TestEmitNilPublisher(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(nil, EventRolloutStarted, "", nil)
	})
}

func TestJSONLSink(t *testing.T) {
	b := NewBroker()
	b.Start()

	var buf bytes.Buffer
	sink := NewJSONLSink(b, &buf)

	Emit(b, EventRolloutStarted, "Rollout started", map[string]string{"from": "ALL_OLD"})
	Emit(b, EventRolloutCompleted, "Rollout completed", nil)
	b.Stop()
	require.NoError(t, sink.Wait())

	var types []EventType
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var event Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		types = append(types, event.Type)
	}
	assert.Equal(t, []EventType{EventRolloutStarted, EventRolloutCompleted}, types)
}

// slowWriter delays every write to make the sink lag behind publishers
type slowWriter struct {
	buf   bytes.Buffer
	delay time.Duration
}

func (w *slowWriter) Write(p []byte) (int, error) {
	time.Sleep(w.delay)
	return w.buf.Write(p)
}

func TestJSONLSinkKeepsEveryEventOfBurst(t *testing.T) {
	b := NewBroker()
	b.Start()

	w := &slowWriter{delay: time.Millisecond}
	sink := NewJSONLSink(b, w)

	const published = 3 * subscriberSize
	for i := 0; i < published; i++ {
		Emit(b, EventAgentDrained, "Stopped agent", map[string]string{"agent": fmt.Sprintf("bamboo-agent-%d", i)})
	}
	b.Stop()
	require.NoError(t, sink.Wait())

	var agents []string
	scanner := bufio.NewScanner(&w.buf)
	for scanner.Scan() {
		var event Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		agents = append(agents, event.Metadata["agent"])
	}
	require.Len(t, agents, published)
	assert.Equal(t, "bamboo-agent-0", agents[0])
	assert.Equal(t, fmt.Sprintf("bamboo-agent-%d", published-1), agents[published-1])
}

func TestUnreadSubscriberDoesNotBlockBroker(t *testing.T) {
	b := NewBroker()
	b.Start()

	unread := b.Subscribe()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 2*subscriberSize; i++ {
			Emit(b, EventAgentDrained, "Stopped agent", nil)
		}
		b.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("broker blocked on a full subscriber")
	}

	count := 0
	for range unread {
		count++
	}
	assert.Equal(t, subscriberSize, count)
}
