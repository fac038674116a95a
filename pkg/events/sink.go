package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// JSONLSink writes every event of a subscription to w as one JSON object
// per line, forming an audit trail of the run
type JSONLSink struct {
	w   io.Writer
	sub Subscriber
	wg  sync.WaitGroup
	err error
}

// NewJSONLSink subscribes to the broker without loss and starts writing to w
func NewJSONLSink(b *Broker, w io.Writer) *JSONLSink {
	s := &JSONLSink{
		w:   w,
		sub: b.SubscribeLossless(),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *JSONLSink) run() {
	defer s.wg.Done()
	enc := json.NewEncoder(s.w)
	for event := range s.sub {
		if s.err != nil {
			continue
		}
		if err := enc.Encode(event); err != nil {
			s.err = fmt.Errorf("failed to write event: %w", err)
		}
	}
}

// Wait blocks until the subscription is closed (by Broker.Stop) and returns
// the first write error
func (s *JSONLSink) Wait() error {
	s.wg.Wait()
	return s.err
}
