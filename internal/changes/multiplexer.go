package changes

import (
	"github.com/agentic-research/stencil/internal/graph"
	"github.com/agentic-research/stencil/internal/props"
)

// Multiplexer fans every event out to its registered sinks in
// registration order.
type Multiplexer struct {
	sinks []Sink
}

var _ Sink = (*Multiplexer)(nil)

func NewMultiplexer(sinks ...Sink) *Multiplexer {
	return &Multiplexer{sinks: sinks}
}

func (m *Multiplexer) Add(s Sink) { m.sinks = append(m.sinks, s) }

// Remove unregisters s. It reports false when s was not registered.
func (m *Multiplexer) Remove(s Sink) bool {
	for i, have := range m.sinks {
		if have == s {
			m.sinks = append(m.sinks[:i], m.sinks[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Multiplexer) RecordCreate(id string) {
	for _, s := range m.sinks {
		s.RecordCreate(id)
	}
}

func (m *Multiplexer) RecordDelete(id string) {
	for _, s := range m.sinks {
		s.RecordDelete(id)
	}
}

func (m *Multiplexer) RecordValueChanged(h props.Handle) {
	for _, s := range m.sinks {
		s.RecordValueChanged(h)
	}
}

func (m *Multiplexer) RecordLinkAdded(d graph.Descriptor) {
	for _, s := range m.sinks {
		s.RecordLinkAdded(d)
	}
}

func (m *Multiplexer) RecordLinkRemoved(d graph.Descriptor) {
	for _, s := range m.sinks {
		s.RecordLinkRemoved(d)
	}
}

func (m *Multiplexer) RecordLinkValidityChanged(d graph.Descriptor) {
	for _, s := range m.sinks {
		s.RecordLinkValidityChanged(d)
	}
}

func (m *Multiplexer) RecordErrorChanged(id string) {
	for _, s := range m.sinks {
		s.RecordErrorChanged(id)
	}
}
