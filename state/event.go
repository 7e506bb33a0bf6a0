package state

// Event is a typed record appended during a settlement. Events ride the same
// journal as balance mutations, so an aborted invocation leaves no trace.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// AppendEvent records the event in the substrate's ordered log.
func (m *Manager) AppendEvent(evt *Event) {
	if evt == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal = append(m.journal, eventAppend{})
	m.events = append(m.events, *evt)
}

// Events returns a copy of the committed event log.
func (m *Manager) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
