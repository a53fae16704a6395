package execution

import "sync"

// mailbox delivers the events of one execution in posting order. A single
// drain goroutine runs while the queue is non-empty, so post never blocks.
type mailbox struct {
	mu      sync.Mutex
	queue   []Event
	running bool
	deliver func(Event)
	wg      *sync.WaitGroup
}

func newMailbox(deliver func(Event), wg *sync.WaitGroup) *mailbox {
	return &mailbox{deliver: deliver, wg: wg}
}

func (m *mailbox) post(ev Event) {
	m.mu.Lock()
	m.queue = append(m.queue, ev)
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.drain()
}

func (m *mailbox) drain() {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.running = false
			m.mu.Unlock()
			return
		}
		ev := m.queue[0]
		m.queue[0] = Event{}
		m.queue = m.queue[1:]
		m.mu.Unlock()

		m.deliver(ev)
	}
}
