package transport

import (
	"sync"

	"github.com/dmatscheko/homeassistant-rainsensor/internal/gauge"
)

// FakeBroker is an in-memory Subscriber/Publisher for tests. Notifications
// pushed via Notify are delivered synchronously to the registered handler.
type FakeBroker struct {
	mu        sync.Mutex
	handler   func(gauge.Notification)
	published []gauge.Readings
	closed    bool
}

// NewFakeBroker creates an empty fake.
func NewFakeBroker() *FakeBroker {
	return &FakeBroker{}
}

// Subscribe records the handler.
func (f *FakeBroker) Subscribe(handler func(gauge.Notification)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
	return nil
}

// Notify delivers one notification to the subscribed handler.
func (f *FakeBroker) Notify(note gauge.Notification) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(note)
	}
}

// PublishReadings records the snapshot.
func (f *FakeBroker) PublishReadings(readings gauge.Readings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, readings)
	return nil
}

// Published returns a copy of everything published so far.
func (f *FakeBroker) Published() []gauge.Readings {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]gauge.Readings, len(f.published))
	copy(out, f.published)
	return out
}

// Close marks the fake closed.
func (f *FakeBroker) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *FakeBroker) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

var (
	_ Subscriber = (*FakeBroker)(nil)
	_ Publisher  = (*FakeBroker)(nil)
)
