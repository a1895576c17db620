// Package subscription keeps live topic subscriptions in sync with a desired
// entity-ID set for one topic family.
package subscription

import (
	"log/slog"
	"sync"

	"fleetmon/internal/transport"
)

// Transport is the slice of the shared client the manager needs. The concrete
// *transport.Client satisfies it; tests inject fakes.
type Transport interface {
	Connect()
	Subscribe(topic string, h transport.MessageHandler) transport.SubscriptionID
	Unsubscribe(id transport.SubscriptionID)
	State() transport.State
	OnStateChange(l transport.StateListener) func()
}

// TopicFunc renders the topic for one entity, e.g.
// func(id int64) string { return fmt.Sprintf("/topic/containers/%d/metrics", id) }.
type TopicFunc func(entityID int64) string

// Manager diffs the desired entity set against currently held subscriptions on
// every change, subscribing to additions and unsubscribing removals only.
// While the transport is not connected the desired set is retained and applied
// in full on the next connected transition, which also covers resubscription
// after a reconnect (the transport itself never replays subscriptions).
type Manager struct {
	transport Transport
	topic     TopicFunc
	handler   transport.MessageHandler
	logger    *slog.Logger

	mu           sync.Mutex
	desired      map[int64]struct{}
	active       map[int64]transport.SubscriptionID
	closed       bool
	stopListener func()
}

func NewManager(t Transport, topic TopicFunc, handler transport.MessageHandler, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		transport: t,
		topic:     topic,
		handler:   handler,
		logger:    logger,
		desired:   make(map[int64]struct{}),
		active:    make(map[int64]transport.SubscriptionID),
	}
	m.stopListener = t.OnStateChange(m.onStateChange)
	return m
}

// Set replaces the desired entity set wholesale and applies the add/remove
// diff. Unchanged entities are never resubscribed.
func (m *Manager) Set(ids []int64) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.desired = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m.desired[id] = struct{}{}
	}
	connected := m.transport.State() == transport.StateConnected
	if !connected {
		// Applied once the transport reports connected.
		wantConnect := len(m.desired) > 0
		m.mu.Unlock()
		if wantConnect {
			m.transport.Connect()
		}
		return
	}

	added := make([]int64, 0)
	removedSubs := make([]transport.SubscriptionID, 0)
	for id := range m.desired {
		if _, ok := m.active[id]; !ok {
			added = append(added, id)
		}
	}
	for id, subID := range m.active {
		if _, ok := m.desired[id]; !ok {
			removedSubs = append(removedSubs, subID)
			delete(m.active, id)
		}
	}
	m.mu.Unlock()

	for _, subID := range removedSubs {
		m.transport.Unsubscribe(subID)
	}
	for _, id := range added {
		m.subscribeOne(id)
	}
}

// ActiveCount reports currently held subscriptions, for consumers and tests.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Close unsubscribes everything the manager owns and detaches it from the
// transport. The manager is unusable afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	subs := m.active
	m.active = make(map[int64]transport.SubscriptionID)
	m.desired = make(map[int64]struct{})
	stop := m.stopListener
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
	for _, subID := range subs {
		m.transport.Unsubscribe(subID)
	}
}

func (m *Manager) onStateChange(s transport.State) {
	if s != transport.StateConnected {
		return
	}

	// A fresh session holds none of our subscriptions. Drop every held handle
	// (stale ones unsubscribe as no-ops) and subscribe the full desired set.
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	old := m.active
	m.active = make(map[int64]transport.SubscriptionID, len(m.desired))
	toAdd := make([]int64, 0, len(m.desired))
	for id := range m.desired {
		toAdd = append(toAdd, id)
	}
	m.mu.Unlock()

	for _, subID := range old {
		m.transport.Unsubscribe(subID)
	}
	if len(toAdd) > 0 {
		m.logger.Debug("replaying subscriptions", "count", len(toAdd))
	}
	for _, id := range toAdd {
		m.subscribeOne(id)
	}
}

func (m *Manager) subscribeOne(id int64) {
	subID := m.transport.Subscribe(m.topic(id), m.handler)

	m.mu.Lock()
	_, stillDesired := m.desired[id]
	if m.closed || !stillDesired {
		m.mu.Unlock()
		m.transport.Unsubscribe(subID)
		return
	}
	if prev, ok := m.active[id]; ok && prev != subID {
		// Set raced with a replay; keep the newest handle only.
		m.active[id] = subID
		m.mu.Unlock()
		m.transport.Unsubscribe(prev)
		return
	}
	m.active[id] = subID
	m.mu.Unlock()
}
