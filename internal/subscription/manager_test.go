package subscription

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetmon/internal/transport"
)

type fakeTransport struct {
	mu             sync.Mutex
	state          transport.State
	nextID         transport.SubscriptionID
	active         map[transport.SubscriptionID]string
	subscribeCalls map[string]int
	connectCalls   int
	listeners      []transport.StateListener
}

func newFakeTransport(state transport.State) *fakeTransport {
	return &fakeTransport{
		state:          state,
		active:         make(map[transport.SubscriptionID]string),
		subscribeCalls: make(map[string]int),
	}
}

func (f *fakeTransport) Connect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
}

func (f *fakeTransport) Subscribe(topic string, h transport.MessageHandler) transport.SubscriptionID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.active[f.nextID] = topic
	f.subscribeCalls[topic]++
	return f.nextID
}

func (f *fakeTransport) Unsubscribe(id transport.SubscriptionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, id)
}

func (f *fakeTransport) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) OnStateChange(l transport.StateListener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
	return func() {}
}

func (f *fakeTransport) setState(s transport.State) {
	f.mu.Lock()
	f.state = s
	listeners := append([]transport.StateListener(nil), f.listeners...)
	f.mu.Unlock()
	for _, l := range listeners {
		l(s)
	}
}

func (f *fakeTransport) activeTopics() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int)
	for _, topic := range f.active {
		out[topic]++
	}
	return out
}

func topicFor(id int64) string {
	return fmt.Sprintf("/topic/containers/%d/metrics", id)
}

func noopHandler(string, []byte) {}

func TestSetSubscribesOnlyAdditions(t *testing.T) {
	ft := newFakeTransport(transport.StateConnected)
	m := NewManager(ft, topicFor, noopHandler, nil)

	m.Set([]int64{1, 2, 3})
	assert.Equal(t, 3, m.ActiveCount())

	m.Set([]int64{2, 3, 4})
	assert.Equal(t, 3, m.ActiveCount())

	topics := ft.activeTopics()
	assert.Equal(t, map[string]int{topicFor(2): 1, topicFor(3): 1, topicFor(4): 1}, topics)

	// Unchanged entities were never resubscribed.
	ft.mu.Lock()
	defer ft.mu.Unlock()
	assert.Equal(t, 1, ft.subscribeCalls[topicFor(2)])
	assert.Equal(t, 1, ft.subscribeCalls[topicFor(3)])
}

func TestActiveMatchesMostRecentDesiredSet(t *testing.T) {
	ft := newFakeTransport(transport.StateConnected)
	m := NewManager(ft, topicFor, noopHandler, nil)

	sequences := [][]int64{
		{1, 2, 3},
		{3},
		{},
		{5, 6},
		{5, 6, 7, 8},
	}
	for _, ids := range sequences {
		m.Set(ids)
		require.Equal(t, len(ids), m.ActiveCount(), "after Set(%v)", ids)
		for topic, n := range ft.activeTopics() {
			require.Equal(t, 1, n, "topic %s held more than once", topic)
		}
	}
}

func TestSetWhileDisconnectedIsAppliedOnConnect(t *testing.T) {
	ft := newFakeTransport(transport.StateDisconnected)
	m := NewManager(ft, topicFor, noopHandler, nil)

	m.Set([]int64{1, 2})
	assert.Zero(t, m.ActiveCount())

	ft.mu.Lock()
	connects := ft.connectCalls
	ft.mu.Unlock()
	assert.Equal(t, 1, connects)

	ft.setState(transport.StateConnected)
	assert.Equal(t, 2, m.ActiveCount())
	assert.Len(t, ft.activeTopics(), 2)
}

func TestSetChangesWhileDisconnectedAreNotLost(t *testing.T) {
	ft := newFakeTransport(transport.StateConnected)
	m := NewManager(ft, topicFor, noopHandler, nil)
	m.Set([]int64{1, 2})

	ft.setState(transport.StateConnecting)
	m.Set([]int64{2, 3}) // changed while down

	ft.setState(transport.StateConnected)
	topics := ft.activeTopics()
	assert.Contains(t, topics, topicFor(2))
	assert.Contains(t, topics, topicFor(3))
	assert.NotContains(t, topics, topicFor(1))
	assert.Equal(t, 2, m.ActiveCount())
}

func TestReconnectReplaysDesiredSet(t *testing.T) {
	ft := newFakeTransport(transport.StateConnected)
	m := NewManager(ft, topicFor, noopHandler, nil)
	m.Set([]int64{1, 2})

	// Connection loss and recovery: the transport dropped its table, so the
	// manager must resubscribe everything it still wants.
	ft.setState(transport.StateConnecting)
	ft.setState(transport.StateConnected)

	assert.Equal(t, 2, m.ActiveCount())
	for topic, n := range ft.activeTopics() {
		assert.Equal(t, 1, n, "topic %s duplicated after replay", topic)
	}
	ft.mu.Lock()
	defer ft.mu.Unlock()
	assert.Equal(t, 2, ft.subscribeCalls[topicFor(1)])
	assert.Equal(t, 2, ft.subscribeCalls[topicFor(2)])
}

func TestCloseUnsubscribesEverything(t *testing.T) {
	ft := newFakeTransport(transport.StateConnected)
	m := NewManager(ft, topicFor, noopHandler, nil)
	m.Set([]int64{1, 2, 3})

	m.Close()
	assert.Empty(t, ft.activeTopics())
	assert.Zero(t, m.ActiveCount())

	// A closed manager ignores further sets.
	m.Set([]int64{9})
	assert.Empty(t, ft.activeTopics())
}
