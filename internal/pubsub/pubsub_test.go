package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern, subject string
		want             bool
	}{
		{"transit.sessions.b1", "transit.sessions.b1", true},
		{"transit.sessions.b1", "transit.sessions.b2", false},
		{"transit.sessions.*", "transit.sessions.b2", true},
		{"transit.sessions.*", "transit.sessions", false},
		{"transit.sessions.*", "transit.sessions.b2.x", false},
		{"transit.>", "transit.buses.b1", true},
		{"transit.>", "transit", false},
		{"transit.*.b1", "transit.buses.b1", true},
		{"other.>", "transit.buses.b1", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Match(tt.pattern, tt.subject), "Match(%q, %q)", tt.pattern, tt.subject)
	}
}

func TestSubjectSanitisesTokens(t *testing.T) {
	assert.Equal(t, "transit.routes.user_1", Subject("transit", "routes", "user.1"))
	assert.Equal(t, "transit.routes.*", Subject("transit", "routes", "*"))
	assert.Equal(t, "transit.buses._", Subject("transit", "buses", "  "))
	assert.Equal(t, "a_b_c", Token("a b>c"))
}

func TestMemoryFanOutAndUnsubscribe(t *testing.T) {
	b := NewMemory()
	var exact, wildcard []string
	s1, err := b.Subscribe("transit.sessions.b1", func(subject string, _ []byte) { exact = append(exact, subject) })
	require.NoError(t, err)
	_, err = b.Subscribe("transit.sessions.*", func(subject string, _ []byte) { wildcard = append(wildcard, subject) })
	require.NoError(t, err)

	require.NoError(t, b.Publish("transit.sessions.b1", nil))
	require.NoError(t, b.Publish("transit.sessions.b2", nil))
	assert.Equal(t, []string{"transit.sessions.b1"}, exact)
	assert.Equal(t, []string{"transit.sessions.b1", "transit.sessions.b2"}, wildcard)

	require.NoError(t, s1.Unsubscribe())
	require.NoError(t, b.Publish("transit.sessions.b1", nil))
	assert.Len(t, exact, 1)
	assert.Len(t, wildcard, 3)
	assert.Equal(t, 1, b.Subscribers())
}

func TestMemoryHandlerMayUnsubscribeItself(t *testing.T) {
	b := NewMemory()
	calls := 0
	var sub Subscription
	sub, err := b.Subscribe("x", func(string, []byte) {
		calls++
		_ = sub.Unsubscribe()
	})
	require.NoError(t, err)
	require.NoError(t, b.Publish("x", nil))
	require.NoError(t, b.Publish("x", nil))
	assert.Equal(t, 1, calls)
}

func TestMemoryClosed(t *testing.T) {
	b := NewMemory()
	b.Close()
	assert.ErrorIs(t, b.Publish("x", nil), ErrClosed)
	_, err := b.Subscribe("x", func(string, []byte) {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryUnsubscribeKeepsOrderAndForgetsDeadSubscriptions(t *testing.T) {
	b := NewMemory()
	var got []string
	record := func(name string) Handler {
		return func(string, []byte) { got = append(got, name) }
	}

	for i := 0; i < 100; i++ {
		s, err := b.Subscribe("transit.>", record("gone"))
		require.NoError(t, err)
		require.NoError(t, s.Unsubscribe())
	}
	_, err := b.Subscribe("transit.>", record("first"))
	require.NoError(t, err)
	middle, err := b.Subscribe("transit.>", record("middle"))
	require.NoError(t, err)
	_, err = b.Subscribe("transit.>", record("last"))
	require.NoError(t, err)

	require.NoError(t, middle.Unsubscribe())
	require.NoError(t, middle.Unsubscribe())
	require.NoError(t, b.Publish("transit.buses.b1", nil))

	assert.Equal(t, []string{"first", "last"}, got)
	assert.Equal(t, 2, b.Subscribers())
	assert.Len(t, b.subs, 2)
}
