package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBusDeliversInOrder(t *testing.T) {
	bus := NewLocalBus()
	var got []string
	bus.Subscribe("t", func(data []byte) {
		got = append(got, string(data))
	})

	require.NoError(t, bus.Publish("t", "a"))
	require.NoError(t, bus.Publish("t", "b"))
	require.NoError(t, bus.Publish("t", "c"))

	assert.Equal(t, []string{`"a"`, `"b"`, `"c"`}, got)
}

func TestLocalBusTopicIsolation(t *testing.T) {
	bus := NewLocalBus()
	var t1, t2 int
	bus.Subscribe("t1", func([]byte) { t1++ })
	bus.Subscribe("t2", func([]byte) { t2++ })

	require.NoError(t, bus.Publish("t1", 1))

	assert.Equal(t, 1, t1)
	assert.Equal(t, 0, t2)
}

func TestLocalBusUnsubscribeIsIdempotent(t *testing.T) {
	bus := NewLocalBus()
	var calls int
	sub := bus.Subscribe("t", func([]byte) { calls++ })

	require.NoError(t, bus.Publish("t", 1))
	sub.Unsubscribe()
	sub.Unsubscribe()
	require.NoError(t, bus.Publish("t", 2))

	assert.Equal(t, 1, calls)
}

func TestLocalBusDeliversToAllSubscribersIncludingPublisher(t *testing.T) {
	bus := NewLocalBus()
	var a, b int
	bus.Subscribe("t", func([]byte) { a++ })
	bus.Subscribe("t", func([]byte) { b++ })

	require.NoError(t, bus.Publish("t", "x"))

	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}

func TestLocalBusDropFiresDisconnectHandlerOnce(t *testing.T) {
	bus := NewLocalBus()
	var drops int
	bus.SetDisconnectHandler(func() { drops++ })

	bus.Drop()
	bus.Drop()

	assert.Equal(t, 1, drops)
	assert.Error(t, bus.Publish("t", "x"), "dropped bus refuses publishes")
}

func TestLocalBusCloseIsSilent(t *testing.T) {
	bus := NewLocalBus()
	var drops int
	bus.SetDisconnectHandler(func() { drops++ })

	bus.Close()

	assert.Equal(t, 0, drops, "explicit close is not a transport loss")
	assert.Error(t, bus.Publish("t", "x"))
}

func TestTopicNames(t *testing.T) {
	assert.Equal(t, "screenshare/room-1", ShareEventsTopic("room-1"))
	assert.Equal(t, "signal/room-1", SignalTopic("room-1"))
}
