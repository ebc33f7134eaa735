package share

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatshare/pkg/signal"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *signal.LocalBus, *fakeFactory, *fakeCapture) {
	t.Helper()
	bus := signal.NewLocalBus()
	factory := &fakeFactory{}
	capture := &fakeCapture{}
	coord := NewCoordinator(CoordinatorConfig{
		SelfID:      "alice",
		DisplayName: "Alice",
		Bus:         bus,
		Peers:       factory.create,
		Capture:     capture.capture,
	})
	t.Cleanup(coord.Close)
	return coord, bus, factory, capture
}

func TestSwitchRoomReplacesManager(t *testing.T) {
	coord, _, _, _ := newTestCoordinator(t)

	m1 := coord.SwitchRoom(Room{ID: "room-1"})
	assert.Same(t, m1, coord.Current())

	m2 := coord.SwitchRoom(Room{ID: "room-2"})
	assert.Same(t, m2, coord.Current())
	assert.NotSame(t, m1, m2)
	assert.Equal(t, "room-2", m2.RoomID())
}

func TestOutboundShareSurvivesRoomNavigation(t *testing.T) {
	coord, _, _, capture := newTestCoordinator(t)

	m1 := coord.SwitchRoom(Room{ID: "room-1"})
	require.NoError(t, m1.StartShare())
	sharedMedia := capture.lastStream()

	// Navigate away: the share stays up but is invisible in the other room.
	m2 := coord.SwitchRoom(Room{ID: "room-2"})
	assert.True(t, coord.Outbound().Active())
	assert.Equal(t, "room-1", coord.Outbound().RoomID())
	_, ok := m2.Store().Get("alice")
	assert.False(t, ok, "self session is scoped to the shared-to room")

	// Returning re-seeds the session from the retained capture handle.
	m3 := coord.SwitchRoom(Room{ID: "room-1"})
	s, ok := m3.Store().Get("alice")
	require.True(t, ok)
	assert.Equal(t, MediaStream(sharedMedia), s.Media)
	assert.Equal(t, 1, capture.callCount(), "capture is never re-acquired")
}

func TestSwitchRoomRequestsActiveShares(t *testing.T) {
	coord, bus, _, _ := newTestCoordinator(t)
	rec := newEventRecorder(bus, "room-1")

	coord.SwitchRoom(Room{ID: "room-1"})

	reqs := rec.signalsOfType(signal.TypeRequestActiveShares)
	require.Len(t, reqs, 1)
	assert.Equal(t, "alice", reqs[0].FromUserID)
}

func TestSwitchRoomDropsInboundSessions(t *testing.T) {
	coord, bus, factory, _ := newTestCoordinator(t)

	m1 := coord.SwitchRoom(Room{ID: "room-1"})
	require.NoError(t, bus.Publish(signal.SignalTopic("room-1"),
		signal.Signal{Type: signal.TypeOffer, FromUserID: "bob", Payload: []byte(`"offer-bob"`)}))
	answerer := factory.last()
	require.NotNil(t, answerer)

	coord.SwitchRoom(Room{ID: "room-2"})

	assert.Equal(t, 1, answerer.destroyCount())
	_, ok := m1.Store().Get("bob")
	assert.False(t, ok)
}

func TestStopFromAnotherRoomStopsGlobalShare(t *testing.T) {
	coord, bus, _, capture := newTestCoordinator(t)
	rec := newEventRecorder(bus, "room-1")

	m1 := coord.SwitchRoom(Room{ID: "room-1"})
	require.NoError(t, m1.StartShare())
	track := capture.lastTrack()

	// The stop control stays available while viewing a different room, and
	// the announcement lands on the shared-to room's topic.
	m2 := coord.SwitchRoom(Room{ID: "room-2"})
	m2.StopShare()

	assert.False(t, coord.Outbound().Active())
	assert.True(t, track.wasStopped())
	require.Len(t, rec.eventsOfAction(signal.ActionStop), 1)
	assert.Equal(t, "room-1", rec.eventsOfAction(signal.ActionStop)[0].RoomID)
}

func TestTransportDropForcesStopSilently(t *testing.T) {
	coord, bus, _, capture := newTestCoordinator(t)
	rec := newEventRecorder(bus, "room-1")

	m := coord.SwitchRoom(Room{ID: "room-1"})
	require.NoError(t, m.StartShare())

	bus.Drop()

	assert.False(t, coord.Outbound().Active())
	assert.True(t, capture.lastTrack().wasStopped())
	assert.Empty(t, rec.eventsOfAction(signal.ActionStop))
}

func TestCoordinatorCloseAnnouncesStop(t *testing.T) {
	bus := signal.NewLocalBus()
	factory := &fakeFactory{}
	capture := &fakeCapture{}
	coord := NewCoordinator(CoordinatorConfig{
		SelfID: "alice", DisplayName: "Alice",
		Bus: bus, Peers: factory.create, Capture: capture.capture,
	})
	rec := newEventRecorder(bus, "room-1")

	m := coord.SwitchRoom(Room{ID: "room-1"})
	require.NoError(t, m.StartShare())

	coord.Close()

	assert.False(t, coord.Outbound().Active())
	assert.Len(t, rec.eventsOfAction(signal.ActionStop), 1)
}
