package session

import (
	"context"
	"fmt"
	"live-chat/contract"
	"live-chat/domain"
	"live-chat/errors"
	"live-chat/mocks"
	"live-chat/transport/memory"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// callbacks captures what a mocked transport received through its On* methods.
type callbacks struct {
	snapshot     func([]domain.Message)
	message      func(domain.Message)
	connection   func(bool)
	err          func(error)
	unsubscribed atomic.Int32
}

func (cb *callbacks) unsubscribe() contract.Unsubscribe {
	return func() { cb.unsubscribed.Add(1) }
}

func expectSubscriptions(tr *mocks.MockTransport, cb *callbacks) *gomock.Call {
	return tr.EXPECT().OnSnapshot(gomock.Any()).DoAndReturn(func(fn func([]domain.Message)) contract.Unsubscribe {
		cb.snapshot = fn
		tr.EXPECT().OnMessage(gomock.Any()).DoAndReturn(func(fn func(domain.Message)) contract.Unsubscribe {
			cb.message = fn
			return cb.unsubscribe()
		})
		tr.EXPECT().OnConnectionChange(gomock.Any()).DoAndReturn(func(fn func(bool)) contract.Unsubscribe {
			cb.connection = fn
			return cb.unsubscribe()
		})
		tr.EXPECT().OnError(gomock.Any()).DoAndReturn(func(fn func(error)) contract.Unsubscribe {
			cb.err = fn
			return cb.unsubscribe()
		})
		// Read once Connect returned, the callbacks stay the source of truth
		tr.EXPECT().Connected().Return(false).AnyTimes()
		return cb.unsubscribe()
	})
}

func enabled(channelID domain.ChannelID, token string) Params {
	return Params{ChannelID: channelID, IdentityToken: token, Enabled: true}
}

func newMemoryController(t *testing.T, registry *memory.Registry) (*Controller, *memory.Transport) {
	t.Helper()
	tr := memory.NewTransport(memory.WithRegistry(registry))
	c, err := New(WithTransport(tr))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, tr
}

func texts(messages []domain.Message) []string {
	res := make([]string, 0, len(messages))
	for _, m := range messages {
		res = append(res, m.Text)
	}
	return res
}

func TestNew_Requires_A_Transport(t *testing.T) {
	_, err := New()
	require.ErrorIs(t, err, errors.ErrMissingTransport)
}

func TestController_Stays_Idle_Without_All_Params(t *testing.T) {
	ctrl := gomock.NewController(t)
	// No expectation: any transport call fails the test
	tr := mocks.NewMockTransport(ctrl)
	c, err := New(WithTransport(tr))
	require.NoError(t, err)

	for _, p := range []Params{
		{ChannelID: "game-123", IdentityToken: "tok", Enabled: false},
		{ChannelID: "", IdentityToken: "tok", Enabled: true},
		{ChannelID: "game-123", IdentityToken: " ", Enabled: true},
	} {
		require.NoError(t, c.Update(context.Background(), p))
		require.Equal(t, domain.StateIdle, c.State())
	}

	_, err = c.SendMessage(context.Background(), "hello")
	require.ErrorIs(t, err, errors.ErrNotConnected)
}

func TestController_Subscribes_Before_Connecting(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(ctrl)
	cb := &callbacks{}

	subscribed := expectSubscriptions(tr, cb)
	// The transport delivers connection and snapshot synchronously from Connect
	tr.EXPECT().Connect(gomock.Any(), domain.ChannelID("game-123"), "tok").
		After(subscribed).
		DoAndReturn(func(context.Context, domain.ChannelID, string) error {
			cb.connection(true)
			cb.snapshot([]domain.Message{{ID: "1", Text: "First"}, {ID: "2", Text: "Second"}})
			return nil
		})

	c, err := New(WithTransport(tr))
	req.NoError(err)
	req.NoError(c.Update(context.Background(), enabled("game-123", "tok")))

	view := c.View()
	req.True(view.Connected)
	req.Equal(domain.StateConnected, view.State)
	req.Equal([]string{"Second", "First"}, texts(view.Messages))
}

func TestController_Injected_Transport_Is_Never_Disconnected(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(ctrl)
	cb := &callbacks{}
	expectSubscriptions(tr, cb)
	tr.EXPECT().Connect(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	// no Disconnect expectation

	c, err := New(WithTransport(tr))
	req.NoError(err)
	req.NoError(c.Update(context.Background(), enabled("game-123", "tok")))

	// When the consumer is disabled
	req.NoError(c.Update(context.Background(), Params{ChannelID: "game-123", IdentityToken: "tok"}))

	// Then the four streams are unsubscribed and the transport left alone
	req.Equal(int32(4), cb.unsubscribed.Load())
	req.Equal(domain.StateIdle, c.State())
	c.Close()
}

func TestController_Owned_Transport_Is_Disconnected_On_Teardown(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	built := 0
	var cbs []*callbacks

	factory := func() contract.Transport {
		built++
		tr := mocks.NewMockTransport(ctrl)
		cb := &callbacks{}
		cbs = append(cbs, cb)
		expectSubscriptions(tr, cb)
		tr.EXPECT().Connect(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
		tr.EXPECT().Disconnect().Times(1)
		return tr
	}

	c, err := New(WithTransportFactory(factory))
	req.NoError(err)

	// When the channel changes, then the controller is closed
	req.NoError(c.Update(context.Background(), enabled("game-1", "tok")))
	req.NoError(c.Update(context.Background(), enabled("game-2", "tok")))
	c.Close()
	c.Close()

	// Then each owned transport was disconnected exactly once
	req.Equal(2, built)
	for _, cb := range cbs {
		req.Equal(int32(4), cb.unsubscribed.Load())
	}
	req.Equal(domain.StateDisconnected, c.State())

	// And a closed controller ignores further updates
	req.NoError(c.Update(context.Background(), enabled("game-3", "tok")))
	req.Equal(2, built)
}

func TestController_SendMessage_Has_No_Optimistic_Insert(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(ctrl)
	cb := &callbacks{}
	expectSubscriptions(tr, cb)
	tr.EXPECT().Connect(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, domain.ChannelID, string) error {
			cb.connection(true)
			cb.snapshot(nil)
			return nil
		})
	accepted := domain.Message{ID: "1", Text: "accepted"}
	gomock.InOrder(
		tr.EXPECT().SendMessage(gomock.Any(), "accepted").Return(accepted, nil),
		tr.EXPECT().SendMessage(gomock.Any(), "rejected").Return(domain.Message{}, errors.ErrNotConnected),
	)

	c, err := New(WithTransport(tr))
	req.NoError(err)
	req.NoError(c.Update(context.Background(), enabled("game-123", "tok")))

	// When a send succeeds, the returned message is handed back but not shown yet
	message, err := c.SendMessage(context.Background(), "accepted")
	req.NoError(err)
	req.Equal(accepted, message)
	req.Empty(c.Messages())

	// And a failing send is propagated without phantom entry
	_, err = c.SendMessage(context.Background(), "rejected")
	req.ErrorIs(err, errors.ErrNotConnected)
	req.Empty(c.Messages())

	// Then the echo is the only source of the new entry, applied once
	cb.message(accepted)
	cb.message(accepted)
	req.Equal([]string{"accepted"}, texts(c.Messages()))
}

func TestController_Ignores_Callbacks_Of_A_Torn_Down_Session(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(ctrl)
	first, second := &callbacks{}, &callbacks{}

	gomock.InOrder(
		expectSubscriptions(tr, first),
		tr.EXPECT().Connect(gomock.Any(), domain.ChannelID("game-1"), "tok").Return(nil),
		expectSubscriptions(tr, second),
		tr.EXPECT().Connect(gomock.Any(), domain.ChannelID("game-2"), "tok").Return(nil),
	)

	c, err := New(WithTransport(tr))
	req.NoError(err)
	req.NoError(c.Update(context.Background(), enabled("game-1", "tok")))
	first.message(domain.Message{ID: "a", Text: "from game-1"})
	req.Len(c.Messages(), 1)

	// When switching channel, the local view is reset before the new snapshot
	req.NoError(c.Update(context.Background(), enabled("game-2", "tok")))
	req.Empty(c.Messages())

	// Then a late callback of the previous session is ignored
	first.message(domain.Message{ID: "b", Text: "late from game-1"})
	first.err(fmt.Errorf("late failure"))
	req.Empty(c.Messages())
	req.NoError(c.Err())

	second.snapshot([]domain.Message{{ID: "c", Text: "game-2 history"}})
	req.Equal([]string{"game-2 history"}, texts(c.Messages()))
}

func TestController_Connect_Failure_Is_Kept_As_Latest_Error(t *testing.T) {
	req := require.New(t)
	registry := memory.NewRegistry()

	// A resolver refusing the token makes Connect fail
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockIdentityResolver(ctrl)
	resolver.EXPECT().Resolve(gomock.Any(), "bad").Return(domain.Identity{}, errors.ErrInvalidIdentity)
	failing, err := New(WithTransport(memory.NewTransport(memory.WithRegistry(registry), memory.WithResolver(resolver))))
	req.NoError(err)

	err = failing.Update(context.Background(), enabled("game-123", "bad"))
	t.Cleanup(failing.Close)

	req.ErrorIs(err, errors.ErrConnectionFailed)
	req.ErrorIs(failing.Err(), errors.ErrConnectionFailed)
	req.Equal(domain.StateError, failing.State())
	req.False(failing.Connected())
}

func TestController_Does_Not_Reconnect_By_Itself(t *testing.T) {
	req := require.New(t)
	registry := memory.NewRegistry()
	c, tr := newMemoryController(t, registry)
	req.NoError(c.Update(context.Background(), enabled("game-123", "Alice S.")))

	// When the transport drops unexpectedly
	tr.SimulateDisconnect()

	// Then the controller mirrors it and stays disconnected
	req.False(c.Connected())
	req.Equal(domain.StateDisconnected, c.State())
	req.False(tr.Connected())
	req.Zero(registry.Subscribers("game-123"))

	// And an explicit reconnect recovers with a fresh snapshot
	req.NoError(c.Reconnect(context.Background()))
	req.True(c.Connected())
}

func TestController_OnChange_Receives_Views(t *testing.T) {
	req := require.New(t)
	registry := memory.NewRegistry()
	var states []domain.ConnectionState
	c, err := New(
		WithTransport(memory.NewTransport(memory.WithRegistry(registry))),
		WithOnChange(func(v View) { states = append(states, v.State) }),
	)
	req.NoError(err)

	req.NoError(c.Update(context.Background(), enabled("game-123", "Alice S.")))
	c.Close()

	req.Equal(domain.StateConnecting, states[0])
	req.Contains(states, domain.StateConnected)
	req.Equal(domain.StateDisconnected, states[len(states)-1])
}

// Scenario: two participants chat on the same channel.
func TestScenario_Two_Participants_See_The_Same_Conversation(t *testing.T) {
	req := require.New(t)
	registry := memory.NewRegistry()
	alice, _ := newMemoryController(t, registry)
	bob, _ := newMemoryController(t, registry)
	req.NoError(alice.Update(context.Background(), enabled("game-123", "Alice S.")))
	req.NoError(bob.Update(context.Background(), enabled("game-123", "Bob")))

	_, err := alice.SendMessage(context.Background(), "Hey Bob!")
	req.NoError(err)

	for _, c := range []*Controller{alice, bob} {
		messages := c.Messages()
		req.Len(messages, 1)
		req.Equal("Alice S.", messages[0].DisplayName)
	}

	_, err = bob.SendMessage(context.Background(), "Hi Alice!")
	req.NoError(err)

	for _, c := range []*Controller{alice, bob} {
		req.Equal([]string{"Hi Alice!", "Hey Bob!"}, texts(c.Messages()))
		req.Equal("Bob", c.Messages()[0].DisplayName)
	}
}

// Scenario: a late joiner gets the history newest first.
func TestScenario_Late_Joiner_Sees_History_Newest_First(t *testing.T) {
	req := require.New(t)
	registry := memory.NewRegistry()
	alice, aliceTransport := newMemoryController(t, registry)
	req.NoError(alice.Update(context.Background(), enabled("game-123", "Alice S.")))
	for _, text := range []string{"First", "Second", "Third"} {
		_, err := alice.SendMessage(context.Background(), text)
		req.NoError(err)
	}
	aliceTransport.Disconnect()

	bob, _ := newMemoryController(t, registry)
	req.NoError(bob.Update(context.Background(), enabled("game-123", "Bob")))

	req.Equal([]string{"Third", "Second", "First"}, texts(bob.Messages()))
}

// Scenario: channels never leak into each other.
func TestScenario_Channels_Are_Isolated(t *testing.T) {
	req := require.New(t)
	registry := memory.NewRegistry()
	alice, _ := newMemoryController(t, registry)
	bob, _ := newMemoryController(t, registry)
	req.NoError(alice.Update(context.Background(), enabled("game-1", "Alice S.")))
	req.NoError(bob.Update(context.Background(), enabled("game-2", "Bob")))

	_, err := alice.SendMessage(context.Background(), "in game-1")
	req.NoError(err)
	_, err = bob.SendMessage(context.Background(), "in game-2")
	req.NoError(err)

	req.Equal([]string{"in game-1"}, texts(alice.Messages()))
	req.Equal([]string{"in game-2"}, texts(bob.Messages()))
}

// Scenario: an error is surfaced and cleared by the next successful connect.
func TestScenario_Error_Is_Cleared_By_Reconnect(t *testing.T) {
	req := require.New(t)
	registry := memory.NewRegistry()
	c, tr := newMemoryController(t, registry)
	req.NoError(c.Update(context.Background(), enabled("game-123", "Alice S.")))

	tr.SimulateError("Connection lost")

	req.EqualError(c.Err(), "Connection lost")
	req.False(c.Connected())
	req.Equal(domain.StateError, c.State())

	req.NoError(c.Reconnect(context.Background()))

	req.NoError(c.Err())
	req.True(c.Connected())
	req.Equal(domain.StateConnected, c.State())
}

func TestController_Channel_Change_Switches_Conversation(t *testing.T) {
	req := require.New(t)
	registry := memory.NewRegistry()
	writer, _ := newMemoryController(t, registry)
	req.NoError(writer.Update(context.Background(), enabled("game-2", "Bob")))
	_, err := writer.SendMessage(context.Background(), "game-2 history")
	req.NoError(err)

	c, tr := newMemoryController(t, registry)
	req.NoError(c.Update(context.Background(), enabled("game-1", "Alice S.")))
	_, err = c.SendMessage(context.Background(), "game-1 chatter")
	req.NoError(err)

	// When the channel id changes
	req.NoError(c.Update(context.Background(), enabled("game-2", "Alice S.")))

	// Then only the new channel history is shown and the old subscription is gone
	req.Equal([]string{"game-2 history"}, texts(c.Messages()))
	req.Zero(registry.Subscribers("game-1"))
	req.True(tr.Connected())

	// And repeating the same params changes nothing
	req.NoError(c.Update(context.Background(), enabled("game-2", "Alice S.")))
	req.Equal(2, registry.Subscribers("game-2"))
}

func TestController_Reenabled_On_Injected_Transport_Restores_Connection_And_History(t *testing.T) {
	req := require.New(t)
	registry := memory.NewRegistry()
	c, tr := newMemoryController(t, registry)
	req.NoError(c.Update(context.Background(), enabled("game-123", "Alice S.")))
	_, err := c.SendMessage(context.Background(), "First")
	req.NoError(err)

	// When the consumer is disabled then enabled again with the same params
	req.NoError(c.Update(context.Background(), Params{ChannelID: "game-123", IdentityToken: "Alice S."}))
	req.Equal(domain.StateIdle, c.State())
	req.True(tr.Connected())
	req.NoError(c.Update(context.Background(), enabled("game-123", "Alice S.")))

	// Then the still connected transport is mirrored with its history
	view := c.View()
	req.True(view.Connected)
	req.Equal(domain.StateConnected, view.State)
	req.Equal([]string{"First"}, texts(view.Messages))
	req.Equal(1, registry.Subscribers("game-123"))

	// And live messages keep flowing once
	_, err = c.SendMessage(context.Background(), "Second")
	req.NoError(err)
	req.Equal([]string{"Second", "First"}, texts(c.Messages()))
}

func TestController_Reconnect_While_Connected_Keeps_State(t *testing.T) {
	req := require.New(t)
	registry := memory.NewRegistry()
	c, _ := newMemoryController(t, registry)
	req.NoError(c.Update(context.Background(), enabled("game-123", "Alice S.")))
	_, err := c.SendMessage(context.Background(), "First")
	req.NoError(err)

	// When an explicit reconnect hits a transport that never dropped
	req.NoError(c.Reconnect(context.Background()))

	// Then the session is connected again with the same history
	req.True(c.Connected())
	req.Equal(domain.StateConnected, c.State())
	req.Equal([]string{"First"}, texts(c.Messages()))
	req.Equal(1, registry.Subscribers("game-123"))
}
