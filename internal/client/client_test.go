// internal/client/client_test.go
package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avkotov/railways/internal/game"
	"github.com/avkotov/railways/internal/protocol"
)

// fakeConn is a scripted connection: frames pushed into in come out of Read,
// writes are recorded, and closing in simulates the server dropping us.
type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn(frames ...[]byte) *fakeConn {
	f := &fakeConn{
		in:     make(chan []byte, 16),
		closed: make(chan struct{}),
	}
	for _, frame := range frames {
		f.in <- frame
	}
	return f
}

func (f *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-f.in:
		if !ok {
			return nil, errors.New("connection dropped")
		}
		return data, nil
	case <-f.closed:
		return nil, errors.New("connection closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) Write(ctx context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeConn) Close(reason string) {
	f.once.Do(func() { close(f.closed) })
}

func (f *fakeConn) drop() {
	close(f.in)
}

func (f *fakeConn) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.writes...)
}

// scriptedDialer hands out prepared outcomes in order.
type scriptedDialer struct {
	mu       sync.Mutex
	outcomes []func() (Conn, error)
	dials    int
}

func (d *scriptedDialer) dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dials >= len(d.outcomes) {
		return nil, errors.New("no more scripted dials")
	}
	outcome := d.outcomes[d.dials]
	d.dials++
	return outcome()
}

func connectedFrame(t *testing.T, id game.GameID) []byte {
	t.Helper()
	data, err := protocol.EncodeConnectResponse(protocol.ConnectResponse{
		Type:      protocol.ConnectedAsPlayer,
		SessionID: id,
	})
	require.NoError(t, err)
	return data
}

func failureFrame(t *testing.T, reason protocol.FailureReason) []byte {
	t.Helper()
	data, err := protocol.EncodeConnectResponse(protocol.ConnectResponse{
		Type:   protocol.ConnectFailed,
		Reason: reason,
	})
	require.NoError(t, err)
	return data
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func nextEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev := <-c.Events:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for client event")
		return Event{}
	}
}

func waitForState(t *testing.T, c *Client, want State) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-c.Events:
			if ev.Response == nil && ev.State == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s, current %s", want, c.State())
		}
	}
}

func TestJoinEstablishesConnection(t *testing.T) {
	conn := newFakeConn(connectedFrame(t, "g1"))
	dialer := &scriptedDialer{outcomes: []func() (Conn, error){
		func() (Conn, error) { return conn, nil },
	}}
	c := NewWithDialer("ws://server/ws", dialer.dial, quietLogger())
	defer c.Close()

	require.NoError(t, c.JoinGame(context.Background(), "g1", "alice", "red"))
	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, game.GameID("g1"), c.GameID())

	ev := nextEvent(t, c)
	assert.Equal(t, StateConnected, ev.State)
	assert.Nil(t, ev.Response)

	// The handshake frame carried the join.
	frames := conn.sentFrames()
	require.NotEmpty(t, frames)
	req, err := protocol.DecodeConnectRequest(frames[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.ConnectJoin, req.Type)
	assert.Equal(t, "alice", req.PlayerName)
}

func TestRejectedJoin(t *testing.T) {
	conn := newFakeConn(failureFrame(t, protocol.NameTaken))
	dialer := &scriptedDialer{outcomes: []func() (Conn, error){
		func() (Conn, error) { return conn, nil },
	}}
	c := NewWithDialer("ws://server/ws", dialer.dial, quietLogger())
	defer c.Close()

	err := c.JoinGame(context.Background(), "g1", "alice", "red")
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, protocol.NameTaken, rejected.Reason)
	assert.Equal(t, StateCannotJoin, c.State())
}

func TestDialFailure(t *testing.T) {
	dialer := &scriptedDialer{outcomes: []func() (Conn, error){
		func() (Conn, error) { return nil, errors.New("connection refused") },
	}}
	c := NewWithDialer("ws://server/ws", dialer.dial, quietLogger())
	defer c.Close()

	err := c.JoinGame(context.Background(), "g1", "alice", "red")
	require.Error(t, err)
	assert.Equal(t, StateCannotConnect, c.State())
}

func TestResponsesSurfaceAsEvents(t *testing.T) {
	conn := newFakeConn(connectedFrame(t, "g1"))
	dialer := &scriptedDialer{outcomes: []func() (Conn, error){
		func() (Conn, error) { return conn, nil },
	}}
	c := NewWithDialer("ws://server/ws", dialer.dial, quietLogger())
	defer c.Close()
	require.NoError(t, c.JoinGame(context.Background(), "g1", "alice", "red"))
	nextEvent(t, c) // connected

	frame, err := protocol.EncodeResponse(protocol.ChatResponse("bob", "hi"))
	require.NoError(t, err)
	conn.in <- frame

	ev := nextEvent(t, c)
	require.NotNil(t, ev.Response)
	assert.Equal(t, protocol.RespMessage, ev.Response.Type)
	assert.Equal(t, "bob", ev.Response.From)
}

func TestReconnectAfterDrop(t *testing.T) {
	conn1 := newFakeConn(connectedFrame(t, "g1"))
	conn2 := newFakeConn(connectedFrame(t, "g1"))
	dialer := &scriptedDialer{outcomes: []func() (Conn, error){
		func() (Conn, error) { return conn1, nil },
		func() (Conn, error) { return nil, errors.New("connection refused") },
		func() (Conn, error) { return conn2, nil },
	}}
	c := NewWithDialer("ws://server/ws", dialer.dial, quietLogger())
	defer c.Close()
	require.NoError(t, c.JoinGame(context.Background(), "g1", "alice", "red"))
	nextEvent(t, c) // connected

	reconnected := c.NextConnected()
	conn1.drop()

	waitForState(t, c, StateReconnecting)
	waitForState(t, c, StateConnected)
	select {
	case <-reconnected:
	case <-time.After(time.Second):
		t.Fatal("connected handle was not resolved")
	}

	// The second successful dial handshook as a reconnect into the same seat.
	frames := conn2.sentFrames()
	require.NotEmpty(t, frames)
	req, err := protocol.DecodeConnectRequest(frames[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.ConnectReconnect, req.Type)
	assert.Equal(t, game.GameID("g1"), req.GameID)
	assert.Equal(t, "alice", req.PlayerName)
}

func TestReconnectRejectionStopsRetrying(t *testing.T) {
	conn1 := newFakeConn(connectedFrame(t, "g1"))
	conn2 := newFakeConn(failureFrame(t, protocol.NameTaken))
	dialer := &scriptedDialer{outcomes: []func() (Conn, error){
		func() (Conn, error) { return conn1, nil },
		func() (Conn, error) { return conn2, nil },
	}}
	c := NewWithDialer("ws://server/ws", dialer.dial, quietLogger())
	defer c.Close()
	require.NoError(t, c.JoinGame(context.Background(), "g1", "alice", "red"))
	nextEvent(t, c) // connected

	conn1.drop()
	waitForState(t, c, StateReconnecting)
	waitForState(t, c, StateCannotJoin)

	dialer.mu.Lock()
	dials := dialer.dials
	dialer.mu.Unlock()
	assert.Equal(t, 2, dials, "a rejected reconnect is not retried")
}

func TestSendRequiresConnection(t *testing.T) {
	c := NewWithDialer("ws://server/ws", (&scriptedDialer{}).dial, quietLogger())
	err := c.Send(game.PickTicketsRequest{})
	assert.ErrorIs(t, err, ErrNotConnected)
}
