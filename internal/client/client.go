// internal/client/client.go

// Package client implements the connection state machine of a game client:
// one WebSocket connection at a time, an explicit connection state, automatic
// reconnects with exponential backoff, and a keepalive ping loop.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/jpillora/backoff"
	"github.com/sirupsen/logrus"

	"github.com/avkotov/railways/internal/game"
	"github.com/avkotov/railways/internal/protocol"
)

// State is the client's connection state. Transitions are driven by handshake
// outcomes and read-loop errors, never by callers directly.
type State string

const (
	StateNotConnected  State = "notConnected"
	StateConnected     State = "connected"
	StateReconnecting  State = "reconnecting"
	StateCannotConnect State = "cannotConnect"
	StateCannotJoin    State = "cannotJoin"
	StateDisconnected  State = "disconnected"
)

const (
	// MaxRetries is how many reconnect attempts are made before giving up.
	MaxRetries = 5
	// pingPeriod is the keepalive interval on an established connection.
	pingPeriod = 10 * time.Second
	// dialTimeout bounds one dial plus handshake attempt.
	dialTimeout = 10 * time.Second
)

// ErrNotConnected is returned by Send when there is no live connection.
var ErrNotConnected = errors.New("client: not connected")

// Event is one notification to the client's owner: a state transition, a
// received response frame, or both.
type Event struct {
	State    State
	Response *protocol.Response
}

// Conn is the minimal connection surface the state machine needs. Production
// code uses WebSocket connections; tests substitute fakes.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(reason string)
}

// Dialer opens one connection to the server. Abstracted for tests.
type Dialer func(ctx context.Context, url string) (Conn, error)

// WebSocketDialer dials a real WebSocket with the game subprotocol.
func WebSocketDialer(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{protocol.Subprotocol},
	})
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: c}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close(reason string) {
	c.conn.Close(websocket.StatusNormalClosure, reason)
}

// Client is the connection state machine. Events (state changes and response
// frames) are delivered on the Events channel in arrival order.
type Client struct {
	url    string
	dial   Dialer
	logger *logrus.Logger

	// Events carries every state transition and received frame. The owner
	// must drain it.
	Events chan Event

	mu         sync.Mutex
	state      State
	conn       Conn
	gameID     game.GameID
	gameMap    *game.Map
	playerName string
	observer   bool
	closed     bool
	connected  chan struct{} // closed on the next successful handshake

	cancelLoop context.CancelFunc
}

// New builds a client for the given server URL.
func New(url string, logger *logrus.Logger) *Client {
	return NewWithDialer(url, WebSocketDialer, logger)
}

// NewWithDialer builds a client with a custom dialer, for tests.
func NewWithDialer(url string, dial Dialer, logger *logrus.Logger) *Client {
	return &Client{
		url:       url,
		dial:      dial,
		logger:    logger,
		Events:    make(chan Event, 64),
		state:     StateNotConnected,
		connected: make(chan struct{}),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// GameID returns the id of the joined game, once connected.
func (c *Client) GameID() game.GameID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gameID
}

// Map returns the game map received in the handshake, once connected.
func (c *Client) Map() *game.Map {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gameMap
}

// NextConnected returns a channel closed when the next connection is
// established. Callers that need to wait out a reconnect grab the channel
// first, then block on it.
func (c *Client) NextConnected() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// StartGame opens a connection and starts a new game on the server.
func (c *Client) StartGame(ctx context.Context, playerName string, color game.PlayerColor, mapName string, carsCount int, scoreLive bool) error {
	return c.connect(ctx, protocol.ConnectRequest{
		Type:       protocol.ConnectStart,
		PlayerName: playerName,
		Color:      color,
		MapName:    mapName,
		CarsCount:  carsCount,
		ScoreLive:  scoreLive,
	})
}

// JoinGame opens a connection and joins an existing game.
func (c *Client) JoinGame(ctx context.Context, id game.GameID, playerName string, color game.PlayerColor) error {
	return c.connect(ctx, protocol.ConnectRequest{
		Type:       protocol.ConnectJoin,
		GameID:     id,
		PlayerName: playerName,
		Color:      color,
	})
}

// Observe opens a connection as an observer of an existing game.
func (c *Client) Observe(ctx context.Context, id game.GameID) error {
	return c.connect(ctx, protocol.ConnectRequest{
		Type:   protocol.ConnectObserve,
		GameID: id,
	})
}

// Send encodes and sends one steady-state request on the live connection.
func (c *Client) Send(req game.Request) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()
	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}
	data, err := protocol.EncodeRequest(req)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	return conn.Write(ctx, data)
}

// Close leaves the game and shuts the state machine down.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	cancel := c.cancelLoop
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close("client closed")
	}
	c.setState(StateDisconnected)
}

// connect performs the initial handshake and starts the read loop. A
// rejection with a handshake reason lands in CannotJoin; a transport failure
// lands in CannotConnect.
func (c *Client) connect(ctx context.Context, req protocol.ConnectRequest) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateReconnecting {
		c.mu.Unlock()
		return fmt.Errorf("client: already %s", c.state)
	}
	c.playerName = req.PlayerName
	c.observer = req.Type == protocol.ConnectObserve
	c.mu.Unlock()

	resp, conn, err := c.handshake(ctx, req)
	if err != nil {
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			c.setState(StateCannotJoin)
		} else {
			c.setState(StateCannotConnect)
		}
		return err
	}

	c.adopt(resp, conn)
	return nil
}

// RejectedError is a handshake answered with a failure response, as opposed
// to a transport-level failure.
type RejectedError struct {
	Reason protocol.FailureReason
}

func (e *RejectedError) Error() string {
	return "client: connect rejected: " + string(e.Reason)
}

func (c *Client) handshake(ctx context.Context, req protocol.ConnectRequest) (protocol.ConnectResponse, Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, err := c.dial(dialCtx, c.url)
	if err != nil {
		return protocol.ConnectResponse{}, nil, err
	}
	data, err := protocol.EncodeConnectRequest(req)
	if err != nil {
		conn.Close("encode failed")
		return protocol.ConnectResponse{}, nil, err
	}
	if err := conn.Write(dialCtx, data); err != nil {
		conn.Close("write failed")
		return protocol.ConnectResponse{}, nil, err
	}
	frame, err := conn.Read(dialCtx)
	if err != nil {
		conn.Close("read failed")
		return protocol.ConnectResponse{}, nil, err
	}
	resp, err := protocol.DecodeConnectResponse(frame)
	if err != nil {
		conn.Close("bad handshake response")
		return protocol.ConnectResponse{}, nil, err
	}
	if resp.Type == protocol.ConnectFailed {
		conn.Close(string(resp.Reason))
		return protocol.ConnectResponse{}, nil, &RejectedError{Reason: resp.Reason}
	}
	return resp, conn, nil
}

// adopt installs a freshly handshaken connection, resolves the pending
// connected handle and starts the read and ping loops.
func (c *Client) adopt(resp protocol.ConnectResponse, conn Conn) {
	loopCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.cancelLoop != nil {
		c.cancelLoop()
	}
	c.conn = conn
	c.gameID = resp.SessionID
	if resp.Map != nil {
		c.gameMap = resp.Map.Build()
	}
	c.state = StateConnected
	c.cancelLoop = cancel
	close(c.connected)
	c.connected = make(chan struct{})
	c.mu.Unlock()

	c.emit(Event{State: StateConnected})
	go c.readLoop(loopCtx, conn)
	go c.pingLoop(loopCtx, conn)
}

func (c *Client) readLoop(ctx context.Context, conn Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			c.onConnectionLost(ctx, conn, err)
			return
		}
		if string(data) == protocol.Pong {
			continue
		}
		resp, err := protocol.DecodeResponse(data)
		if err != nil {
			c.logger.Warnf("dropping malformed frame: %v", err)
			continue
		}
		c.emit(Event{State: StateConnected, Response: &resp})
	}
}

func (c *Client) pingLoop(ctx context.Context, conn Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			writeCtx, cancel := context.WithTimeout(ctx, dialTimeout)
			err := conn.Write(writeCtx, []byte(protocol.Ping))
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// onConnectionLost drives the reconnect loop: exponential backoff, at most
// MaxRetries attempts, then CannotConnect. Observers re-observe; players
// reconnect into their seat.
func (c *Client) onConnectionLost(ctx context.Context, conn Conn, cause error) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateReconnecting
	req := protocol.ConnectRequest{
		Type:       protocol.ConnectReconnect,
		GameID:     c.gameID,
		PlayerName: c.playerName,
	}
	if c.observer {
		req = protocol.ConnectRequest{
			Type:   protocol.ConnectObserve,
			GameID: c.gameID,
		}
	}
	c.mu.Unlock()

	conn.Close("connection lost")
	c.logger.Warnf("connection lost: %v, reconnecting", cause)
	c.emit(Event{State: StateReconnecting})

	b := &backoff.Backoff{
		Min:    250 * time.Millisecond,
		Max:    10 * time.Second,
		Factor: 2,
		Jitter: true,
	}
	for attempt := 0; attempt < MaxRetries; attempt++ {
		select {
		case <-time.After(b.Duration()):
		case <-ctx.Done():
			return
		}
		if c.State() != StateReconnecting {
			return
		}
		resp, newConn, err := c.handshake(context.Background(), req)
		if err == nil {
			c.adopt(resp, newConn)
			return
		}
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			// The seat is gone or taken; retrying will not help.
			c.logger.Warnf("reconnect rejected: %v", err)
			c.setState(StateCannotJoin)
			return
		}
		c.logger.Debugf("reconnect attempt %d failed: %v", attempt+1, err)
	}
	c.setState(StateCannotConnect)
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()
	c.emit(Event{State: state})
}

func (c *Client) emit(ev Event) {
	select {
	case c.Events <- ev:
	default:
		// The owner stopped draining; drop rather than deadlock the loops.
		c.logger.Warn("event channel full, dropping event")
	}
}
