// internal/protocol/protocol.go

// Package protocol defines the wire values exchanged between client and
// server: the connection handshake, the steady-state request and response
// frames, and the keepalive sentinels. Frames are JSON envelopes with a type
// tag; the encoding is negotiated by WebSocket subprotocol name.
package protocol

import "github.com/avkotov/railways/internal/game"

// Subprotocol is the WebSocket subprotocol for JSON frames.
const Subprotocol = "ttr-json"

// Ping and Pong are the keepalive text sentinels. They are exchanged outside
// the JSON envelope and consume no request queue slot.
const (
	Ping = "ping"
	Pong = "pong"
)

// Handshake request types.
const (
	ConnectStart     = "start"
	ConnectJoin      = "join"
	ConnectReconnect = "reconnect"
	ConnectObserve   = "observe"
)

// ConnectRequest is the first frame on every connection. Exactly one is read
// before any other traffic. GameID addresses an existing game for join,
// reconnect and observe; a start names no id and gets a generated one back.
type ConnectRequest struct {
	Type       string           `json:"type"`
	GameID     game.GameID      `json:"gameId,omitempty"`
	PlayerName string           `json:"playerName,omitempty"`
	Color      game.PlayerColor `json:"color,omitempty"`
	MapName    string           `json:"mapName,omitempty"`
	CarsCount  int              `json:"carsCount,omitempty"`
	ScoreLive  bool             `json:"scoreLive,omitempty"`
}

// FailureReason explains a rejected handshake.
type FailureReason string

const (
	GameIDTaken   FailureReason = "gameIdTaken"
	NoSuchGame    FailureReason = "noSuchGame"
	NoSuchPlayer  FailureReason = "noSuchPlayer"
	NameTaken     FailureReason = "nameTaken"
	ColorTaken    FailureReason = "colorTaken"
	CannotConnect FailureReason = "cannotConnect"
)

// Handshake response types.
const (
	ConnectedAsPlayer   = "connected"
	ConnectedAsObserver = "observer"
	ConnectFailed       = "failure"
)

// ConnectResponse is the second frame, sent exactly once before any other
// traffic on the connection.
type ConnectResponse struct {
	Type         string                `json:"type"`
	SessionID    game.GameID           `json:"sessionId,omitempty"`
	Map          *game.Map             `json:"map,omitempty"`
	View         *game.PlayerStateView `json:"view,omitempty"`
	ObserverView *game.ObserverView    `json:"observerView,omitempty"`
	Reason       FailureReason         `json:"reason,omitempty"`
}
