// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the game handler. These provide more
// specific reasons for closure than standard codes.
const (
	BadSubprotocolError    websocket.StatusCode = 3000 // Client connected with an unsupported subprotocol.
	BadHandshakeError      websocket.StatusCode = 3001 // First frame was not a valid connect request.
	ProtocolViolationError websocket.StatusCode = 3002 // Steady-state frame could not be decoded.
	ConnectRejectedError   websocket.StatusCode = 3003 // Handshake was answered with a failure response.
)
