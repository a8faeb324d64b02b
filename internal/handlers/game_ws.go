// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/avkotov/railways/internal/game"
	"github.com/avkotov/railways/internal/middleware"
	"github.com/avkotov/railways/internal/protocol"
	"github.com/avkotov/railways/internal/session"
)

const (
	// handshakeTimeout bounds how long a fresh connection may take to send
	// its connect request.
	handshakeTimeout = 30 * time.Second
	// writeTimeout bounds a single outbound frame. A client that cannot take
	// a frame within it is treated as dead.
	writeTimeout = 5 * time.Second
)

// GameWSHandler upgrades the HTTP connection to WebSocket, runs the connect
// handshake (start / join / reconnect / observe) and then pumps steady-state
// requests into the game session until the connection dies.
func GameWSHandler(logger *logrus.Logger, store *session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{protocol.Subprotocol},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "internal error during handler exit")

		if c.Subprotocol() != protocol.Subprotocol {
			logger.Warnf("Client connected with invalid subprotocol: %q", c.Subprotocol())
			c.Close(BadSubprotocolError, "client must use the '"+protocol.Subprotocol+"' subprotocol")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		handshakeCtx, cancel := context.WithTimeout(r.Context(), handshakeTimeout)
		connect, err := readConnectRequest(handshakeCtx, c)
		cancel()
		if err != nil {
			logger.Warnf("Handshake failed from %s: %v", r.RemoteAddr, err)
			c.Close(BadHandshakeError, "expected a connect request")
			return
		}

		t := &wsTransport{conn: c}
		switch connect.Type {
		case protocol.ConnectObserve:
			err = serveObserver(r.Context(), c, t, logger, store, connect)
		default:
			err = servePlayer(r.Context(), c, t, logger, store, connect)
		}
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, err)
	}
}

// servePlayer resolves or starts the game, seats the player and runs the read
// loop. The connection is registered with the session only after the join or
// reconnect mutation has been applied, so broadcasts never race the handshake.
func servePlayer(ctx context.Context, c *websocket.Conn, t *wsTransport, logger *logrus.Logger, store *session.Store, connect protocol.ConnectRequest) error {
	var (
		sess *session.Session
		view game.PlayerStateView
		err  error
	)
	switch connect.Type {
	case protocol.ConnectStart:
		sess, err = store.StartGame(ctx, connect.PlayerName, connect.MapName, connect.CarsCount, connect.ScoreLive)
		if err == nil {
			view, err = sess.JoinPlayer(ctx, connect.PlayerName, connect.Color, t)
		}
	case protocol.ConnectJoin:
		sess, err = store.Resolve(ctx, connect.GameID)
		if err == nil {
			view, err = sess.JoinPlayer(ctx, connect.PlayerName, connect.Color, t)
		}
	case protocol.ConnectReconnect:
		sess, err = store.Resolve(ctx, connect.GameID)
		if err == nil {
			view, err = sess.ReconnectPlayer(ctx, connect.PlayerName, t)
		}
	default:
		err = errors.New("unsupported connect type " + connect.Type)
	}
	if err != nil {
		reason := failureReason(err)
		logger.WithFields(logrus.Fields{
			"game":   connect.GameID,
			"player": connect.PlayerName,
			"reason": reason,
		}).Infof("connect rejected: %v", err)
		sendConnectResponse(c, protocol.ConnectResponse{Type: protocol.ConnectFailed, Reason: reason})
		c.Close(ConnectRejectedError, string(reason))
		return nil
	}

	if err := sendConnectResponse(c, protocol.ConnectResponse{
		Type:      protocol.ConnectedAsPlayer,
		SessionID: sess.ID(),
		Map:       sess.Map(),
		View:      &view,
	}); err != nil {
		sess.Disconnect(connect.PlayerName, t)
		return err
	}

	logger.WithFields(logrus.Fields{
		"game":   sess.ID(),
		"player": connect.PlayerName,
	}).Info("player connected")

	err = readPlayerRequests(ctx, c, sess, connect.PlayerName, logger)
	sess.Disconnect(connect.PlayerName, t)
	return err
}

// serveObserver registers the connection as an observer. Observers send no
// game requests, only keepalive pings.
func serveObserver(ctx context.Context, c *websocket.Conn, t *wsTransport, logger *logrus.Logger, store *session.Store, connect protocol.ConnectRequest) error {
	sess, err := store.Resolve(ctx, connect.GameID)
	if err != nil {
		reason := failureReason(err)
		sendConnectResponse(c, protocol.ConnectResponse{Type: protocol.ConnectFailed, Reason: reason})
		c.Close(ConnectRejectedError, string(reason))
		return nil
	}
	view := sess.Observe(t)
	if err := sendConnectResponse(c, protocol.ConnectResponse{
		Type:         protocol.ConnectedAsObserver,
		SessionID:    sess.ID(),
		Map:          sess.Map(),
		ObserverView: &view,
	}); err != nil {
		sess.RemoveObserver(t)
		return err
	}
	logger.WithField("game", sess.ID()).Info("observer connected")

	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			sess.RemoveObserver(t)
			return readLoopError(err)
		}
		if string(data) == protocol.Ping {
			writePong(c)
			continue
		}
		// Observers have nothing else to say.
		logger.Debugf("ignoring frame from observer of game %s", sess.ID())
	}
}

// readPlayerRequests pumps decoded requests into the session until the
// connection closes. A frame that fails to decode is a protocol violation and
// tears the connection down; the session then marks the seat away.
func readPlayerRequests(ctx context.Context, c *websocket.Conn, sess *session.Session, player string, logger *logrus.Logger) error {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			return readLoopError(err)
		}
		if msgType != websocket.MessageText {
			logger.Warnf("ignoring non-text frame from player %s in game %s", player, sess.ID())
			continue
		}
		if string(data) == protocol.Ping {
			writePong(c)
			continue
		}
		req, err := protocol.DecodeRequest(data)
		if err != nil {
			logger.Warnf("protocol violation from player %s in game %s: %v", player, sess.ID(), err)
			c.Close(ProtocolViolationError, "malformed request frame")
			return err
		}
		sess.Process(player, req)
		if _, left := req.(game.LeaveRequest); left {
			// An explicit leave ends the connection; the caller unregisters it.
			c.Close(websocket.StatusNormalClosure, "exit game")
			return nil
		}
	}
}

// wsTransport adapts one WebSocket connection to the session.Transport
// interface.
type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Send(resp protocol.Response) error {
	data, err := protocol.EncodeResponse(resp)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Ping(ctx context.Context) error {
	return t.conn.Ping(ctx)
}

func (t *wsTransport) Close(reason string) {
	t.conn.Close(websocket.StatusNormalClosure, reason)
}

func readConnectRequest(ctx context.Context, c *websocket.Conn) (protocol.ConnectRequest, error) {
	msgType, data, err := c.Read(ctx)
	if err != nil {
		return protocol.ConnectRequest{}, err
	}
	if msgType != websocket.MessageText {
		return protocol.ConnectRequest{}, errors.New("handshake frame must be text")
	}
	return protocol.DecodeConnectRequest(data)
}

func sendConnectResponse(c *websocket.Conn, resp protocol.ConnectResponse) error {
	data, err := protocol.EncodeConnectResponse(resp)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageText, data)
}

func writePong(c *websocket.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	c.Write(ctx, websocket.MessageText, []byte(protocol.Pong))
}

// failureReason maps handshake errors to the wire-level rejection reasons.
func failureReason(err error) protocol.FailureReason {
	switch {
	case errors.Is(err, session.ErrNoSuchGame):
		return protocol.NoSuchGame
	case errors.Is(err, session.ErrNoSuchPlayer):
		return protocol.NoSuchPlayer
	case errors.Is(err, session.ErrGameIDTaken):
		return protocol.GameIDTaken
	case errors.Is(err, game.ErrNameTaken):
		return protocol.NameTaken
	case errors.Is(err, game.ErrColorTaken):
		return protocol.ColorTaken
	default:
		return protocol.CannotConnect
	}
}

// readLoopError normalizes expected closure errors to nil so they are not
// logged as failures.
func readLoopError(err error) error {
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		return nil
	}
	if strings.Contains(err.Error(), "context canceled") {
		return nil
	}
	return err
}
