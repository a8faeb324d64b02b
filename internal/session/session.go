// internal/session/session.go

// Package session runs one goroutine per game that serializes every mutating
// request into a total order, fans the resulting state out to the connected
// clients, and persists each snapshot best-effort.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/avkotov/railways/internal/cache"
	"github.com/avkotov/railways/internal/game"
	"github.com/avkotov/railways/internal/protocol"
)

// evictionGrace is how long an abandoned game stays in memory with zero
// connections before it is dropped. A saved copy in Redis survives longer.
const evictionGrace = 5 * time.Minute

// queueCapacity bounds the request queue of one game. Senders block when the
// actor falls behind, which back-pressures the read loops.
const queueCapacity = 16

// ErrNoSuchPlayer is returned on reconnect attempts for a seat that was never
// taken.
var ErrNoSuchPlayer = errors.New("session: no such player in this game")

// queueItem is one unit of work for the session actor. A non-nil reply turns
// the item into a handshake barrier: the enqueuer blocks until the mutation
// has been applied. Handshake items also carry the connection to bind to the
// seat; the actor claims the registry slot in queue order, so of two racing
// handshakes for one seat exactly one wins and the other fails.
type queueItem struct {
	from      string
	req       game.Request
	transport Transport
	reply     chan error
}

// Session is the actor owning one game. All state mutations flow through its
// queue and are applied by a single goroutine, so no two requests ever
// interleave and every client observes the same order of snapshots.
type Session struct {
	id       game.GameID
	engine   *game.Engine
	registry *Registry
	storage  *cache.Storage
	logger   *logrus.Logger

	queue chan queueItem
	done  chan struct{}

	// stateCh hands the canonical snapshot back and forth with the actor
	// goroutine; reads take the value and put it back.
	stateCh chan game.State

	// onEmpty is called when the session has had zero connections for the
	// whole eviction grace period. Assigned by the store that owns the session.
	onEmpty func(game.GameID)

	grace      time.Duration
	evictMu    sync.Mutex
	evictTimer *time.Timer
}

// newSession wires a session around an engine and an initial state and starts
// its actor goroutine.
func newSession(id game.GameID, engine *game.Engine, state game.State, storage *cache.Storage, logger *logrus.Logger, grace time.Duration, onEmpty func(game.GameID)) *Session {
	s := &Session{
		id:       id,
		engine:   engine,
		registry: NewRegistry(),
		storage:  storage,
		logger:   logger,
		queue:    make(chan queueItem, queueCapacity),
		done:     make(chan struct{}),
		stateCh:  make(chan game.State, 1),
		onEmpty:  onEmpty,
		grace:    grace,
	}
	s.stateCh <- state
	go s.run()
	// A freshly created session has no connections yet; if nobody completes a
	// handshake it goes away on its own.
	s.maybeScheduleEviction()
	return s
}

// ID returns the game id the session coordinates.
func (s *Session) ID() game.GameID { return s.id }

// Map returns the game map.
func (s *Session) Map() *game.Map { return s.engine.Map() }

// State returns the current snapshot. Safe from any goroutine.
func (s *Session) State() game.State {
	state := <-s.stateCh
	s.stateCh <- state
	return state
}

func (s *Session) setState(state game.State) {
	<-s.stateCh
	s.stateCh <- state
}

// JoinPlayer seats a new player (or reclaims an abandoned seat) and binds the
// connection to it. It blocks until the join has been applied in queue order,
// so two racing joins with the same name resolve to exactly one winner.
func (s *Session) JoinPlayer(ctx context.Context, name string, color game.PlayerColor, t Transport) (game.PlayerStateView, error) {
	if err := s.barrier(ctx, name, game.JoinRequest{Color: color}, t); err != nil {
		return game.PlayerStateView{}, err
	}
	state := s.State()
	return state.ViewFor(name), nil
}

// ReconnectPlayer rebinds an existing seat to a new connection. If another
// live connection still holds the seat it is pinged first; only a dead one is
// displaced, otherwise the reconnect is rejected as a name conflict. The seat
// itself is claimed in queue order, so of two racing reconnects that both
// found the holder dead only one wins.
func (s *Session) ReconnectPlayer(ctx context.Context, name string, t Transport) (game.PlayerStateView, error) {
	state := s.State()
	if state.PlayerByName(name) == nil {
		return game.PlayerStateView{}, ErrNoSuchPlayer
	}
	if old := s.registry.PlayerTransport(name); old != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := old.Ping(pingCtx)
		cancel()
		if err == nil {
			return game.PlayerStateView{}, game.ErrNameTaken
		}
		s.registry.RemovePlayer(name, old)
		old.Close("replaced by a new connection")
	}
	if err := s.barrier(ctx, name, game.ReconnectRequest{}, t); err != nil {
		return game.PlayerStateView{}, err
	}
	state = s.State()
	return state.ViewFor(name), nil
}

// Observe registers an observer connection and returns the current shared view.
func (s *Session) Observe(t Transport) game.ObserverView {
	s.registry.AddObserver(t)
	s.cancelEviction()
	state := s.State()
	return state.ViewForObserver()
}

// Process enqueues one steady-state request from the named player. Rejections
// are reported back on the player's own connection, not here.
func (s *Session) Process(from string, req game.Request) {
	select {
	case s.queue <- queueItem{from: from, req: req}:
	case <-s.done:
	}
}

// Disconnect is called by the read loop when a player's connection dies or
// closes. The seat is marked away via a synthesized leave, in queue order like
// any other request.
func (s *Session) Disconnect(name string, t Transport) {
	if s.registry.RemovePlayer(name, t) {
		s.Process(name, game.LeaveRequest{})
	}
	s.maybeScheduleEviction()
}

// RemoveObserver unregisters an observer connection.
func (s *Session) RemoveObserver(t Transport) {
	s.registry.RemoveObserver(t)
	s.maybeScheduleEviction()
}

// Close stops the actor goroutine and drops every connection.
func (s *Session) Close() {
	select {
	case <-s.done:
		return
	default:
	}
	close(s.done)
	s.registry.ForEachPlayer(func(name string, t Transport) {
		t.Close("game session closed")
	})
	s.registry.ForEachObserver(func(t Transport) {
		t.Close("game session closed")
	})
}

func (s *Session) barrier(ctx context.Context, from string, req game.Request, t Transport) error {
	reply := make(chan error, 1)
	select {
	case s.queue <- queueItem{from: from, req: req, transport: t, reply: reply}:
	case <-s.done:
		return errors.New("session: game session closed")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the actor loop: the only goroutine that commits state.
func (s *Session) run() {
	for {
		select {
		case item := <-s.queue:
			s.processSafe(item)
		case <-s.done:
			return
		}
	}
}

// processSafe keeps the actor alive across a panicking apply step. The state
// snapshot is untouched on panic, so later requests stay consistent.
func (s *Session) processSafe(item queueItem) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"game":   s.id,
				"player": item.from,
			}).Errorf("panic while processing request: %v", r)
			if item.reply != nil {
				item.reply <- errors.New("session: internal server error")
			} else if t := s.registry.PlayerTransport(item.from); t != nil {
				t.Send(protocol.ErrorResponse("Server error"))
			}
		}
	}()
	s.process(item)
}

func (s *Session) process(item queueItem) {
	// Chat never touches game state, it just fans out.
	if chat, ok := item.req.(game.ChatRequest); ok {
		s.fanOut(protocol.ChatResponse(item.from, chat.Message))
		if item.reply != nil {
			item.reply <- nil
		}
		return
	}

	// A handshake item claims the seat's registry slot here, in queue order.
	// A live holder at this point means a concurrent handshake already won.
	if item.transport != nil {
		if existing := s.registry.PlayerTransport(item.from); existing != nil && existing != item.transport {
			item.reply <- game.ErrNameTaken
			return
		}
	}

	state := s.State()
	next, changed, err := s.engine.Apply(state, item.req, item.from, s.registry.IsAway)
	if err != nil {
		if item.reply != nil {
			item.reply <- err
			return
		}
		// Rule violations carry their reason to the requester; anything else
		// is a programming error and is reported generically.
		reason := "Server error"
		var invalid *game.InvalidActionError
		if errors.As(err, &invalid) {
			reason = invalid.Reason
			s.logger.WithFields(logrus.Fields{
				"game":   s.id,
				"player": item.from,
			}).Debugf("request rejected: %v", err)
		} else {
			s.logger.WithFields(logrus.Fields{
				"game":   s.id,
				"player": item.from,
			}).Errorf("unexpected engine error: %v", err)
		}
		if t := s.registry.PlayerTransport(item.from); t != nil {
			if err := t.Send(protocol.ErrorResponse(reason)); err != nil {
				s.dropPlayer(item.from, t)
			}
		}
		return
	}
	if changed {
		s.setState(next)
		s.save(next)
		// The handshake connection is registered only after this broadcast,
		// so the join mutation never races the joiner's own handshake frame.
		s.broadcastState(next, game.ActionFor(item.req, item.from))
	}
	if item.transport != nil {
		s.registry.SetPlayer(item.from, item.transport)
		s.cancelEviction()
	}
	if item.reply != nil {
		item.reply <- nil
	}
}

// save persists the snapshot best-effort; a failing store never blocks the game.
func (s *Session) save(state game.State) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.storage.SaveGame(ctx, state); err != nil {
		s.logger.WithField("game", s.id).Warnf("failed to save game state: %v", err)
	}
}

// broadcastState sends each player their personalized view (or the final
// results once the game has ended) and observers the shared view. Connections
// that fail to take the frame are dropped and their seats marked away.
func (s *Session) broadcastState(state game.State, action *game.Action) {
	ended := state.Ended()
	var results []game.PlayerResult
	if ended {
		results = s.engine.FinalResults(state)
	}

	type deadConn struct {
		name string
		t    Transport
	}
	var dead []deadConn
	s.registry.ForEachPlayer(func(name string, t Transport) {
		var resp protocol.Response
		if ended {
			resp = protocol.EndResponse(results, action)
		} else {
			resp = protocol.StateResponse(state.ViewFor(name), action)
		}
		if err := t.Send(resp); err != nil {
			dead = append(dead, deadConn{name: name, t: t})
		}
	})
	s.registry.ForEachObserver(func(t Transport) {
		var resp protocol.Response
		if ended {
			resp = protocol.EndResponse(results, action)
		} else {
			resp = protocol.ObserverStateResponse(state.ViewForObserver(), action)
		}
		if err := t.Send(resp); err != nil {
			s.registry.RemoveObserver(t)
			t.Close("send failed")
		}
	})
	for _, d := range dead {
		s.dropPlayer(d.name, d.t)
	}
}

// dropPlayer removes a connection that failed a send and applies the
// synthesized leave inline, in actor context.
func (s *Session) dropPlayer(name string, t Transport) {
	if !s.registry.RemovePlayer(name, t) {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"game":   s.id,
		"player": name,
	}).Info("dropping unreachable connection")
	t.Close("send failed")
	s.process(queueItem{from: name, req: game.LeaveRequest{}})
	s.maybeScheduleEviction()
}

func (s *Session) fanOut(resp protocol.Response) {
	s.registry.ForEachPlayer(func(name string, t Transport) {
		if err := t.Send(resp); err != nil {
			s.dropPlayer(name, t)
		}
	})
	s.registry.ForEachObserver(func(t Transport) {
		if err := t.Send(resp); err != nil {
			s.registry.RemoveObserver(t)
			t.Close("send failed")
		}
	})
}

// maybeScheduleEviction arms the empty-game timer when the last connection is
// gone. Any new connection disarms it; a stale timer that fires after a
// reconnect checks the count again and does nothing.
func (s *Session) maybeScheduleEviction() {
	if s.onEmpty == nil || s.registry.ParticipantCount() > 0 {
		return
	}
	s.evictMu.Lock()
	defer s.evictMu.Unlock()
	if s.evictTimer != nil {
		return
	}
	s.evictTimer = time.AfterFunc(s.grace, func() {
		if s.registry.ParticipantCount() > 0 {
			return
		}
		s.logger.WithField("game", s.id).Info("evicting abandoned game session")
		s.onEmpty(s.id)
	})
}

func (s *Session) cancelEviction() {
	s.evictMu.Lock()
	defer s.evictMu.Unlock()
	if s.evictTimer != nil {
		s.evictTimer.Stop()
		s.evictTimer = nil
	}
}
