// internal/game/rules.go
package game

import (
	"fmt"
	"math/rand"
	"time"
)

// Engine validates and applies game requests against immutable state
// snapshots. It holds no game state of its own, only the map and a random
// source for card and ticket draws; the session actor owns the canonical
// state and is the engine's only caller, so the random source needs no lock.
type Engine struct {
	m   *Map
	rng *rand.Rand
}

// NewEngine builds an engine for the given map with a time-seeded random source.
func NewEngine(m *Map) *Engine {
	return NewEngineSeeded(m, time.Now().UnixNano())
}

// NewEngineSeeded builds an engine with a fixed seed, for deterministic tests.
func NewEngineSeeded(m *Map, seed int64) *Engine {
	return &Engine{m: m, rng: rand.New(rand.NewSource(seed))}
}

// Map returns the game map the engine plays on.
func (e *Engine) Map() *Map { return e.m }

// InitialState builds the state of a freshly started game: no seats yet, the
// open card row dealt.
func (e *Engine) InitialState(id GameID, startedBy string, carsCount int, scoreLive bool) State {
	if carsCount <= 0 {
		carsCount = DefaultCarsCount
	}
	open := make([]Card, OpenCardsCount)
	for i := range open {
		open[i] = randomCard(e.m, e.rng)
	}
	return State{
		ID:               id,
		StartedBy:        startedBy,
		OpenCards:        open,
		Turn:             0,
		EndsOnPlayer:     NoEndTrigger,
		InitialCarsCount: carsCount,
		ScoreLive:        scoreLive,
	}
}

// Apply interprets one request from the named player against the state and
// returns the resulting snapshot. The changed flag is false when the request
// left the game state untouched, in which case the session responds to the
// requester only instead of broadcasting. isAway tells whether a player's
// connection is currently not live; it may be nil, in which case only the
// away flags recorded in the state are consulted.
func (e *Engine) Apply(s State, req Request, from string, isAway func(string) bool) (State, bool, error) {
	next := s.clone()
	skip := func(name string) bool {
		if isAway != nil && isAway(name) {
			return true
		}
		p := next.PlayerByName(name)
		return p != nil && p.Away
	}

	switch r := req.(type) {
	case ChatRequest:
		return s, false, nil

	case JoinRequest:
		if err := e.joinPlayer(&next, from, r.Color); err != nil {
			return s, false, err
		}
		return next, true, nil

	case ReconnectRequest:
		p := next.PlayerByName(from)
		if p == nil {
			return s, false, invalidActionf("No player named %s in this game", from)
		}
		p.Away = false
		return next, true, nil

	case LeaveRequest:
		p := next.PlayerByName(from)
		if p == nil || p.Away {
			return s, false, nil
		}
		p.Away = true
		e.advanceTurnFrom(&next, from, skip)
		return next, true, nil

	case ConfirmTicketsRequest:
		if err := confirmTicketsChoice(next.PlayerByName(from), r.TicketsToKeep); err != nil {
			return s, false, err
		}
		e.recalcScores(&next)
		return next, true, nil

	case PickTicketsRequest:
		if err := e.pickTickets(&next, from); err != nil {
			return s, false, err
		}
		e.advanceTurnFrom(&next, from, skip)
		return next, true, nil

	case PickLocoRequest:
		if err := e.inTurnOnly(&next, from, func() error { return e.pickLoco(&next, from, r.Ix) }); err != nil {
			return s, false, err
		}
		e.advanceTurnFrom(&next, from, skip)
		return next, true, nil

	case PickCardsRequest:
		if err := e.inTurnOnly(&next, from, func() error { return e.pickCards(&next, from, r) }); err != nil {
			return s, false, err
		}
		e.advanceTurnFrom(&next, from, skip)
		return next, true, nil

	case BuildSegmentRequest:
		if err := e.inTurnOnly(&next, from, func() error { return e.buildSegment(&next, from, r) }); err != nil {
			return s, false, err
		}
		e.recalcScores(&next)
		e.advanceTurnFrom(&next, from, skip)
		return next, true, nil

	case BuildStationRequest:
		if err := e.inTurnOnly(&next, from, func() error { return e.buildStation(&next, from, r) }); err != nil {
			return s, false, err
		}
		e.recalcScores(&next)
		e.advanceTurnFrom(&next, from, skip)
		return next, true, nil

	default:
		return s, false, fmt.Errorf("unhandled request type %T", req)
	}
}

func (e *Engine) inTurnOnly(s *State, from string, block func() error) error {
	if len(s.Players) == 0 || s.Players[s.Turn].Name != from {
		return invalidActionf("Not your turn")
	}
	return block()
}

func (e *Engine) joinPlayer(s *State, name string, color PlayerColor) error {
	if existing := s.PlayerByName(name); existing != nil {
		if !existing.Away {
			return ErrNameTaken
		}
		// Reclaiming an abandoned seat keeps all accumulated state; the
		// requested color is honored only when it is valid and still free.
		existing.Away = false
		if validPlayerColor(color) && !s.HasColor(color, name) {
			existing.Color = color
		}
		return nil
	}
	if len(s.Players) >= len(PlayerColors) {
		return invalidActionf("Game full, no more players allowed")
	}
	if !validPlayerColor(color) {
		return invalidActionf("There is no %s color in this game", color)
	}
	if s.HasColor(color, name) {
		return ErrColorTaken
	}

	cards := make([]Card, InitialHandSize)
	for i := range cards {
		cards[i] = randomCard(e.m, e.rng)
	}
	long, err := e.randomTickets(s, 1, true)
	if err != nil {
		return err
	}
	short, err := e.randomTickets(s, 3, false)
	if err != nil {
		return err
	}
	s.Players = append(s.Players, Player{
		Name:         name,
		Color:        color,
		CarsLeft:     s.InitialCarsCount,
		StationsLeft: InitialStationsCount,
		Cards:        cards,
		TicketsForChoice: &PendingTicketsChoice{
			Tickets:                append(long, short...),
			MinCountToKeep:         TicketsChoiceMinKeep,
			ShouldChooseOnNextTurn: true,
		},
	})
	return nil
}

// randomTickets draws count distinct tickets from the long or short pool,
// avoiding tickets already held or offered to anyone, and for long draws also
// tickets sharing a city with a long ticket already in play.
func (e *Engine) randomTickets(s *State, count int, long bool) ([]Ticket, error) {
	pool := e.m.ShortTickets()
	if long {
		pool = e.m.LongTickets()
	}
	inPlay := make(map[Ticket]bool)
	for i := range s.Players {
		p := &s.Players[i]
		for _, t := range p.TicketsOnHand {
			inPlay[t] = true
		}
		if p.TicketsForChoice != nil {
			for _, t := range p.TicketsForChoice.Tickets {
				inPlay[t] = true
			}
		}
	}
	var available []Ticket
	for _, t := range pool {
		if inPlay[t] {
			continue
		}
		if long {
			conflict := false
			for held := range inPlay {
				if held.Points >= e.m.LongTicketMinPoints && held.SharesCityWith(t) {
					conflict = true
					break
				}
			}
			if conflict {
				continue
			}
		}
		available = append(available, t)
	}
	if len(available) < count {
		return nil, invalidActionf("Game full, no more players allowed (no tickets left)")
	}
	e.rng.Shuffle(len(available), func(i, j int) {
		available[i], available[j] = available[j], available[i]
	})
	return available[:count:count], nil
}

func confirmTicketsChoice(p *Player, keep []Ticket) error {
	if p == nil || p.TicketsForChoice == nil {
		return invalidActionf("You do not have any pending tickets choice")
	}
	offered := make(map[Ticket]bool, len(p.TicketsForChoice.Tickets))
	for _, t := range p.TicketsForChoice.Tickets {
		offered[t] = true
	}
	for _, t := range keep {
		if !offered[t] {
			return invalidActionf("Invalid ticket chosen")
		}
	}
	if len(keep) < p.TicketsForChoice.MinCountToKeep {
		return invalidActionf("You should keep at least %d tickets", p.TicketsForChoice.MinCountToKeep)
	}
	p.TicketsOnHand = append(p.TicketsOnHand, keep...)
	p.TicketsForChoice = nil
	return nil
}

func (e *Engine) pickTickets(s *State, from string) error {
	p := s.PlayerByName(from)
	if p == nil {
		return invalidActionf("No player named %s in this game", from)
	}
	if p.TicketsForChoice != nil {
		return invalidActionf("Decide on your tickets first")
	}
	tickets, err := e.randomTickets(s, 3, false)
	if err != nil {
		return err
	}
	inTurn := s.Players[s.Turn].Name == from
	p.TicketsForChoice = &PendingTicketsChoice{
		Tickets:                tickets,
		MinCountToKeep:         1,
		ShouldChooseOnNextTurn: inTurn,
	}
	return nil
}

func (e *Engine) pickLoco(s *State, from string, ix int) error {
	if ix < 0 || ix >= len(s.OpenCards) {
		return invalidActionf("No open card at index %d", ix)
	}
	if !s.OpenCards[ix].Loco {
		return invalidActionf("Open card at index %d is not a loco", ix)
	}
	p := s.PlayerByName(from)
	p.Cards = append(p.Cards, Loco)
	e.refillOpenCards(s, []int{ix})
	return nil
}

func (e *Engine) pickCards(s *State, from string, req PickCardsRequest) error {
	picks := []PickedCard{req.First, req.Second}
	var replaced []int
	gained := make([]Card, 0, 2)
	for _, pick := range picks {
		if pick.Closed {
			gained = append(gained, randomCard(e.m, e.rng))
			continue
		}
		if pick.Ix < 0 || pick.Ix >= len(s.OpenCards) {
			return invalidActionf("No open card at index %d", pick.Ix)
		}
		open := s.OpenCards[pick.Ix]
		if open.Loco {
			return invalidActionf("A loco cannot be taken together with another card")
		}
		if open != pick.Card {
			return invalidActionf("Open card at index %d has been replaced", pick.Ix)
		}
		gained = append(gained, open)
		replaced = append(replaced, pick.Ix)
	}
	if len(replaced) == 2 && replaced[0] == replaced[1] {
		return invalidActionf("Cannot pick the same open card twice")
	}
	p := s.PlayerByName(from)
	p.Cards = append(p.Cards, gained...)
	e.refillOpenCards(s, replaced)
	return nil
}

// refillOpenCards replaces the picked open cards and redeals the entire row
// if it ends up holding three or more locos.
func (e *Engine) refillOpenCards(s *State, indices []int) {
	for _, ix := range indices {
		s.OpenCards[ix] = randomCard(e.m, e.rng)
	}
	locos := 0
	for _, c := range s.OpenCards {
		if c.Loco {
			locos++
		}
	}
	if locos >= 3 {
		for i := range s.OpenCards {
			s.OpenCards[i] = randomCard(e.m, e.rng)
		}
	}
}

func (e *Engine) buildSegment(s *State, from string, req BuildSegmentRequest) error {
	segment, ok := e.m.SegmentBetween(req.From, req.To, req.Color)
	if !ok {
		return invalidActionf("There is no segment %s - %s of %s on the map", req.From, req.To, req.Color)
	}
	for i := range s.Players {
		for _, occupied := range s.Players[i].OccupiedSegments {
			if occupied == segment {
				return invalidActionf("Segment %s - %s is already occupied by %s", segment.From, segment.To, s.Players[i].Name)
			}
		}
	}
	p := s.PlayerByName(from)
	if segment.Length > p.CarsLeft {
		return invalidActionf("Not enough wagons (%d) to build %s - %s segment", p.CarsLeft, segment.From, segment.To)
	}
	if !containsCards(p.Cards, req.Cards) {
		return invalidActionf("Cards to drop do not match cards on hand")
	}
	if !canBuildWith(segment, req.Cards) {
		return invalidActionf("You cannot build %s - %s segment with these cards", segment.From, segment.To)
	}
	p.Cards = dropCards(p.Cards, req.Cards)
	p.CarsLeft -= len(req.Cards)
	p.OccupiedSegments = append(p.OccupiedSegments, segment)
	return nil
}

func (e *Engine) buildStation(s *State, from string, req BuildStationRequest) error {
	if !e.m.HasCity(req.Target) {
		return invalidActionf("There is no city %s on the map", req.Target)
	}
	for i := range s.Players {
		for _, placed := range s.Players[i].PlacedStations {
			if placed == req.Target {
				return invalidActionf("There is already a station in %s owned by %s", req.Target, s.Players[i].Name)
			}
		}
	}
	colors := make(map[CardColor]bool)
	for _, c := range req.Cards {
		if !c.Loco {
			colors[c.Color] = true
		}
	}
	if len(colors) > 1 {
		return invalidActionf("Only cards of the same color (or locos) are allowed to be dropped for building a station")
	}
	p := s.PlayerByName(from)
	if p.StationsLeft == 0 {
		return invalidActionf("No stations left on hand")
	}
	if !containsCards(p.Cards, req.Cards) {
		return invalidActionf("Cards to drop do not match cards on hand")
	}
	if len(req.Cards) != len(p.PlacedStations)+1 {
		return invalidActionf("Should drop 1 card for 1st station, 2 cards for 2nd station and 3 cards for 3rd station")
	}
	p.Cards = dropCards(p.Cards, req.Cards)
	p.StationsLeft--
	p.PlacedStations = append(p.PlacedStations, req.Target)
	return nil
}

// canBuildWith checks the payment for a segment: exactly length cards, either
// all locos, or one color (matching the segment's color when it has one)
// optionally mixed with locos.
func canBuildWith(segment Segment, cards []Card) bool {
	if len(cards) != segment.Length {
		return false
	}
	counts := countCards(cards)
	matches := func(c Card) bool {
		return c.Loco || segment.Color == "" || segment.Color == c.Color
	}
	switch len(counts) {
	case 1:
		for c := range counts {
			return matches(c)
		}
		return false
	case 2:
		total := 0
		sawLoco := false
		for c, n := range counts {
			if c.Loco {
				sawLoco = true
			}
			if matches(c) {
				total += n
			}
		}
		return sawLoco && total == segment.Length
	default:
		return false
	}
}

// advanceTurnFrom moves the turn pointer off the named player after a
// turn-consuming action. It sets the end trigger when the map is exhausted or
// the current player runs low on cars (sticky once set), skips away players
// (but never all the way past the current player back to itself), and skips a
// player once over a tickets choice taken in advance. Implemented as a loop
// bounded by the seat count.
func (e *Engine) advanceTurnFrom(s *State, from string, isAway func(string) bool) {
	for range s.Players {
		if len(s.Players) == 0 || s.Players[s.Turn].Name != from {
			return
		}
		if s.occupiedTotal() == e.m.TotalSegmentsLength() {
			s.EndsOnPlayer = s.Turn
			return
		}
		if s.EndsOnPlayer == NoEndTrigger && s.Players[s.Turn].CarsLeft < carsLowThreshold {
			s.EndsOnPlayer = s.Turn
		}

		next := (s.Turn + 1) % len(s.Players)
		for isAway(s.Players[next].Name) && next != s.Turn {
			next = (next + 1) % len(s.Players)
		}
		p := &s.Players[next]
		skips := p.TicketsForChoice != nil && !p.TicketsForChoice.ShouldChooseOnNextTurn
		if p.TicketsForChoice != nil {
			p.TicketsForChoice.ShouldChooseOnNextTurn = true
		}
		s.Turn = next
		if !skips {
			return
		}
		from = p.Name
	}
}
