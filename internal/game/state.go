// internal/game/state.go
package game

const (
	// OpenCardsCount is the size of the face-up card row.
	OpenCardsCount = 5
	// InitialStationsCount is how many stations each player starts with.
	InitialStationsCount = 3
	// InitialHandSize is how many cards a joining player is dealt.
	InitialHandSize = 4
	// DefaultCarsCount is the movable-unit count per player unless the Start
	// handshake overrides it.
	DefaultCarsCount = 45
	// TicketsChoiceMinKeep is the minimum a joining player must keep out of
	// the initial ticket offer.
	TicketsChoiceMinKeep = 2

	// carsLowThreshold: dropping below this many cars sets the end trigger.
	carsLowThreshold = 3

	// NoEndTrigger is the EndsOnPlayer value while the trigger is not set.
	NoEndTrigger = -1
)

// GameID addresses one game session.
type GameID string

// Player is one seat of the game. Seats are appended in join order and never
// removed; a disconnected player is only flagged away so that hand and
// progress survive reconnection.
type Player struct {
	Name             string                `json:"name"`
	Color            PlayerColor           `json:"color"`
	Points           int                   `json:"points"`
	CarsLeft         int                   `json:"carsLeft"`
	StationsLeft     int                   `json:"stationsLeft"`
	Cards            []Card                `json:"cards"`
	OccupiedSegments []Segment             `json:"occupiedSegments"`
	PlacedStations   []CityName            `json:"placedStations"`
	TicketsForChoice *PendingTicketsChoice `json:"ticketsForChoice,omitempty"`
	TicketsOnHand    []Ticket              `json:"ticketsOnHand"`
	Away             bool                  `json:"away"`
}

// State is the complete snapshot of one game. It is treated as immutable:
// the engine returns a fresh copy for every applied request, and the session
// actor is the only writer of the canonical value.
type State struct {
	ID               GameID   `json:"id"`
	StartedBy        string   `json:"startedBy"`
	Players          []Player `json:"players"`
	OpenCards        []Card   `json:"openCards"`
	Turn             int      `json:"turn"`
	EndsOnPlayer     int      `json:"endsOnPlayer"`
	InitialCarsCount int      `json:"initialCarsCount"`
	ScoreLive        bool     `json:"scoreLive"`
}

// LastRound reports whether the end trigger has been set.
func (s *State) LastRound() bool { return s.EndsOnPlayer != NoEndTrigger }

// Ended reports whether the game is over: the turn pointer has cycled back to
// the seat that triggered the end.
func (s *State) Ended() bool { return s.LastRound() && s.Turn == s.EndsOnPlayer }

// PlayerByName returns the seat with the given name, or nil.
func (s *State) PlayerByName(name string) *Player {
	for i := range s.Players {
		if s.Players[i].Name == name {
			return &s.Players[i]
		}
	}
	return nil
}

// HasColor reports whether any seat other than name holds the color.
func (s *State) HasColor(color PlayerColor, exceptName string) bool {
	for i := range s.Players {
		if s.Players[i].Color == color && s.Players[i].Name != exceptName {
			return true
		}
	}
	return false
}

// clone deep-copies the state so that an apply step never aliases slices with
// the previous snapshot.
func (s State) clone() State {
	out := s
	out.OpenCards = append([]Card(nil), s.OpenCards...)
	out.Players = make([]Player, len(s.Players))
	for i, p := range s.Players {
		cp := p
		cp.Cards = append([]Card(nil), p.Cards...)
		cp.OccupiedSegments = append([]Segment(nil), p.OccupiedSegments...)
		cp.PlacedStations = append([]CityName(nil), p.PlacedStations...)
		cp.TicketsOnHand = append([]Ticket(nil), p.TicketsOnHand...)
		if p.TicketsForChoice != nil {
			choice := *p.TicketsForChoice
			choice.Tickets = append([]Ticket(nil), p.TicketsForChoice.Tickets...)
			cp.TicketsForChoice = &choice
		}
		out.Players[i] = cp
	}
	return out
}

// occupiedTotal is the summary length of all segments occupied by anyone.
func (s *State) occupiedTotal() int {
	total := 0
	for i := range s.Players {
		for _, seg := range s.Players[i].OccupiedSegments {
			total += seg.Length
		}
	}
	return total
}
