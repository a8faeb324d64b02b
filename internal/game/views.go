// internal/game/views.go
package game

// PlayerView is the public projection of a seat: hand and tickets collapsed to
// counts, pending choice collapsed to its state.
type PlayerView struct {
	Name             string             `json:"name"`
	Color            PlayerColor        `json:"color"`
	Points           *int               `json:"points,omitempty"`
	CarsLeft         int                `json:"carsLeft"`
	StationsLeft     int                `json:"stationsLeft"`
	CardsCount       int                `json:"cardsCount"`
	TicketsCount     int                `json:"ticketsCount"`
	Away             bool               `json:"away"`
	OccupiedSegments []Segment          `json:"occupiedSegments"`
	PlacedStations   []CityName         `json:"placedStations"`
	PendingChoice    PendingChoiceState `json:"pendingChoice"`
}

func (p *Player) view(withScore bool) PlayerView {
	var points *int
	if withScore {
		pts := p.Points
		points = &pts
	}
	return PlayerView{
		Name:             p.Name,
		Color:            p.Color,
		Points:           points,
		CarsLeft:         p.CarsLeft,
		StationsLeft:     p.StationsLeft,
		CardsCount:       len(p.Cards),
		TicketsCount:     len(p.TicketsOnHand),
		Away:             p.Away,
		OccupiedSegments: p.OccupiedSegments,
		PlacedStations:   p.PlacedStations,
		PendingChoice:    p.TicketsForChoice.state(),
	}
}

// PlayerStateView is the personalized state view sent to one player: every
// other hand is hidden, the player's own cards and tickets are spelled out.
type PlayerStateView struct {
	Players         []PlayerView          `json:"players"`
	OpenCards       []Card                `json:"openCards"`
	Turn            int                   `json:"turn"`
	LastRound       bool                  `json:"lastRound"`
	MyName          string                `json:"myName"`
	MyCards         []Card                `json:"myCards"`
	MyTicketsOnHand []Ticket              `json:"myTicketsOnHand"`
	MyPendingChoice *PendingTicketsChoice `json:"myPendingChoice,omitempty"`
}

// ViewFor builds the personalized view of the state for the named player.
func (s *State) ViewFor(name string) PlayerStateView {
	views := make([]PlayerView, len(s.Players))
	for i := range s.Players {
		views[i] = s.Players[i].view(s.ScoreLive)
	}
	view := PlayerStateView{
		Players:   views,
		OpenCards: s.OpenCards,
		Turn:      s.Turn,
		LastRound: s.LastRound(),
		MyName:    name,
	}
	if me := s.PlayerByName(name); me != nil {
		view.MyCards = me.Cards
		view.MyTicketsOnHand = me.TicketsOnHand
		view.MyPendingChoice = me.TicketsForChoice
	}
	return view
}

// ObserverView is the reduced state view for observers: all hands collapsed to
// counts, ticket sets revealed only once the game has ended.
type ObserverView struct {
	Players         []PlayerView `json:"players"`
	OpenCards       []Card       `json:"openCards"`
	Turn            int          `json:"turn"`
	LastRound       bool         `json:"lastRound"`
	GameEnded       bool         `json:"gameEnded"`
	RevealedTickets [][]Ticket   `json:"revealedTickets,omitempty"`
}

// ViewForObserver builds the shared observer view of the state.
func (s *State) ViewForObserver() ObserverView {
	views := make([]PlayerView, len(s.Players))
	for i := range s.Players {
		views[i] = s.Players[i].view(true)
	}
	view := ObserverView{
		Players:   views,
		OpenCards: s.OpenCards,
		Turn:      s.Turn,
		LastRound: s.LastRound(),
		GameEnded: s.Ended(),
	}
	if s.Ended() {
		view.RevealedTickets = make([][]Ticket, len(s.Players))
		for i := range s.Players {
			view.RevealedTickets[i] = s.Players[i].TicketsOnHand
		}
	}
	return view
}
