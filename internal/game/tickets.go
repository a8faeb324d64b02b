// internal/game/tickets.go
package game

// Ticket is a destination goal: connect two cities for the given points. An
// unfulfilled ticket counts against the player at the end of the game.
type Ticket struct {
	From   CityName `json:"from"`
	To     CityName `json:"to"`
	Points int      `json:"points"`
}

// SharesCityWith reports whether the two tickets have a city in common. Long
// ticket draws avoid offering two such tickets to the same player.
func (t Ticket) SharesCityWith(other Ticket) bool {
	return t.From == other.From || t.From == other.To || t.To == other.From || t.To == other.To
}

// PendingTicketsChoice is a set of tickets offered to a player that has not
// been resolved yet. ShouldChooseOnNextTurn turns true on the turn advance
// that would otherwise give this player the move; from then on the choice
// no longer lets the player be skipped.
type PendingTicketsChoice struct {
	Tickets                []Ticket `json:"tickets"`
	MinCountToKeep         int      `json:"minCountToKeep"`
	ShouldChooseOnNextTurn bool     `json:"shouldChooseOnNextTurn"`
}

// PendingChoiceState is the public projection of a player's pending tickets
// choice, visible to other players and observers.
type PendingChoiceState string

const (
	ChoiceNone          PendingChoiceState = "none"
	ChoiceTookInAdvance PendingChoiceState = "tookInAdvance"
	ChoiceChoosing      PendingChoiceState = "choosing"
)

func (c *PendingTicketsChoice) state() PendingChoiceState {
	switch {
	case c == nil:
		return ChoiceNone
	case c.ShouldChooseOnNextTurn:
		return ChoiceChoosing
	default:
		return ChoiceTookInAdvance
	}
}
