// internal/game/cards.go
package game

import "math/rand"

// CardColor is the color of a car card or of a map segment. The empty value on
// a segment means the segment has no fixed color and accepts any single color.
type CardColor string

const (
	Red     CardColor = "red"
	Green   CardColor = "green"
	Blue    CardColor = "blue"
	Black   CardColor = "black"
	White   CardColor = "white"
	Yellow  CardColor = "yellow"
	Orange  CardColor = "orange"
	Magenta CardColor = "magenta"
)

// CardColors lists every color a car card can have.
var CardColors = []CardColor{Red, Green, Blue, Black, White, Yellow, Orange, Magenta}

// PlayerColor identifies a player on the map and in the UI.
type PlayerColor string

// PlayerColors lists the colors available for players to pick. Its length caps
// the number of seats in a game.
var PlayerColors = []PlayerColor{"red", "blue", "black", "orange", "magenta"}

func validPlayerColor(color PlayerColor) bool {
	for _, c := range PlayerColors {
		if c == color {
			return true
		}
	}
	return false
}

// Card is a resource card: either a colored car card or a loco (wildcard).
// The zero Color with Loco unset is not a valid card.
type Card struct {
	Loco  bool      `json:"loco,omitempty"`
	Color CardColor `json:"color,omitempty"`
}

// Loco is the wildcard card.
var Loco = Card{Loco: true}

// Car builds a colored car card.
func Car(color CardColor) Card { return Card{Color: color} }

// randomCard deals a card with color probabilities proportional to how much of
// the map is covered by segments of that color; the remaining probability mass
// goes to locos.
func randomCard(m *Map, rng *rand.Rand) Card {
	total := m.TotalColoredSegmentsLength()
	n := rng.Intn(total + total/len(CardColors))
	for _, seg := range m.Segments() {
		if seg.Color == "" {
			continue
		}
		n -= seg.Length
		if n < 0 {
			return Car(seg.Color)
		}
	}
	return Loco
}

// countCards groups a hand by card.
func countCards(cards []Card) map[Card]int {
	counts := make(map[Card]int, len(cards))
	for _, c := range cards {
		counts[c]++
	}
	return counts
}

// containsCards reports whether hand contains every card of sub, with
// multiplicity.
func containsCards(hand, sub []Card) bool {
	have := countCards(hand)
	for card, n := range countCards(sub) {
		if have[card] < n {
			return false
		}
	}
	return true
}

// dropCards removes the cards of drop from hand, with multiplicity, and
// returns the remaining hand.
func dropCards(hand, drop []Card) []Card {
	left := countCards(drop)
	kept := make([]Card, 0, len(hand))
	for _, c := range hand {
		if left[c] > 0 {
			left[c]--
			continue
		}
		kept = append(kept, c)
	}
	return kept
}
