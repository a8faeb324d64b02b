// internal/game/rules_test.go
package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	m, ok := BuiltInMap(DefaultMapName)
	require.True(t, ok)
	return NewEngineSeeded(m, 7)
}

// startedGame joins the named players in order and resolves every initial
// tickets choice, so the game is ready for turn-consuming requests.
func startedGame(t *testing.T, e *Engine, names ...string) State {
	t.Helper()
	s := e.InitialState("g1", names[0], 0, false)
	for i, name := range names {
		var err error
		s, _, err = e.Apply(s, JoinRequest{Color: PlayerColors[i]}, name, nil)
		require.NoError(t, err)
		p := s.PlayerByName(name)
		require.NotNil(t, p.TicketsForChoice)
		// Keep short tickets only, so held long tickets never starve the
		// long-ticket draw of a later join.
		keep := make([]Ticket, 0, TicketsChoiceMinKeep)
		for _, ticket := range p.TicketsForChoice.Tickets {
			if ticket.Points < e.Map().LongTicketMinPoints {
				keep = append(keep, ticket)
			}
			if len(keep) == TicketsChoiceMinKeep {
				break
			}
		}
		s, _, err = e.Apply(s, ConfirmTicketsRequest{TicketsToKeep: keep}, name, nil)
		require.NoError(t, err)
	}
	return s
}

func pickTwoClosed(t *testing.T, e *Engine, s State, from string) State {
	t.Helper()
	next, changed, err := e.Apply(s, PickCardsRequest{
		First:  PickedCard{Closed: true},
		Second: PickedCard{Closed: true},
	}, from, nil)
	require.NoError(t, err)
	require.True(t, changed)
	return next
}

func TestJoinDealsHandAndTicketOffer(t *testing.T) {
	e := testEngine(t)
	s := e.InitialState("g1", "alice", 0, false)
	s, changed, err := e.Apply(s, JoinRequest{Color: "red"}, "alice", nil)
	require.NoError(t, err)
	require.True(t, changed)

	p := s.PlayerByName("alice")
	require.NotNil(t, p)
	assert.Len(t, p.Cards, InitialHandSize)
	assert.Equal(t, DefaultCarsCount, p.CarsLeft)
	assert.Equal(t, InitialStationsCount, p.StationsLeft)

	require.NotNil(t, p.TicketsForChoice)
	offer := p.TicketsForChoice
	assert.Len(t, offer.Tickets, 4)
	assert.Equal(t, TicketsChoiceMinKeep, offer.MinCountToKeep)
	assert.True(t, offer.ShouldChooseOnNextTurn)

	longs := 0
	seen := make(map[Ticket]bool)
	for _, ticket := range offer.Tickets {
		assert.False(t, seen[ticket], "offered tickets must be distinct")
		seen[ticket] = true
		if ticket.Points >= e.Map().LongTicketMinPoints {
			longs++
		}
	}
	assert.Equal(t, 1, longs, "the initial offer holds exactly one long ticket")
}

func TestJoinRejectsTakenNameAndColor(t *testing.T) {
	e := testEngine(t)
	s := e.InitialState("g1", "alice", 0, false)
	s, _, err := e.Apply(s, JoinRequest{Color: "red"}, "alice", nil)
	require.NoError(t, err)

	_, _, err = e.Apply(s, JoinRequest{Color: "blue"}, "alice", nil)
	assert.ErrorIs(t, err, ErrNameTaken)

	_, _, err = e.Apply(s, JoinRequest{Color: "red"}, "bob", nil)
	assert.ErrorIs(t, err, ErrColorTaken)
}

func TestJoinReclaimsAwaySeat(t *testing.T) {
	e := testEngine(t)
	s := startedGame(t, e, "alice", "bob")
	s, _, err := e.Apply(s, LeaveRequest{}, "bob", nil)
	require.NoError(t, err)
	require.True(t, s.PlayerByName("bob").Away)
	cards := len(s.PlayerByName("bob").Cards)

	s, changed, err := e.Apply(s, JoinRequest{Color: "red"}, "bob", nil)
	require.NoError(t, err)
	require.True(t, changed)
	p := s.PlayerByName("bob")
	assert.False(t, p.Away)
	assert.Len(t, p.Cards, cards, "a reclaimed seat keeps its hand")
	assert.Equal(t, PlayerColors[1], p.Color, "a taken color is not reassigned on reclaim")
}

func TestGameFull(t *testing.T) {
	e := testEngine(t)
	names := []string{"p1", "p2", "p3", "p4", "p5"}
	s := startedGame(t, e, names...)
	_, _, err := e.Apply(s, JoinRequest{Color: "red"}, "p6", nil)
	var invalid *InvalidActionError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Reason, "Game full")
}

func TestJoinRejectsUnknownColor(t *testing.T) {
	e := testEngine(t)
	s := e.InitialState("g1", "alice", 0, false)

	for _, color := range []PlayerColor{"", "purple", "RED"} {
		_, _, err := e.Apply(s, JoinRequest{Color: color}, "alice", nil)
		var invalid *InvalidActionError
		require.ErrorAs(t, err, &invalid, "color %q must be rejected", color)
	}

	// A reclaim with a bogus color keeps the seat's original one.
	s = startedGame(t, e, "alice", "bob")
	s, _, err := e.Apply(s, LeaveRequest{}, "bob", nil)
	require.NoError(t, err)
	s, _, err = e.Apply(s, JoinRequest{Color: "purple"}, "bob", nil)
	require.NoError(t, err)
	assert.Equal(t, PlayerColors[1], s.PlayerByName("bob").Color)
}

func TestTurnAdvancesAndWraps(t *testing.T) {
	e := testEngine(t)
	s := startedGame(t, e, "alice", "bob", "charlie")
	require.Equal(t, 0, s.Turn)

	s = pickTwoClosed(t, e, s, "alice")
	assert.Equal(t, 1, s.Turn)
	s = pickTwoClosed(t, e, s, "bob")
	assert.Equal(t, 2, s.Turn)
	s = pickTwoClosed(t, e, s, "charlie")
	assert.Equal(t, 0, s.Turn, "the turn wraps from the last seat to the first")
}

func TestOutOfTurnRequestRejected(t *testing.T) {
	e := testEngine(t)
	s := startedGame(t, e, "alice", "bob")
	_, _, err := e.Apply(s, PickCardsRequest{
		First:  PickedCard{Closed: true},
		Second: PickedCard{Closed: true},
	}, "bob", nil)
	var invalid *InvalidActionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "Not your turn", invalid.Reason)
}

func TestTicketsTakenInAdvanceSkipOneTurn(t *testing.T) {
	e := testEngine(t)
	s := startedGame(t, e, "alice", "bob", "charlie")

	// Off turn, so the move is not consumed and bob gets one turn of grace.
	s, changed, err := e.Apply(s, PickTicketsRequest{}, "bob", nil)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, 0, s.Turn)
	require.NotNil(t, s.PlayerByName("bob").TicketsForChoice)
	assert.False(t, s.PlayerByName("bob").TicketsForChoice.ShouldChooseOnNextTurn)
	assert.Equal(t, 1, s.PlayerByName("bob").TicketsForChoice.MinCountToKeep)

	s = pickTwoClosed(t, e, s, "alice")
	assert.Equal(t, 2, s.Turn, "bob is skipped while deciding on tickets")
	assert.True(t, s.PlayerByName("bob").TicketsForChoice.ShouldChooseOnNextTurn,
		"the grace is spent after one skip")

	s = pickTwoClosed(t, e, s, "charlie")
	require.Equal(t, 0, s.Turn)
	s = pickTwoClosed(t, e, s, "alice")
	assert.Equal(t, 1, s.Turn, "bob is not skipped twice")
}

func TestTicketsTakenInTurnConsumeTheTurn(t *testing.T) {
	e := testEngine(t)
	s := startedGame(t, e, "alice", "bob")

	s, _, err := e.Apply(s, PickTicketsRequest{}, "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Turn)
	choice := s.PlayerByName("alice").TicketsForChoice
	require.NotNil(t, choice)
	assert.True(t, choice.ShouldChooseOnNextTurn)

	_, _, err = e.Apply(s, PickTicketsRequest{}, "alice", nil)
	assert.Error(t, err, "no second offer while one is pending")
}

func TestConfirmTicketsValidation(t *testing.T) {
	e := testEngine(t)
	s := e.InitialState("g1", "alice", 0, false)
	s, _, err := e.Apply(s, JoinRequest{Color: "red"}, "alice", nil)
	require.NoError(t, err)
	offered := s.PlayerByName("alice").TicketsForChoice.Tickets

	_, _, err = e.Apply(s, ConfirmTicketsRequest{
		TicketsToKeep: []Ticket{{From: "Narnia", To: "Oz", Points: 99}},
	}, "alice", nil)
	assert.Error(t, err)

	_, _, err = e.Apply(s, ConfirmTicketsRequest{TicketsToKeep: offered[:1]}, "alice", nil)
	assert.Error(t, err, "keeping fewer than the minimum is rejected")

	s, _, err = e.Apply(s, ConfirmTicketsRequest{TicketsToKeep: offered[:2]}, "alice", nil)
	require.NoError(t, err)
	p := s.PlayerByName("alice")
	assert.Nil(t, p.TicketsForChoice)
	assert.Equal(t, append([]Ticket(nil), offered[:2]...), p.TicketsOnHand)

	_, _, err = e.Apply(s, ConfirmTicketsRequest{TicketsToKeep: offered[:2]}, "alice", nil)
	assert.Error(t, err, "no pending choice left to confirm")
}

func TestPickOpenCards(t *testing.T) {
	e := testEngine(t)
	s := startedGame(t, e, "alice", "bob")
	s.OpenCards = []Card{Car(Red), Car(Green), Car(Blue), Car(Black), Car(White)}
	hand := len(s.PlayerByName("alice").Cards)

	next, _, err := e.Apply(s, PickCardsRequest{
		First:  PickedCard{Ix: 0, Card: Car(Red)},
		Second: PickedCard{Ix: 1, Card: Car(Green)},
	}, "alice", nil)
	require.NoError(t, err)
	p := next.PlayerByName("alice")
	assert.Len(t, p.Cards, hand+2)
	assert.Contains(t, p.Cards, Car(Red))
	assert.Contains(t, p.Cards, Car(Green))
	assert.Equal(t, 1, next.Turn)

	_, _, err = e.Apply(s, PickCardsRequest{
		First:  PickedCard{Ix: 0, Card: Car(Red)},
		Second: PickedCard{Ix: 0, Card: Car(Red)},
	}, "alice", nil)
	assert.Error(t, err, "the same open card cannot be taken twice")

	_, _, err = e.Apply(s, PickCardsRequest{
		First:  PickedCard{Ix: 0, Card: Car(Yellow)},
		Second: PickedCard{Closed: true},
	}, "alice", nil)
	assert.Error(t, err, "a stale open card pick is rejected")
}

func TestSingleOpenLocoEndsTurn(t *testing.T) {
	e := testEngine(t)
	s := startedGame(t, e, "alice", "bob")
	s.OpenCards = []Card{Car(Red), Car(Green), Loco, Car(Black), Car(White)}
	hand := len(s.PlayerByName("alice").Cards)

	_, _, err := e.Apply(s, PickCardsRequest{
		First:  PickedCard{Ix: 2, Card: Loco},
		Second: PickedCard{Closed: true},
	}, "alice", nil)
	assert.Error(t, err, "an open loco cannot be taken together with another card")

	next, _, err := e.Apply(s, PickLocoRequest{Ix: 2}, "alice", nil)
	require.NoError(t, err)
	p := next.PlayerByName("alice")
	assert.Len(t, p.Cards, hand+1)
	assert.Contains(t, p.Cards, Loco)
	assert.Equal(t, 1, next.Turn)

	_, _, err = e.Apply(s, PickLocoRequest{Ix: 0}, "alice", nil)
	assert.Error(t, err, "the open card at the index must be a loco")
}

func TestBuildSegment(t *testing.T) {
	e := testEngine(t)
	s := startedGame(t, e, "alice", "bob")
	s.PlayerByName("alice").Cards = []Card{Car(Blue), Car(Blue), Car(Blue), Loco}

	next, _, err := e.Apply(s, BuildSegmentRequest{
		From:  "Bergen",
		To:    "Oslo",
		Cards: []Card{Car(Blue), Car(Blue), Car(Blue), Loco},
	}, "alice", nil)
	require.NoError(t, err)
	p := next.PlayerByName("alice")
	assert.Empty(t, p.Cards)
	assert.Equal(t, DefaultCarsCount-4, p.CarsLeft)
	require.Len(t, p.OccupiedSegments, 1)
	assert.Equal(t, Segment{From: "Bergen", To: "Oslo", Color: Blue, Length: 4}, p.OccupiedSegments[0])
	assert.Equal(t, 1, next.Turn)

	next.PlayerByName("bob").Cards = []Card{Car(Blue), Car(Blue), Car(Blue), Car(Blue)}
	_, _, err = e.Apply(next, BuildSegmentRequest{
		From:  "Oslo",
		To:    "Bergen",
		Cards: []Card{Car(Blue), Car(Blue), Car(Blue), Car(Blue)},
	}, "bob", nil)
	assert.Error(t, err, "an occupied segment cannot be built again")
}

func TestBuildSegmentRejectsBadPayment(t *testing.T) {
	e := testEngine(t)
	s := startedGame(t, e, "alice", "bob")
	s.PlayerByName("alice").Cards = []Card{Car(Red), Car(Red), Car(Red), Car(Red)}

	_, _, err := e.Apply(s, BuildSegmentRequest{
		From:  "Bergen",
		To:    "Oslo",
		Cards: []Card{Car(Red), Car(Red), Car(Red), Car(Red)},
	}, "alice", nil)
	assert.Error(t, err, "payment color must match the segment color")

	_, _, err = e.Apply(s, BuildSegmentRequest{
		From:  "Bergen",
		To:    "Oslo",
		Cards: []Card{Car(Blue), Car(Blue), Car(Blue), Car(Blue)},
	}, "alice", nil)
	assert.Error(t, err, "cards to drop must be on hand")

	_, _, err = e.Apply(s, BuildSegmentRequest{From: "Bergen", To: "Tallinn"}, "alice", nil)
	assert.Error(t, err, "no such connection on the map")
}

func TestCanBuildWith(t *testing.T) {
	colored := Segment{From: "a", To: "b", Color: Blue, Length: 3}
	assert.True(t, canBuildWith(colored, []Card{Car(Blue), Car(Blue), Car(Blue)}))
	assert.True(t, canBuildWith(colored, []Card{Car(Blue), Loco, Car(Blue)}))
	assert.True(t, canBuildWith(colored, []Card{Loco, Loco, Loco}))
	assert.False(t, canBuildWith(colored, []Card{Car(Blue), Car(Blue)}), "too few cards")
	assert.False(t, canBuildWith(colored, []Card{Car(Red), Car(Red), Car(Red)}), "wrong color")
	assert.False(t, canBuildWith(colored, []Card{Car(Blue), Car(Red), Loco}), "more than two kinds")
	assert.False(t, canBuildWith(colored, []Card{Car(Red), Car(Red), Loco}), "loco mix still needs the segment color")

	gray := Segment{From: "a", To: "b", Length: 2}
	assert.True(t, canBuildWith(gray, []Card{Car(Red), Car(Red)}))
	assert.True(t, canBuildWith(gray, []Card{Car(Red), Loco}))
	assert.False(t, canBuildWith(gray, []Card{Car(Red), Car(Green)}), "two colors never pay one segment")
}

func TestBuildStation(t *testing.T) {
	e := testEngine(t)
	s := startedGame(t, e, "alice", "bob")
	s.PlayerByName("alice").Cards = []Card{Car(Green), Car(Green), Car(Red)}

	next, _, err := e.Apply(s, BuildStationRequest{
		Target: "Tallinn",
		Cards:  []Card{Car(Green)},
	}, "alice", nil)
	require.NoError(t, err)
	p := next.PlayerByName("alice")
	assert.Equal(t, InitialStationsCount-1, p.StationsLeft)
	assert.Equal(t, []CityName{"Tallinn"}, p.PlacedStations)
	assert.Equal(t, 1, next.Turn)

	next.PlayerByName("bob").Cards = []Card{Car(Red)}
	_, _, err = e.Apply(next, BuildStationRequest{Target: "Tallinn", Cards: []Card{Car(Red)}}, "bob", nil)
	assert.Error(t, err, "a city holds at most one station")

	_, _, err = e.Apply(s, BuildStationRequest{
		Target: "Riga",
		Cards:  []Card{Car(Green), Car(Red)},
	}, "alice", nil)
	assert.Error(t, err, "station payment must be a single color")

	_, _, err = e.Apply(s, BuildStationRequest{Target: "Atlantis", Cards: []Card{Car(Green)}}, "alice", nil)
	assert.Error(t, err, "no such city")
}

func TestSecondStationCostsTwoCards(t *testing.T) {
	e := testEngine(t)
	s := startedGame(t, e, "alice", "bob")
	p := s.PlayerByName("alice")
	p.PlacedStations = []CityName{"Tallinn"}
	p.StationsLeft = InitialStationsCount - 1
	p.Cards = []Card{Car(Green), Car(Green)}

	_, _, err := e.Apply(s, BuildStationRequest{Target: "Riga", Cards: []Card{Car(Green)}}, "alice", nil)
	assert.Error(t, err, "the second station costs two cards")

	next, _, err := e.Apply(s, BuildStationRequest{
		Target: "Riga",
		Cards:  []Card{Car(Green), Car(Green)},
	}, "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, []CityName{"Tallinn", "Riga"}, next.PlayerByName("alice").PlacedStations)
}

func TestEndTriggerIsSticky(t *testing.T) {
	e := testEngine(t)
	s := startedGame(t, e, "alice", "bob")
	s.PlayerByName("alice").CarsLeft = 2
	s.PlayerByName("bob").CarsLeft = 1

	s = pickTwoClosed(t, e, s, "alice")
	assert.Equal(t, 0, s.EndsOnPlayer)
	assert.True(t, s.LastRound())
	assert.False(t, s.Ended())

	s = pickTwoClosed(t, e, s, "bob")
	assert.Equal(t, 0, s.EndsOnPlayer, "the trigger never moves once set")
	assert.True(t, s.Ended(), "the game ends when the turn returns to the trigger seat")
}

func TestAdvanceSkipsAwayPlayers(t *testing.T) {
	e := testEngine(t)
	s := startedGame(t, e, "alice", "bob", "charlie")

	s, _, err := e.Apply(s, LeaveRequest{}, "bob", nil)
	require.NoError(t, err)
	require.Equal(t, 0, s.Turn, "an off-turn leave does not move the turn")

	s = pickTwoClosed(t, e, s, "alice")
	assert.Equal(t, 2, s.Turn, "away seats are skipped")
}

func TestLeaveInTurnPassesTheTurn(t *testing.T) {
	e := testEngine(t)
	s := startedGame(t, e, "alice", "bob")

	s, changed, err := e.Apply(s, LeaveRequest{}, "alice", nil)
	require.NoError(t, err)
	require.True(t, changed)
	assert.True(t, s.PlayerByName("alice").Away)
	assert.Equal(t, 1, s.Turn)

	_, changed, err = e.Apply(s, LeaveRequest{}, "alice", nil)
	require.NoError(t, err)
	assert.False(t, changed, "leaving twice is a no-op")
}

func TestChatNeverChangesState(t *testing.T) {
	e := testEngine(t)
	s := startedGame(t, e, "alice", "bob")
	_, changed, err := e.Apply(s, ChatRequest{Message: "hi"}, "alice", nil)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestAwayRegistryIsConsulted(t *testing.T) {
	e := testEngine(t)
	s := startedGame(t, e, "alice", "bob", "charlie")

	// bob is flagged live in state but his connection is gone.
	isAway := func(name string) bool { return name == "bob" }
	s, _, err := e.Apply(s, PickCardsRequest{
		First:  PickedCard{Closed: true},
		Second: PickedCard{Closed: true},
	}, "alice", isAway)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Turn)
}
