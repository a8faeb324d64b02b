// internal/game/score_test.go
package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func segment(t *testing.T, m *Map, from, to CityName) Segment {
	t.Helper()
	seg, ok := m.SegmentBetween(from, to, "")
	require.True(t, ok)
	return seg
}

func TestFinalResults(t *testing.T) {
	e := testEngine(t)
	m := e.Map()
	s := State{
		ID: "g1",
		Players: []Player{
			{
				Name: "alice",
				OccupiedSegments: []Segment{
					segment(t, m, "Bergen", "Oslo"),     // length 4, 7 points
					segment(t, m, "Oslo", "Stockholm"),  // length 3, 4 points
				},
				TicketsOnHand: []Ticket{
					{From: "Bergen", To: "Stockholm", Points: 7},
					{From: "Bergen", To: "Gdansk", Points: 12},
				},
			},
			{
				Name: "bob",
				OccupiedSegments: []Segment{
					segment(t, m, "Malmo", "Copenhagen"), // length 1, 1 point
				},
			},
		},
	}

	results := e.FinalResults(s)
	require.Len(t, results, 2)

	alice := results[0]
	assert.Equal(t, 11, alice.SegmentsPoints)
	assert.Equal(t, []Ticket{{From: "Bergen", To: "Stockholm", Points: 7}}, alice.FulfilledTickets)
	assert.Equal(t, []Ticket{{From: "Bergen", To: "Gdansk", Points: 12}}, alice.UnfulfilledTickets)
	assert.Equal(t, 7, alice.LongestRoute)
	assert.True(t, alice.LongestRouteBonus)
	// 11 segments + 7 fulfilled - 12 unfulfilled + 10 longest route.
	assert.Equal(t, 16, alice.TotalPoints)

	bob := results[1]
	assert.Equal(t, 1, bob.SegmentsPoints)
	assert.Empty(t, bob.FulfilledTickets)
	assert.Equal(t, 1, bob.LongestRoute)
	assert.False(t, bob.LongestRouteBonus)
	assert.Equal(t, 1, bob.TotalPoints)
}

func TestLongestRouteBonusIsShared(t *testing.T) {
	e := testEngine(t)
	m := e.Map()
	s := State{
		Players: []Player{
			{Name: "alice", OccupiedSegments: []Segment{segment(t, m, "Oslo", "Stockholm")}},
			{Name: "bob", OccupiedSegments: []Segment{segment(t, m, "Stockholm", "Riga")}},
		},
	}
	// Oslo-Stockholm is length 3, Stockholm-Riga is length 4.
	s.Players[0].OccupiedSegments = append(s.Players[0].OccupiedSegments,
		segment(t, m, "Helsinki", "Tallinn")) // +1, still a separate trail

	results := e.FinalResults(s)
	assert.Equal(t, 3, results[0].LongestRoute)
	assert.Equal(t, 4, results[1].LongestRoute)
	assert.False(t, results[0].LongestRouteBonus)
	assert.True(t, results[1].LongestRouteBonus)

	// A tie shares the bonus.
	s.Players[0].OccupiedSegments = []Segment{segment(t, m, "Stockholm", "Malmo")} // length 4
	results = e.FinalResults(s)
	assert.True(t, results[0].LongestRouteBonus)
	assert.True(t, results[1].LongestRouteBonus)
}

func TestStationConnectsThroughForeignSegments(t *testing.T) {
	e := testEngine(t)
	m := e.Map()
	s := State{
		Players: []Player{
			{
				Name: "alice",
				OccupiedSegments: []Segment{
					segment(t, m, "Bergen", "Oslo"),
					segment(t, m, "Oslo", "Stockholm"),
				},
			},
			{
				Name:           "charlie",
				PlacedStations: []CityName{"Oslo"},
				TicketsOnHand: []Ticket{
					{From: "Bergen", To: "Stockholm", Points: 7},
				},
			},
		},
	}

	results := e.FinalResults(s)
	charlie := results[1]
	assert.Equal(t, []Ticket{{From: "Bergen", To: "Stockholm", Points: 7}}, charlie.FulfilledTickets,
		"a station lets foreign segments at its city carry the ticket")
	assert.Equal(t, 7, charlie.TotalPoints)
}

func TestLongestRouteTrail(t *testing.T) {
	// A branching tree: the trail picks the heaviest path, it cannot reuse a
	// segment to collect both branches.
	segs := []Segment{
		{From: "a", To: "b", Length: 4},
		{From: "b", To: "c", Length: 3},
		{From: "b", To: "d", Length: 2},
	}
	assert.Equal(t, 7, longestRoute(segs))

	// A cycle is walked in full.
	cycle := []Segment{
		{From: "a", To: "b", Length: 1},
		{From: "b", To: "c", Length: 1},
		{From: "c", To: "a", Length: 1},
	}
	assert.Equal(t, 3, longestRoute(cycle))

	assert.Equal(t, 0, longestRoute(nil))
}

func TestLiveScoreVisibility(t *testing.T) {
	e := testEngine(t)
	s := startedGame(t, e, "alice", "bob")
	s.PlayerByName("alice").Cards = []Card{Car(Blue), Car(Blue), Car(Blue), Car(Blue)}

	s, _, err := e.Apply(s, BuildSegmentRequest{
		From:  "Bergen",
		To:    "Oslo",
		Cards: []Card{Car(Blue), Car(Blue), Car(Blue), Car(Blue)},
	}, "alice", nil)
	require.NoError(t, err)

	hidden := s.ViewFor("bob")
	require.Len(t, hidden.Players, 2)
	assert.Nil(t, hidden.Players[0].Points, "points stay hidden without live scoring")

	s.ScoreLive = true
	visible := s.ViewFor("bob")
	assert.NotNil(t, visible.Players[0].Points, "live scoring reveals points to everyone")
}
