// internal/game/score.go
package game

// PlayerResult is one row of the end-of-game summary: the public view of the
// seat, the revealed tickets split into fulfilled and unfulfilled, and the
// point breakdown.
type PlayerResult struct {
	View               PlayerView `json:"view"`
	SegmentsPoints     int        `json:"segmentsPoints"`
	FulfilledTickets   []Ticket   `json:"fulfilledTickets"`
	UnfulfilledTickets []Ticket   `json:"unfulfilledTickets"`
	LongestRoute       int        `json:"longestRoute"`
	LongestRouteBonus  bool       `json:"longestRouteBonus"`
	TotalPoints        int        `json:"totalPoints"`
}

// FinalResults computes the end-of-game summary for every seat. The longest
// route bonus goes to every player sharing the longest continuous route.
func (e *Engine) FinalResults(s State) []PlayerResult {
	results := make([]PlayerResult, len(s.Players))
	longestOfAll := 0
	for i := range s.Players {
		results[i] = e.playerResult(&s, i)
		if results[i].LongestRoute > longestOfAll {
			longestOfAll = results[i].LongestRoute
		}
	}
	for i := range results {
		if results[i].LongestRoute == longestOfAll && longestOfAll > 0 {
			results[i].LongestRouteBonus = true
			results[i].TotalPoints += e.m.PointsForLongestRoute
		}
	}
	return results
}

// recalcScores refreshes the in-process points of every player after a scoring
// mutation. Points stay hidden in views unless the game runs with scoreLive.
func (e *Engine) recalcScores(s *State) {
	longestOfAll := 0
	routes := make([]int, len(s.Players))
	totals := make([]int, len(s.Players))
	for i := range s.Players {
		r := e.playerResult(s, i)
		routes[i] = r.LongestRoute
		totals[i] = r.TotalPoints
		if r.LongestRoute > longestOfAll {
			longestOfAll = r.LongestRoute
		}
	}
	for i := range s.Players {
		if routes[i] == longestOfAll && longestOfAll > 0 {
			totals[i] += e.m.PointsForLongestRoute
		}
		s.Players[i].Points = totals[i]
	}
}

func (e *Engine) playerResult(s *State, ix int) PlayerResult {
	p := &s.Players[ix]

	segmentsPoints := 0
	for _, seg := range p.OccupiedSegments {
		segmentsPoints += PointsForSegment(seg.Length)
	}

	reach := newReachability(s, ix)
	var fulfilled, unfulfilled []Ticket
	ticketPoints := 0
	for _, t := range p.TicketsOnHand {
		if reach.connected(t.From, t.To) {
			fulfilled = append(fulfilled, t)
			ticketPoints += t.Points
		} else {
			unfulfilled = append(unfulfilled, t)
			ticketPoints -= t.Points
		}
	}

	return PlayerResult{
		View:               p.view(true),
		SegmentsPoints:     segmentsPoints,
		FulfilledTickets:   fulfilled,
		UnfulfilledTickets: unfulfilled,
		LongestRoute:       longestRoute(p.OccupiedSegments),
		TotalPoints:        segmentsPoints + ticketPoints,
	}
}

// reachability is a union-find over the cities connected by one player's
// segments. A placed station additionally lets the player use the foreign
// segments adjacent to the station's city.
type reachability struct {
	parent map[CityName]CityName
}

func newReachability(s *State, ix int) *reachability {
	r := &reachability{parent: make(map[CityName]CityName)}
	p := &s.Players[ix]
	for _, seg := range p.OccupiedSegments {
		r.union(seg.From, seg.To)
	}
	for _, station := range p.PlacedStations {
		for j := range s.Players {
			if j == ix {
				continue
			}
			for _, seg := range s.Players[j].OccupiedSegments {
				if seg.From == station || seg.To == station {
					r.union(seg.From, seg.To)
				}
			}
		}
	}
	return r
}

func (r *reachability) find(c CityName) CityName {
	root, ok := r.parent[c]
	if !ok {
		r.parent[c] = c
		return c
	}
	if root != c {
		root = r.find(root)
		r.parent[c] = root
	}
	return root
}

func (r *reachability) union(a, b CityName) {
	r.parent[r.find(a)] = r.find(b)
}

func (r *reachability) connected(a, b CityName) bool {
	if _, ok := r.parent[a]; !ok {
		return false
	}
	if _, ok := r.parent[b]; !ok {
		return false
	}
	return r.find(a) == r.find(b)
}

// longestRoute finds the longest continuous route over the player's segments:
// the heaviest trail using each segment at most once, by depth-first search
// from every city.
func longestRoute(segments []Segment) int {
	adjacency := make(map[CityName][]int)
	for i, seg := range segments {
		adjacency[seg.From] = append(adjacency[seg.From], i)
		adjacency[seg.To] = append(adjacency[seg.To], i)
	}
	used := make([]bool, len(segments))
	best := 0

	var walk func(at CityName, length int)
	walk = func(at CityName, length int) {
		if length > best {
			best = length
		}
		for _, i := range adjacency[at] {
			if used[i] {
				continue
			}
			used[i] = true
			next := segments[i].From
			if next == at {
				next = segments[i].To
			}
			walk(next, length+segments[i].Length)
			used[i] = false
		}
	}
	for city := range adjacency {
		walk(city, 0)
	}
	return best
}
