// internal/game/map.go
package game

import "sort"

// CityName identifies a city on the game map.
type CityName string

// LatLong is a map coordinate, carried through to clients for rendering.
type LatLong struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Route is one connection from a city to a destination. Color empty means the
// route has no fixed color.
type Route struct {
	Destination CityName  `json:"destination"`
	Color       CardColor `json:"color,omitempty"`
	Length      int       `json:"length"`
}

// City is a vertex of the game map with its outgoing routes. Each physical
// connection is listed once, on one of its two cities.
type City struct {
	Name   CityName `json:"name"`
	LatLng LatLong  `json:"latLng"`
	Routes []Route  `json:"routes,omitempty"`
}

// Segment is the canonical form of a map connection, as stored in player state
// and compared for occupancy. Segments are produced by Map.SegmentBetween so
// that endpoint order is normalized.
type Segment struct {
	From   CityName  `json:"from"`
	To     CityName  `json:"to"`
	Color  CardColor `json:"color,omitempty"`
	Length int       `json:"length"`
}

var pointsForSegments = map[int]int{1: 1, 2: 2, 3: 4, 4: 7, 5: 12, 6: 15, 7: 18, 8: 21}

// PointsForSegment returns the score value of a built segment of the given length.
func PointsForSegment(length int) int { return pointsForSegments[length] }

// Map is a game map together with derived data (canonical segment list and the
// ticket pools). Build must be called after constructing or unmarshalling a Map
// before any of the derived accessors are used.
type Map struct {
	Name                    string  `json:"name"`
	Cities                  []City  `json:"cities"`
	MapCenter               LatLong `json:"mapCenter"`
	MapZoom                 int     `json:"mapZoom"`
	LongTicketMinPoints     int     `json:"longTicketMinPoints"`
	ShortTicketsPointsRange [2]int  `json:"shortTicketsPointsRange"`
	PointsForLongestRoute   int     `json:"pointsForLongestRoute"`

	citiesByName       map[CityName]*City
	segments           []Segment
	longTickets        []Ticket
	shortTickets       []Ticket
	totalLength        int
	totalColoredLength int
}

// Build computes the derived data. It returns the map for chaining.
func (m *Map) Build() *Map {
	m.citiesByName = make(map[CityName]*City, len(m.Cities))
	for i := range m.Cities {
		m.citiesByName[m.Cities[i].Name] = &m.Cities[i]
	}
	m.segments = m.segments[:0]
	m.totalLength = 0
	m.totalColoredLength = 0
	for _, city := range m.Cities {
		for _, route := range city.Routes {
			m.segments = append(m.segments, Segment{
				From:   city.Name,
				To:     route.Destination,
				Color:  route.Color,
				Length: route.Length,
			})
			m.totalLength += route.Length
			if route.Color != "" {
				m.totalColoredLength += route.Length
			}
		}
	}
	tickets := m.allTickets()
	m.longTickets = m.longTickets[:0]
	m.shortTickets = m.shortTickets[:0]
	for _, t := range tickets {
		if t.Points >= m.LongTicketMinPoints {
			m.longTickets = append(m.longTickets, t)
		}
		if t.Points >= m.ShortTicketsPointsRange[0] && t.Points <= m.ShortTicketsPointsRange[1] {
			m.shortTickets = append(m.shortTickets, t)
		}
	}
	return m
}

// Segments returns every connection of the map in canonical form.
func (m *Map) Segments() []Segment { return m.segments }

// TotalSegmentsLength is the summary length of all map connections. The game
// end trigger fires when the players collectively occupy this much.
func (m *Map) TotalSegmentsLength() int { return m.totalLength }

// TotalColoredSegmentsLength is the summary length of connections with a fixed color.
func (m *Map) TotalColoredSegmentsLength() int { return m.totalColoredLength }

// LongTickets returns the pool of long destination tickets, most valuable first.
func (m *Map) LongTickets() []Ticket { return m.longTickets }

// ShortTickets returns the pool of regular destination tickets.
func (m *Map) ShortTickets() []Ticket { return m.shortTickets }

// HasCity reports whether the map contains the named city.
func (m *Map) HasCity(name CityName) bool {
	_, ok := m.citiesByName[name]
	return ok
}

// SegmentBetween returns the canonical segment connecting two cities, matching
// the requested color when two parallel routes exist. It returns false if no
// such connection is on the map.
func (m *Map) SegmentBetween(from, to CityName, color CardColor) (Segment, bool) {
	var candidate *Segment
	for i := range m.segments {
		s := &m.segments[i]
		if (s.From == from && s.To == to) || (s.From == to && s.To == from) {
			if s.Color == color {
				return *s, true
			}
			if candidate == nil {
				candidate = s
			}
		}
	}
	if color == "" && candidate != nil {
		return *candidate, true
	}
	return Segment{}, false
}

// allTickets derives the destination ticket pool: every pair of cities not
// directly connected, valued at the length of the shortest path between them.
func (m *Map) allTickets() []Ticket {
	const inf = int(^uint(0) >> 1)

	n := len(m.Cities)
	index := make(map[CityName]int, n)
	for i, city := range m.Cities {
		index[city.Name] = i
	}
	dist := make([][]int, n)
	for i := range dist {
		dist[i] = make([]int, n)
		for j := range dist[i] {
			if i != j {
				dist[i][j] = inf
			}
		}
	}
	direct := make(map[[2]int]bool)
	for _, seg := range m.segments {
		i, j := index[seg.From], index[seg.To]
		if seg.Length < dist[i][j] {
			dist[i][j] = seg.Length
			dist[j][i] = seg.Length
		}
		direct[[2]int{i, j}] = true
		direct[[2]int{j, i}] = true
	}
	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			if dist[i][k] == inf {
				continue
			}
			for j := 0; j < n; j++ {
				if dist[k][j] != inf && dist[i][j] > dist[i][k]+dist[k][j] {
					dist[i][j] = dist[i][k] + dist[k][j]
				}
			}
		}
	}

	var tickets []Ticket
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if direct[[2]int{i, j}] || dist[i][j] == inf {
				continue
			}
			tickets = append(tickets, Ticket{
				From:   m.Cities[i].Name,
				To:     m.Cities[j].Name,
				Points: dist[i][j],
			})
		}
	}
	sort.Slice(tickets, func(a, b int) bool { return tickets[a].Points > tickets[b].Points })
	return tickets
}
