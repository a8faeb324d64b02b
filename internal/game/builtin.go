// internal/game/builtin.go
package game

import "sort"

// Built-in maps, available to the Start handshake by name without any
// external map files.

// DefaultMapName is the map used when a Start request names no map.
const DefaultMapName = "baltia"

// BuiltInMap returns a fresh copy of a built-in map by name.
func BuiltInMap(name string) (*Map, bool) {
	if name == "" {
		name = DefaultMapName
	}
	build, ok := builtInMaps[name]
	if !ok {
		return nil, false
	}
	return build(), true
}

// BuiltInMapNames lists the available built-in maps.
func BuiltInMapNames() []string {
	names := make([]string, 0, len(builtInMaps))
	for name := range builtInMaps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var builtInMaps = map[string]func() *Map{
	DefaultMapName: newBaltiaMap,
}

func newBaltiaMap() *Map {
	city := func(name CityName, lat, lng float64, routes ...Route) City {
		return City{Name: name, LatLng: LatLong{Lat: lat, Lng: lng}, Routes: routes}
	}
	route := func(dest CityName, color CardColor, length int) Route {
		return Route{Destination: dest, Color: color, Length: length}
	}

	m := &Map{
		Name: DefaultMapName,
		Cities: []City{
			city("Bergen", 60.39, 5.32,
				route("Oslo", Blue, 4),
				route("Trondheim", "", 6)),
			city("Trondheim", 63.43, 10.39,
				route("Oulu", Red, 6)),
			city("Oslo", 59.91, 10.75,
				route("Trondheim", Green, 5),
				route("Gothenburg", Black, 2),
				route("Stockholm", Yellow, 3)),
			city("Gothenburg", 57.70, 11.97,
				route("Malmo", Orange, 2)),
			city("Stockholm", 59.33, 18.06,
				route("Gothenburg", White, 2),
				route("Helsinki", Magenta, 3),
				route("Helsinki", White, 3),
				route("Turku", "", 2),
				route("Malmo", "", 4),
				route("Riga", Green, 4),
				route("Gdansk", Red, 5)),
			city("Malmo", 55.60, 13.00,
				route("Copenhagen", Red, 1),
				route("Gdansk", Blue, 3)),
			city("Copenhagen", 55.68, 12.57,
				route("Aarhus", Magenta, 1)),
			city("Aarhus", 56.16, 10.20,
				route("Gdansk", Green, 3)),
			city("Helsinki", 60.17, 24.94,
				route("Tallinn", Green, 1)),
			city("Turku", 60.45, 22.27,
				route("Helsinki", Yellow, 1),
				route("Tampere", Black, 1)),
			city("Tampere", 61.50, 23.76,
				route("Helsinki", Orange, 1),
				route("Oulu", White, 4)),
			city("Oulu", 65.01, 25.47,
				route("Helsinki", "", 5)),
			city("Tallinn", 59.44, 24.75,
				route("Riga", Red, 2)),
			city("Riga", 56.95, 24.11,
				route("Vilnius", Yellow, 2),
				route("Gdansk", Black, 4)),
			city("Vilnius", 54.69, 25.28,
				route("Gdansk", Orange, 3)),
			city("Gdansk", 54.35, 18.65),
		},
		MapCenter:               LatLong{Lat: 59.0, Lng: 18.0},
		MapZoom:                 5,
		LongTicketMinPoints:     12,
		ShortTicketsPointsRange: [2]int{5, 9},
		PointsForLongestRoute:   10,
	}
	return m.Build()
}
