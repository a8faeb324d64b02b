// internal/game/requests.go
package game

// Request is a mutating game request. Variants coming off the wire are decoded
// by the protocol package; Join, Reconnect and Leave are also synthesized by
// the session during the connection handshake and on transport failures.
type Request interface {
	isRequest()
}

// JoinRequest seats a new player. Produced by the connection handshake, never
// read from the steady-state wire.
type JoinRequest struct {
	Color PlayerColor
}

// ReconnectRequest clears the away flag of an existing seat. Produced by the
// connection handshake.
type ReconnectRequest struct{}

// LeaveRequest marks the requester away. Either explicit from the client or
// synthesized when a connection dies.
type LeaveRequest struct{}

// ChatRequest broadcasts a chat line verbatim. Never mutates game state.
type ChatRequest struct {
	Message string
}

// PickTicketsRequest asks for a destination ticket offer.
type PickTicketsRequest struct{}

// ConfirmTicketsRequest resolves a pending tickets choice.
type ConfirmTicketsRequest struct {
	TicketsToKeep []Ticket
}

// PickedCard is one card pick: either the face-down deck or an open card at a
// given row index.
type PickedCard struct {
	Closed bool `json:"closed,omitempty"`
	Ix     int  `json:"ix"`
	Card   Card `json:"card,omitempty"`
}

// PickLocoRequest takes a single open loco, ending the turn immediately.
type PickLocoRequest struct {
	Ix int
}

// PickCardsRequest takes two cards, each open or closed.
type PickCardsRequest struct {
	First  PickedCard
	Second PickedCard
}

// BuildSegmentRequest occupies a map connection, paying with cards. Color
// selects between parallel routes and may be left empty.
type BuildSegmentRequest struct {
	From  CityName
	To    CityName
	Color CardColor
	Cards []Card
}

// BuildStationRequest places a station in a city, paying with cards of one color.
type BuildStationRequest struct {
	Target CityName
	Cards  []Card
}

func (JoinRequest) isRequest()           {}
func (ReconnectRequest) isRequest()      {}
func (LeaveRequest) isRequest()          {}
func (ChatRequest) isRequest()           {}
func (PickTicketsRequest) isRequest()    {}
func (ConfirmTicketsRequest) isRequest() {}
func (PickLocoRequest) isRequest()       {}
func (PickCardsRequest) isRequest()      {}
func (BuildSegmentRequest) isRequest()   {}
func (BuildStationRequest) isRequest()   {}

// ActionKind tags the "last action" annotation attached to state broadcasts.
type ActionKind string

const (
	ActionJoin           ActionKind = "join"
	ActionLeave          ActionKind = "leave"
	ActionConfirmTickets ActionKind = "confirmTickets"
	ActionPickLoco       ActionKind = "pickLoco"
	ActionPickCards      ActionKind = "pickCards"
	ActionPickTickets    ActionKind = "pickTickets"
	ActionBuildSegment   ActionKind = "build"
	ActionBuildStation   ActionKind = "station"
)

// Action describes the request that produced a state broadcast, so clients can
// animate what just happened. Hidden information is reduced: confirmed tickets
// appear as a count, closed card picks stay closed.
type Action struct {
	Kind        ActionKind   `json:"kind"`
	Player      string       `json:"player"`
	TicketsKept int          `json:"ticketsKept,omitempty"`
	Cards       []PickedCard `json:"cards,omitempty"`
	Segment     *Segment     `json:"segment,omitempty"`
	Target      CityName     `json:"target,omitempty"`
}

// ActionFor maps an applied request to its broadcast annotation. Chat messages
// fan out separately and produce no action.
func ActionFor(req Request, player string) *Action {
	switch r := req.(type) {
	case JoinRequest, ReconnectRequest:
		return &Action{Kind: ActionJoin, Player: player}
	case LeaveRequest:
		return &Action{Kind: ActionLeave, Player: player}
	case ConfirmTicketsRequest:
		return &Action{Kind: ActionConfirmTickets, Player: player, TicketsKept: len(r.TicketsToKeep)}
	case PickLocoRequest:
		return &Action{Kind: ActionPickLoco, Player: player}
	case PickCardsRequest:
		picks := []PickedCard{r.First, r.Second}
		for i := range picks {
			if picks[i].Closed {
				picks[i].Card = Card{}
			}
		}
		return &Action{Kind: ActionPickCards, Player: player, Cards: picks}
	case PickTicketsRequest:
		return &Action{Kind: ActionPickTickets, Player: player}
	case BuildSegmentRequest:
		seg := Segment{From: r.From, To: r.To, Color: r.Color, Length: len(r.Cards)}
		return &Action{Kind: ActionBuildSegment, Player: player, Segment: &seg}
	case BuildStationRequest:
		return &Action{Kind: ActionBuildStation, Player: player, Target: r.Target}
	default:
		return nil
	}
}
