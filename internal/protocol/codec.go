// internal/protocol/codec.go
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/avkotov/railways/internal/game"
)

// Steady-state request types. Join and reconnect never appear here; the
// session synthesizes those during the handshake.
const (
	ReqLeave          = "leave"
	ReqMessage        = "message"
	ReqPickTickets    = "pickTickets"
	ReqConfirmTickets = "confirmTickets"
	ReqPickLoco       = "pickLoco"
	ReqPickCards      = "pickCards"
	ReqBuildSegment   = "build"
	ReqBuildStation   = "station"
)

// requestFrame is the JSON envelope of a steady-state request. Only the
// fields of the tagged variant are populated.
type requestFrame struct {
	Type          string           `json:"type"`
	Message       string           `json:"message,omitempty"`
	TicketsToKeep []game.Ticket    `json:"ticketsToKeep,omitempty"`
	Ix            int              `json:"ix,omitempty"`
	First         *game.PickedCard `json:"first,omitempty"`
	Second        *game.PickedCard `json:"second,omitempty"`
	From          game.CityName    `json:"from,omitempty"`
	To            game.CityName    `json:"to,omitempty"`
	Target        game.CityName    `json:"target,omitempty"`
	Color         game.CardColor   `json:"color,omitempty"`
	Cards         []game.Card      `json:"cards,omitempty"`
}

// EncodeRequest serializes a steady-state request. Join and reconnect
// requests are handshake-only and are rejected here.
func EncodeRequest(req game.Request) ([]byte, error) {
	var frame requestFrame
	switch r := req.(type) {
	case game.LeaveRequest:
		frame.Type = ReqLeave
	case game.ChatRequest:
		frame.Type = ReqMessage
		frame.Message = r.Message
	case game.PickTicketsRequest:
		frame.Type = ReqPickTickets
	case game.ConfirmTicketsRequest:
		frame.Type = ReqConfirmTickets
		frame.TicketsToKeep = r.TicketsToKeep
	case game.PickLocoRequest:
		frame.Type = ReqPickLoco
		frame.Ix = r.Ix
	case game.PickCardsRequest:
		first, second := r.First, r.Second
		frame.Type = ReqPickCards
		frame.First = &first
		frame.Second = &second
	case game.BuildSegmentRequest:
		frame.Type = ReqBuildSegment
		frame.From = r.From
		frame.To = r.To
		frame.Color = r.Color
		frame.Cards = r.Cards
	case game.BuildStationRequest:
		frame.Type = ReqBuildStation
		frame.Target = r.Target
		frame.Cards = r.Cards
	default:
		return nil, fmt.Errorf("protocol: request %T is not a wire request", req)
	}
	return json.Marshal(frame)
}

// DecodeRequest parses a steady-state request frame. A malformed frame or an
// unknown type tag is a protocol violation and the caller drops the connection.
func DecodeRequest(data []byte) (game.Request, error) {
	var frame requestFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("protocol: malformed request frame: %w", err)
	}
	switch frame.Type {
	case ReqLeave:
		return game.LeaveRequest{}, nil
	case ReqMessage:
		return game.ChatRequest{Message: frame.Message}, nil
	case ReqPickTickets:
		return game.PickTicketsRequest{}, nil
	case ReqConfirmTickets:
		return game.ConfirmTicketsRequest{TicketsToKeep: frame.TicketsToKeep}, nil
	case ReqPickLoco:
		return game.PickLocoRequest{Ix: frame.Ix}, nil
	case ReqPickCards:
		if frame.First == nil || frame.Second == nil {
			return nil, fmt.Errorf("protocol: pickCards frame misses a pick")
		}
		return game.PickCardsRequest{First: *frame.First, Second: *frame.Second}, nil
	case ReqBuildSegment:
		return game.BuildSegmentRequest{From: frame.From, To: frame.To, Color: frame.Color, Cards: frame.Cards}, nil
	case ReqBuildStation:
		return game.BuildStationRequest{Target: frame.Target, Cards: frame.Cards}, nil
	default:
		return nil, fmt.Errorf("protocol: unknown request type %q", frame.Type)
	}
}

// Response frame types.
const (
	RespState         = "state"
	RespObserverState = "stateForObserver"
	RespEnd           = "end"
	RespMessage       = "message"
	RespError         = "error"
)

// Response is a server-to-client frame. The type tag selects which fields are
// populated; an action annotates state and end frames with what just happened.
type Response struct {
	Type         string                `json:"type"`
	State        *game.PlayerStateView `json:"state,omitempty"`
	ObserverView *game.ObserverView    `json:"observerView,omitempty"`
	Results      []game.PlayerResult   `json:"results,omitempty"`
	Action       *game.Action          `json:"action,omitempty"`
	From         string                `json:"from,omitempty"`
	Message      string                `json:"message,omitempty"`
	Error        string                `json:"error,omitempty"`
}

// StateResponse wraps a personalized state view.
func StateResponse(view game.PlayerStateView, action *game.Action) Response {
	return Response{Type: RespState, State: &view, Action: action}
}

// ObserverStateResponse wraps the shared observer view.
func ObserverStateResponse(view game.ObserverView, action *game.Action) Response {
	return Response{Type: RespObserverState, ObserverView: &view, Action: action}
}

// EndResponse carries the final results once the game has ended.
func EndResponse(results []game.PlayerResult, action *game.Action) Response {
	return Response{Type: RespEnd, Results: results, Action: action}
}

// ChatResponse fans a chat line out to every participant.
func ChatResponse(from, message string) Response {
	return Response{Type: RespMessage, From: from, Message: message}
}

// ErrorResponse reports a rejected request back to its sender only.
func ErrorResponse(text string) Response {
	return Response{Type: RespError, Error: text}
}

// EncodeResponse serializes a response frame.
func EncodeResponse(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse parses a server frame on the client side.
func DecodeResponse(data []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, fmt.Errorf("protocol: malformed response frame: %w", err)
	}
	switch resp.Type {
	case RespState, RespObserverState, RespEnd, RespMessage, RespError:
		return resp, nil
	default:
		return Response{}, fmt.Errorf("protocol: unknown response type %q", resp.Type)
	}
}

// EncodeConnectRequest serializes the handshake request frame.
func EncodeConnectRequest(req ConnectRequest) ([]byte, error) {
	switch req.Type {
	case ConnectStart, ConnectJoin, ConnectReconnect, ConnectObserve:
	default:
		return nil, fmt.Errorf("protocol: unknown connect type %q", req.Type)
	}
	return json.Marshal(req)
}

// DecodeConnectRequest parses the first frame of a connection.
func DecodeConnectRequest(data []byte) (ConnectRequest, error) {
	var req ConnectRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return ConnectRequest{}, fmt.Errorf("protocol: malformed connect frame: %w", err)
	}
	switch req.Type {
	case ConnectStart, ConnectJoin, ConnectReconnect, ConnectObserve:
		return req, nil
	default:
		return ConnectRequest{}, fmt.Errorf("protocol: unknown connect type %q", req.Type)
	}
}

// EncodeConnectResponse serializes the handshake response frame.
func EncodeConnectResponse(resp ConnectResponse) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeConnectResponse parses the handshake response on the client side.
func DecodeConnectResponse(data []byte) (ConnectResponse, error) {
	var resp ConnectResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return ConnectResponse{}, fmt.Errorf("protocol: malformed connect response: %w", err)
	}
	switch resp.Type {
	case ConnectedAsPlayer, ConnectedAsObserver, ConnectFailed:
		return resp, nil
	default:
		return ConnectResponse{}, fmt.Errorf("protocol: unknown connect response type %q", resp.Type)
	}
}
