package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// EventType is the "type" field of an inbound frame
type EventType string

const (
	EventTypeRoomJoined   EventType = "room_joined"
	EventTypeRoomCreated  EventType = "room_created"
	EventTypeRoomState    EventType = "room_state"
	EventTypeGameStarted  EventType = "game_started"
	EventTypeQuestion     EventType = "question"
	EventTypeAnswerResult EventType = "answer_result"
	EventTypeScoreboard   EventType = "scoreboard"
	EventTypeRoundEnded   EventType = "round_ended"
	EventTypeError        EventType = "error"
	EventTypePong         EventType = "pong"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownType    = errors.New("unknown event type")
	ErrMissingField   = errors.New("missing required field")
)

// Event is the closed set of inbound events. Only this package can add variants.
type Event interface {
	Type() EventType
	isEvent()
}

// Handshake assigns the local player id right after the connection opens
type Handshake struct {
	PlayerID string
}

// RoomCreated confirms a create_room; the issuer is the host
type RoomCreated struct {
	PlayerID string // optional
	Room     Room
}

// RoomJoined confirms a join_room with the joined room snapshot
type RoomJoined struct {
	PlayerID string // optional
	Room     Room
}

// RoomState replaces the room wholesale
type RoomState struct {
	Room Room
}

// RoomLeft is the room_state "left" marker; it tears the session down
type RoomLeft struct{}

type GameStarted struct{}

type QuestionReceived struct {
	Question Question
}

type AnswerResult struct {
	Correct      bool
	Gained       int
	CorrectIndex int
}

// Scoreboard carries the live ranking, scores included
type Scoreboard struct {
	Players []Player
}

// RoundEnded is informational only
type RoundEnded struct{}

// ServerError is an operation-level rejection (bad PIN, not host, ...)
type ServerError struct {
	Code    string
	Message string
}

type Pong struct{}

func (Handshake) Type() EventType        { return EventTypeRoomJoined }
func (RoomCreated) Type() EventType      { return EventTypeRoomCreated }
func (RoomJoined) Type() EventType       { return EventTypeRoomJoined }
func (RoomState) Type() EventType        { return EventTypeRoomState }
func (RoomLeft) Type() EventType         { return EventTypeRoomState }
func (GameStarted) Type() EventType      { return EventTypeGameStarted }
func (QuestionReceived) Type() EventType { return EventTypeQuestion }
func (AnswerResult) Type() EventType     { return EventTypeAnswerResult }
func (Scoreboard) Type() EventType       { return EventTypeScoreboard }
func (RoundEnded) Type() EventType       { return EventTypeRoundEnded }
func (ServerError) Type() EventType      { return EventTypeError }
func (Pong) Type() EventType             { return EventTypePong }

func (Handshake) isEvent()        {}
func (RoomCreated) isEvent()      {}
func (RoomJoined) isEvent()       {}
func (RoomState) isEvent()        {}
func (RoomLeft) isEvent()         {}
func (GameStarted) isEvent()      {}
func (QuestionReceived) isEvent() {}
func (AnswerResult) isEvent()     {}
func (Scoreboard) isEvent()       {}
func (RoundEnded) isEvent()       {}
func (ServerError) isEvent()      {}
func (Pong) isEvent()             {}

type inboundFrame struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Wire shapes with pointer fields so missing required fields can be told apart from zero values.

type roomPayload struct {
	PIN        *string  `json:"pin"`
	Players    []Player `json:"players"`
	Started    bool     `json:"started"`
	Count      int      `json:"count"`
	MaxPlayers int      `json:"maxPlayers"`
}

type membershipPayload struct {
	PlayerID string       `json:"playerId"`
	Room     *roomPayload `json:"room"`
}

type roomStatePayload struct {
	Left bool `json:"left"`
	roomPayload
}

type questionPayload struct {
	Question   *string  `json:"question"`
	Options    []string `json:"options"`
	Difficulty string   `json:"difficulty"`
	Duration   *int     `json:"duration"`
}

type answerResultPayload struct {
	Correct      *bool `json:"correct"`
	Gained       int   `json:"gained"`
	CorrectIndex *int  `json:"correctIndex"`
}

type scoreboardPayload struct {
	Players []Player `json:"players"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Decode parses one inbound frame into its typed event.
// Frames that fail to parse, carry an unknown type, or miss required fields return an error;
// callers are expected to drop them.
func Decode(data []byte) (Event, error) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch frame.Type {
	case EventTypeRoomJoined:
		var payload membershipPayload
		if err := decodePayload(frame, &payload); err != nil {
			return nil, err
		}
		if payload.Room == nil {
			if payload.PlayerID == "" {
				return nil, missing(frame.Type, "playerId or room")
			}
			return Handshake{PlayerID: payload.PlayerID}, nil
		}
		room, err := payload.Room.toRoom(frame.Type)
		if err != nil {
			return nil, err
		}
		return RoomJoined{PlayerID: payload.PlayerID, Room: room}, nil

	case EventTypeRoomCreated:
		var payload membershipPayload
		if err := decodePayload(frame, &payload); err != nil {
			return nil, err
		}
		if payload.Room == nil {
			return nil, missing(frame.Type, "room")
		}
		room, err := payload.Room.toRoom(frame.Type)
		if err != nil {
			return nil, err
		}
		return RoomCreated{PlayerID: payload.PlayerID, Room: room}, nil

	case EventTypeRoomState:
		var payload roomStatePayload
		if err := decodePayload(frame, &payload); err != nil {
			return nil, err
		}
		if payload.Left {
			return RoomLeft{}, nil
		}
		room, err := payload.roomPayload.toRoom(frame.Type)
		if err != nil {
			return nil, err
		}
		return RoomState{Room: room}, nil

	case EventTypeGameStarted:
		// the payload may repeat the room snapshot; it is not used
		return GameStarted{}, nil

	case EventTypeQuestion:
		var payload questionPayload
		if err := decodePayload(frame, &payload); err != nil {
			return nil, err
		}
		if payload.Question == nil {
			return nil, missing(frame.Type, "question")
		}
		if len(payload.Options) < 2 {
			return nil, missing(frame.Type, "options")
		}
		if payload.Duration == nil || *payload.Duration <= 0 {
			return nil, missing(frame.Type, "duration")
		}
		return QuestionReceived{Question: Question{
			Text:       *payload.Question,
			Options:    payload.Options,
			Difficulty: payload.Difficulty,
			Duration:   *payload.Duration,
		}}, nil

	case EventTypeAnswerResult:
		var payload answerResultPayload
		if err := decodePayload(frame, &payload); err != nil {
			return nil, err
		}
		if payload.Correct == nil {
			return nil, missing(frame.Type, "correct")
		}
		if payload.CorrectIndex == nil {
			return nil, missing(frame.Type, "correctIndex")
		}
		return AnswerResult{
			Correct:      *payload.Correct,
			Gained:       payload.Gained,
			CorrectIndex: *payload.CorrectIndex,
		}, nil

	case EventTypeScoreboard:
		var payload scoreboardPayload
		if err := decodePayload(frame, &payload); err != nil {
			return nil, err
		}
		if payload.Players == nil {
			return nil, missing(frame.Type, "players")
		}
		return Scoreboard{Players: payload.Players}, nil

	case EventTypeRoundEnded:
		return RoundEnded{}, nil

	case EventTypeError:
		var payload errorPayload
		if err := decodePayload(frame, &payload); err != nil {
			return nil, err
		}
		if payload.Message == "" && payload.Code == "" {
			return nil, missing(frame.Type, "message")
		}
		if payload.Message == "" {
			payload.Message = payload.Code
		}
		return ServerError{Code: payload.Code, Message: payload.Message}, nil

	case EventTypePong:
		return Pong{}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, frame.Type)
	}
}

func decodePayload(frame inboundFrame, v any) error {
	if len(frame.Payload) == 0 || bytes.Equal(frame.Payload, []byte("null")) {
		return missing(frame.Type, "payload")
	}
	if err := json.Unmarshal(frame.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedFrame, frame.Type, err)
	}
	return nil
}

func (p roomPayload) toRoom(t EventType) (Room, error) {
	if p.PIN == nil {
		return Room{}, missing(t, "room.pin")
	}
	if p.Players == nil {
		return Room{}, missing(t, "room.players")
	}
	return Room{
		PIN:        *p.PIN,
		Players:    p.Players,
		Started:    p.Started,
		Count:      p.Count,
		MaxPlayers: p.MaxPlayers,
	}, nil
}

func missing(t EventType, field string) error {
	return fmt.Errorf("%w: %s.%s", ErrMissingField, t, field)
}
