package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Action identifies an outbound command understood by the coordinator
type Action string

const (
	ActionCreateRoom Action = "create_room"
	ActionJoinRoom   Action = "join_room"
	ActionStartGame  Action = "start_game"
	ActionAnswer     Action = "answer"
	ActionLeaveRoom  Action = "leave_room"
	ActionPing       Action = "ping"
)

// ErrNilCommand is returned when encoding a nil command
var ErrNilCommand = errors.New("nil command")

// Player is one room member as reported by the coordinator.
// Name is user supplied and must be escaped by whoever displays it.
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	IsHost bool   `json:"isHost"`
	Score  *int   `json:"score,omitempty"` // only present on scoreboard events
}

// Room is a server-authoritative room snapshot. It is replaced in full, never merged.
type Room struct {
	PIN        string   `json:"pin"`
	Players    []Player `json:"players"`
	Started    bool     `json:"started"`
	Count      int      `json:"count"`
	MaxPlayers int      `json:"maxPlayers,omitempty"`
}

// Question is a timed multiple-choice question. The option index is the answer identifier.
type Question struct {
	Text       string   `json:"question"`
	Options    []string `json:"options"`
	Difficulty string   `json:"difficulty"`
	Duration   int      `json:"duration"` // seconds
}

// Command is an outbound intent; its JSON encoding is the frame payload
type Command interface {
	Action() Action
}

type CreateRoom struct {
	Name string `json:"name"`
}

type JoinRoom struct {
	Name string `json:"name"`
	PIN  string `json:"pin"`
}

type StartGame struct{}

type Answer struct {
	OptionIndex int `json:"optionIndex"`
}

type LeaveRoom struct{}

// Ping is the application-level keepalive; the coordinator replies with pong
type Ping struct{}

func (CreateRoom) Action() Action { return ActionCreateRoom }
func (JoinRoom) Action() Action   { return ActionJoinRoom }
func (StartGame) Action() Action  { return ActionStartGame }
func (Answer) Action() Action     { return ActionAnswer }
func (LeaveRoom) Action() Action  { return ActionLeaveRoom }
func (Ping) Action() Action       { return ActionPing }

type outboundFrame struct {
	Action  Action  `json:"action"`
	Payload Command `json:"payload"`
}

// EncodeCommand serializes a command as an {action, payload} frame.
// Payload contents are not validated; that is the coordinator's job.
func EncodeCommand(cmd Command) ([]byte, error) {
	if cmd == nil {
		return nil, fmt.Errorf("encode command: %w", ErrNilCommand)
	}

	data, err := json.Marshal(outboundFrame{Action: cmd.Action(), Payload: cmd})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.Action(), err)
	}
	return data, nil
}
