package session

import (
	"github.com/mcdev12/quizlive/go/internal/quiz/protocol"
	"github.com/mcdev12/quizlive/go/internal/quiz/transport"
)

// AnswerState is the per-question submission state
type AnswerState string

const (
	AnswerUnanswered AnswerState = "unanswered"
	AnswerLocked     AnswerState = "locked"
)

// Screen is the view the rendering layer should show
type Screen string

const (
	ScreenHome     Screen = "home"
	ScreenLobby    Screen = "lobby"
	ScreenGame     Screen = "game"
	ScreenFinished Screen = "finished"
)

// FeedbackKind says which message to show under the active question
type FeedbackKind string

const (
	FeedbackNone      FeedbackKind = ""
	FeedbackSubmitted FeedbackKind = "submitted"
	FeedbackCorrect   FeedbackKind = "correct"
	FeedbackWrong     FeedbackKind = "wrong"
	FeedbackTimeout   FeedbackKind = "timeout"
)

// Feedback is the answer outcome shown for the active question
type Feedback struct {
	Kind         FeedbackKind `json:"kind,omitempty"`
	Gained       int          `json:"gained,omitempty"`
	CorrectIndex int          `json:"correct_index"`
}

// Session is one client's local view of its room and game participation.
// Room and Scoreboard are replaced wholesale, never mutated in place, so
// copies of a Session can be handed to other goroutines.
type Session struct {
	LocalPlayerID    string             `json:"local_player_id,omitempty"`
	Room             *protocol.Room     `json:"room"`
	IsHost           bool               `json:"is_host"`
	Screen           Screen             `json:"screen"`
	ActiveQuestion   *protocol.Question `json:"active_question,omitempty"`
	AnswerState      AnswerState        `json:"answer_state"`
	RemainingSeconds int                `json:"remaining_seconds"`
	SelectedIndex    int                `json:"selected_index"` // -1 when nothing submitted
	Feedback         Feedback           `json:"feedback"`
	Scoreboard       []protocol.Player  `json:"scoreboard,omitempty"`
}

// NewSession returns the pre-join idle session
func NewSession() Session {
	return Session{
		Screen:        ScreenHome,
		AnswerState:   AnswerUnanswered,
		SelectedIndex: -1,
	}
}

// Snapshot is the plain data handed to the rendering sink after every transition
type Snapshot struct {
	Session
	Status    transport.Status `json:"status"`
	CanStart  bool             `json:"can_start"`
	CanAnswer bool             `json:"can_answer"`
}

// Snapshot derives the control state from s
func (s Session) Snapshot(status transport.Status) Snapshot {
	return Snapshot{
		Session:   s,
		Status:    status,
		CanStart:  canStart(s),
		CanAnswer: canAnswer(s),
	}
}

// OperationError is a coordinator rejection keyed to the most recent operation
type OperationError struct {
	Operation protocol.Action `json:"operation,omitempty"`
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message"`
}

// Sink consumes session output. Implementations must treat player names as untrusted.
type Sink interface {
	Render(snapshot Snapshot)
	Status(status transport.Status)
	OperationError(err OperationError)
}

func canStart(s Session) bool {
	return s.IsHost && s.Room != nil && !s.Room.Started
}

func canAnswer(s Session) bool {
	return s.ActiveQuestion != nil && s.AnswerState == AnswerUnanswered
}

// hostFlag reports whether playerID is flagged host in room.
// Zero or several hosts are tolerated.
func hostFlag(room *protocol.Room, playerID string) bool {
	if room == nil || playerID == "" {
		return false
	}
	for _, p := range room.Players {
		if p.ID == playerID && p.IsHost {
			return true
		}
	}
	return false
}
