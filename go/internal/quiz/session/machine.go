package session

import (
	"github.com/mcdev12/quizlive/go/internal/quiz/protocol"
)

// TimerAction tells the owner of the question timer what to do after a transition
type TimerAction int

const (
	TimerKeep TimerAction = iota
	TimerRestart
	TimerStop
)

func (a TimerAction) String() string {
	switch a {
	case TimerRestart:
		return "restart"
	case TimerStop:
		return "stop"
	default:
		return "keep"
	}
}

// Apply is the session transition function. It never mutates s in place.
// ServerError and Pong are not state transitions and leave s unchanged.
func Apply(s Session, ev protocol.Event) (Session, TimerAction) {
	switch e := ev.(type) {
	case protocol.Handshake:
		s.LocalPlayerID = e.PlayerID
		return s, TimerKeep

	case protocol.RoomCreated:
		if e.PlayerID != "" {
			s.LocalPlayerID = e.PlayerID
		}
		s = enterLobby(s, e.Room)
		s.IsHost = true
		return s, TimerStop

	case protocol.RoomJoined:
		if e.PlayerID != "" {
			s.LocalPlayerID = e.PlayerID
		}
		// isHost waits for the next room_state
		return enterLobby(s, e.Room), TimerStop

	case protocol.RoomState:
		room := e.Room
		s.Room = &room
		s.IsHost = hostFlag(s.Room, s.LocalPlayerID)
		if s.Screen == ScreenHome {
			s.Screen = ScreenLobby
		}
		return s, TimerKeep

	case protocol.RoomLeft:
		return teardown(s), TimerStop

	case protocol.GameStarted:
		if s.Screen != ScreenFinished {
			s.Screen = ScreenGame
		}
		return s, TimerKeep

	case protocol.QuestionReceived:
		q := e.Question
		s.ActiveQuestion = &q
		s.AnswerState = AnswerUnanswered
		s.RemainingSeconds = q.Duration
		s.SelectedIndex = -1
		s.Feedback = Feedback{}
		s.Screen = ScreenGame
		return s, TimerRestart

	case protocol.AnswerResult:
		if s.ActiveQuestion == nil {
			return s, TimerKeep
		}
		kind := FeedbackWrong
		if e.Correct {
			kind = FeedbackCorrect
		}
		s.Feedback = Feedback{Kind: kind, Gained: e.Gained, CorrectIndex: e.CorrectIndex}
		s.AnswerState = AnswerLocked
		return s, TimerStop

	case protocol.Scoreboard:
		s.Scoreboard = e.Players
		return s, TimerKeep

	case protocol.RoundEnded, protocol.ServerError, protocol.Pong:
		return s, TimerKeep
	}

	return s, TimerKeep
}

// Tick applies one elapsed second to the active question.
// At zero the answer is locked; the timeout feedback never overwrites an earlier one.
func Tick(s Session) (Session, TimerAction) {
	if s.ActiveQuestion == nil || s.RemainingSeconds <= 0 {
		return s, TimerStop
	}

	s.RemainingSeconds--
	if s.RemainingSeconds > 0 {
		return s, TimerKeep
	}

	if s.AnswerState == AnswerUnanswered {
		s.AnswerState = AnswerLocked
	}
	if s.Feedback.Kind == FeedbackNone {
		s.Feedback = Feedback{Kind: FeedbackTimeout}
	}
	return s, TimerStop
}

func enterLobby(s Session, room protocol.Room) Session {
	s.Room = &room
	s.Screen = ScreenLobby
	s = clearQuestion(s)
	s.Scoreboard = nil
	return s
}

func clearQuestion(s Session) Session {
	s.ActiveQuestion = nil
	s.AnswerState = AnswerUnanswered
	s.RemainingSeconds = 0
	s.SelectedIndex = -1
	s.Feedback = Feedback{}
	return s
}

// teardown returns to the pre-join idle state. The handshake id survives.
func teardown(s Session) Session {
	idle := NewSession()
	idle.LocalPlayerID = s.LocalPlayerID
	return idle
}
