package session

import (
	"github.com/mcdev12/quizlive/go/internal/quiz/protocol"
)

// Local guards for user intents. Each returns the updated session, the command
// to forward, and whether anything should be forwarded at all. A rejected
// intent never reaches the wire and produces no user-visible error.

// CreateRoom forwards the name as typed
func CreateRoom(s Session, name string) (Session, protocol.Command, bool) {
	return s, protocol.CreateRoom{Name: name}, true
}

// JoinRoom forwards name and PIN as typed
func JoinRoom(s Session, name, pin string) (Session, protocol.Command, bool) {
	return s, protocol.JoinRoom{Name: name, PIN: pin}, true
}

// StartGame is only forwarded for the host of a room that has not started
func StartGame(s Session) (Session, protocol.Command, bool) {
	if !canStart(s) {
		return s, nil, false
	}
	return s, protocol.StartGame{}, true
}

// SubmitAnswer locks the active question and forwards the option index.
// Dropped when there is no question, the answer is already locked, or the index is out of range.
func SubmitAnswer(s Session, optionIndex int) (Session, protocol.Command, bool) {
	if !canAnswer(s) {
		return s, nil, false
	}
	if optionIndex < 0 || optionIndex >= len(s.ActiveQuestion.Options) {
		return s, nil, false
	}

	s.AnswerState = AnswerLocked
	s.SelectedIndex = optionIndex
	s.Feedback = Feedback{Kind: FeedbackSubmitted}
	return s, protocol.Answer{OptionIndex: optionIndex}, true
}

// LeaveRoom tears the session down immediately and notifies the coordinator
func LeaveRoom(s Session) (Session, protocol.Command, bool) {
	return teardown(s), protocol.LeaveRoom{}, true
}

// Finish moves to the local finished screen. Nothing is sent.
func Finish(s Session) Session {
	s = clearQuestion(s)
	s.Screen = ScreenFinished
	return s
}
