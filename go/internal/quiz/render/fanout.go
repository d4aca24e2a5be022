package render

import (
	"github.com/mcdev12/quizlive/go/internal/quiz/session"
	"github.com/mcdev12/quizlive/go/internal/quiz/transport"
)

// Fanout forwards every call to each sink in order
type Fanout []session.Sink

func (f Fanout) Render(snapshot session.Snapshot) {
	for _, s := range f {
		s.Render(snapshot)
	}
}

func (f Fanout) Status(status transport.Status) {
	for _, s := range f {
		s.Status(status)
	}
}

func (f Fanout) OperationError(err session.OperationError) {
	for _, s := range f {
		s.OperationError(err)
	}
}
