package render

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode"

	"github.com/mattn/go-isatty"

	"github.com/mcdev12/quizlive/go/internal/quiz/protocol"
	"github.com/mcdev12/quizlive/go/internal/quiz/session"
	"github.com/mcdev12/quizlive/go/internal/quiz/transport"
)

const clearScreen = "\x1b[H\x1b[2J"

// Console renders session snapshots as plain text screens
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	clear bool
}

// NewConsole writes to out, clearing the screen between frames when out is a terminal
func NewConsole(out io.Writer) *Console {
	return &Console{out: out, clear: isTerminal(out)}
}

func (c *Console) Render(snapshot session.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.clear {
		io.WriteString(c.out, clearScreen)
	}
	io.WriteString(c.out, Screen(snapshot))
}

func (c *Console) Status(status transport.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "connection: %s\n", status)
}

func (c *Console) OperationError(err session.OperationError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err.Operation != "" {
		fmt.Fprintf(c.out, "error (%s): %s\n", err.Operation, escape(err.Message))
		return
	}
	fmt.Fprintf(c.out, "error: %s\n", escape(err.Message))
}

// Screen renders a snapshot. The output depends only on the snapshot.
func Screen(snap session.Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "== quiz == [%s]\n", statusLabel(snap.Status))

	switch snap.Screen {
	case session.ScreenLobby:
		writeLobby(&b, snap)
	case session.ScreenGame:
		writeGame(&b, snap)
	case session.ScreenFinished:
		b.WriteString("Game finished.\n")
		writeScoreboard(&b, snap)
		b.WriteString("\ncommands: leave | quit\n")
	default:
		b.WriteString("Not in a room.\n")
		b.WriteString("\ncommands: create <name> | join <pin> <name> | quit\n")
	}
	return b.String()
}

func writeLobby(b *strings.Builder, snap session.Snapshot) {
	if snap.Room == nil {
		b.WriteString("Waiting for room...\n")
		return
	}

	fmt.Fprintf(b, "Room %s  %s\n", escape(snap.Room.PIN), playerCount(*snap.Room))
	writePlayers(b, snap.Room.Players, snap.LocalPlayerID, false)

	switch {
	case snap.CanStart:
		b.WriteString("\n[start] enabled\n")
	case snap.Room.Started:
		b.WriteString("\n[start] disabled (game started)\n")
	default:
		b.WriteString("\n[start] disabled (waiting for host)\n")
	}
	b.WriteString("commands: start | leave | quit\n")
}

func writeGame(b *strings.Builder, snap session.Snapshot) {
	if snap.Room != nil {
		fmt.Fprintf(b, "Room %s\n", escape(snap.Room.PIN))
	}

	q := snap.ActiveQuestion
	if q == nil {
		b.WriteString("Waiting for the next question...\n")
		writeScoreboard(b, snap)
		return
	}

	fmt.Fprintf(b, "\n%s", escape(q.Text))
	if q.Difficulty != "" {
		fmt.Fprintf(b, " (%s)", escape(q.Difficulty))
	}
	b.WriteString("\n")
	for i, opt := range q.Options {
		marker := " "
		if i == snap.SelectedIndex {
			marker = ">"
		}
		fmt.Fprintf(b, " %s %d. %s\n", marker, i+1, escape(opt))
	}
	fmt.Fprintf(b, "\nTime left: %ds\n", snap.RemainingSeconds)

	if msg := feedbackMessage(snap); msg != "" {
		b.WriteString(msg + "\n")
	}
	writeScoreboard(b, snap)

	if snap.CanAnswer {
		fmt.Fprintf(b, "\ncommands: answer <1-%d> | leave | finish | quit\n", len(q.Options))
	} else {
		b.WriteString("\ncommands: leave | finish | quit\n")
	}
}

func feedbackMessage(snap session.Snapshot) string {
	fb := snap.Feedback
	switch fb.Kind {
	case session.FeedbackSubmitted:
		return "Answer submitted, waiting for result..."
	case session.FeedbackCorrect:
		return fmt.Sprintf("Correct! +%d points", fb.Gained)
	case session.FeedbackWrong:
		if q := snap.ActiveQuestion; q != nil && fb.CorrectIndex >= 0 && fb.CorrectIndex < len(q.Options) {
			return fmt.Sprintf("Wrong. Correct answer: %d. %s", fb.CorrectIndex+1, escape(q.Options[fb.CorrectIndex]))
		}
		return "Wrong."
	case session.FeedbackTimeout:
		return "Time's up!"
	}
	return ""
}

func writeScoreboard(b *strings.Builder, snap session.Snapshot) {
	if len(snap.Scoreboard) == 0 {
		return
	}
	b.WriteString("\nScoreboard:\n")
	writePlayers(b, snap.Scoreboard, snap.LocalPlayerID, true)
}

func writePlayers(b *strings.Builder, players []protocol.Player, localID string, withScore bool) {
	for i, p := range players {
		line := fmt.Sprintf("  %d. %s", i+1, escape(p.Name))
		if withScore && p.Score != nil {
			line += fmt.Sprintf(" - %d", *p.Score)
		}
		if p.IsHost {
			line += " (host)"
		}
		if localID != "" && p.ID == localID {
			line += " (you)"
		}
		b.WriteString(line + "\n")
	}
}

func playerCount(room protocol.Room) string {
	if room.MaxPlayers > 0 {
		return fmt.Sprintf("%d/%d players", room.Count, room.MaxPlayers)
	}
	if room.Count == 1 {
		return "1 player"
	}
	return fmt.Sprintf("%d players", room.Count)
}

func statusLabel(status transport.Status) string {
	if status == "" {
		return string(transport.StatusClosed)
	}
	return string(status)
}

// escape neutralises control characters and terminal escape sequences in untrusted text
func escape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == ' ' || (unicode.IsGraphic(r) && !unicode.Is(unicode.Bidi_Control, r)):
			b.WriteRune(r)
		case r <= 0xFFFF:
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			fmt.Fprintf(&b, `\U%08x`, r)
		}
	}
	return b.String()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
