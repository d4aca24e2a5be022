package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	errQuit           = errors.New("quit")
	errUnknownCommand = errors.New("unknown command")
	errUsage          = errors.New("usage")
)

// intents is the user-facing side of the session controller
type intents interface {
	Connect()
	CreateRoom(name string)
	JoinRoom(name, pin string)
	StartGame()
	Answer(optionIndex int)
	LeaveRoom()
	Finish()
}

// dispatch parses one input line and issues the matching intent.
// Names and PINs are forwarded as typed; the coordinator validates them.
func dispatch(line string, in intents) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "create":
		if len(args) == 0 {
			return fmt.Errorf("%w: create <name>", errUsage)
		}
		in.CreateRoom(strings.Join(args, " "))

	case "join":
		if len(args) < 2 {
			return fmt.Errorf("%w: join <pin> <name>", errUsage)
		}
		in.JoinRoom(strings.Join(args[1:], " "), args[0])

	case "start":
		in.StartGame()

	case "answer", "a":
		if len(args) != 1 {
			return fmt.Errorf("%w: answer <option number>", errUsage)
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("%w: answer <option number>", errUsage)
		}
		in.Answer(n - 1)

	case "leave":
		in.LeaveRoom()

	case "finish":
		in.Finish()

	case "connect":
		in.Connect()

	case "quit", "exit":
		return errQuit

	default:
		return fmt.Errorf("%w: %q", errUnknownCommand, cmd)
	}
	return nil
}

// readCommands feeds lines from r to dispatch until quit or EOF
func readCommands(r io.Reader, out io.Writer, in intents) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		err := dispatch(scanner.Text(), in)
		switch {
		case err == nil:
		case errors.Is(err, errQuit):
			return
		default:
			fmt.Fprintln(out, err)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("failed to read commands")
	}
}
