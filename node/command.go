// Package node runs the two ends of the link: a sender that analyses audio
// and streams features on a fixed tick, and a receiver that decodes them and
// drives a renderer from the same kind of tick.
package node

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/RyanBlaney/sonido-link/protocol"
)

var (
	// ErrBadCommand is returned for a line that is not a command
	ErrBadCommand = errors.New("malformed command")
	// ErrIncompleteCommand is returned when a command that omits pattern or
	// brightness is sent over the link, which has no way to say "keep"
	ErrIncompleteCommand = errors.New("command omits pattern or brightness")
)

// Unset marks a command value that was not given
const Unset = -1

// Command is a parsed control line
type Command struct {
	Mode       protocol.Mode
	Pattern    int
	Color      int
	Brightness int
}

// ParseCommand parses one control line:
//
//	M                mode only, keep saved pattern and brightness
//	M,3,200          mode, pattern, brightness
//	M,3,1,200        mode, pattern, color, brightness
//
// A leading "C" is accepted and ignored, as is surrounding whitespace.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if len(line) > 1 && (line[0] == 'C' || line[0] == 'c') {
		line = strings.TrimSpace(strings.TrimPrefix(line[1:], ","))
	}
	if line == "" {
		return Command{}, fmt.Errorf("%w: empty line", ErrBadCommand)
	}

	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields[0]) != 1 {
		return Command{}, fmt.Errorf("%w: mode %q", ErrBadCommand, fields[0])
	}

	cmd := Command{
		Mode:       protocol.Mode(strings.ToUpper(fields[0])[0]),
		Pattern:    Unset,
		Color:      0,
		Brightness: Unset,
	}
	if !cmd.Mode.Valid() {
		return Command{}, fmt.Errorf("%w: unknown mode %q", ErrBadCommand, fields[0])
	}

	var values []int
	for _, f := range fields[1:] {
		v, err := strconv.Atoi(f)
		if err != nil || v < 0 || v > 255 {
			return Command{}, fmt.Errorf("%w: value %q", ErrBadCommand, f)
		}
		values = append(values, v)
	}

	switch len(values) {
	case 0:
	case 2:
		cmd.Pattern, cmd.Brightness = values[0], values[1]
	case 3:
		cmd.Pattern, cmd.Color, cmd.Brightness = values[0], values[1], values[2]
	default:
		return Command{}, fmt.Errorf("%w: want 1, 3 or 4 fields, got %d", ErrBadCommand, len(fields))
	}
	return cmd, nil
}

// Complete reports whether every value is given
func (c Command) Complete() bool {
	return c.Pattern != Unset && c.Brightness != Unset
}

// Payload converts a complete command to its wire form
func (c Command) Payload() (protocol.CommandPayload, error) {
	if !c.Complete() {
		return protocol.CommandPayload{}, ErrIncompleteCommand
	}
	return protocol.CommandPayload{
		Mode:       c.Mode,
		Pattern:    uint8(c.Pattern),
		Color:      uint8(c.Color),
		Brightness: uint8(c.Brightness),
	}, nil
}

// CommandFromPayload converts a received payload
func CommandFromPayload(p protocol.CommandPayload) Command {
	return Command{
		Mode:       p.Mode,
		Pattern:    int(p.Pattern),
		Color:      int(p.Color),
		Brightness: int(p.Brightness),
	}
}

func (c Command) String() string {
	return fmt.Sprintf("%s pattern=%d brightness=%d", c.Mode, c.Pattern, c.Brightness)
}
