// Package extractor isolates the status lines of an i3bar protocol stream.
//
// The input is the output of a status program: a header object, then one endless array
// whose elements are the status lines, each itself an array of blocks:
//
//	{"version":1}
//	[
//	[{"full_text":"cpu 3%"}]
//	,[{"full_text":"cpu 5%"}]
//
// The Extractor tracks just enough JSON structure to find where each element of the
// outer array starts and ends. It is fed one byte at a time and never waits for a line
// terminator, so a status line is complete as soon as its closing bracket arrives.
package extractor

import (
	"errors"
	"fmt"
)

// ErrProtocol reports a closing bracket or brace that does not match the innermost open
// one. The stream cannot be resynchronized after that.
var ErrProtocol = errors.New("status stream protocol violation")

type token byte

const (
	object token = '{'
	array  token = '['
)

// Extractor is the structural state machine. The zero value is ready to use.
type Extractor struct {
	buffer   []byte
	stack    []token
	inString bool
	escaped  bool
	offset   int64 // Bytes consumed so far, for error messages
}

// Feed consumes one byte. When the byte completes an element of the outer array, Feed
// returns the element's bytes followed by a newline. The returned slice is owned by the
// caller.
func (e *Extractor) Feed(c byte) ([]byte, error) {
	e.offset++

	if e.inString {
		e.buffer = append(e.buffer, c)
		switch {
		case e.escaped:
			e.escaped = false
		case c == '\\':
			e.escaped = true
		case c == '"':
			e.inString = false
		}
		return nil, nil
	}

	switch c {
	case '"':
		e.inString = true
	case ',':
		if e.depth() == 1 && e.top() == array {
			// Separator of the outer array. Drop it together with the whitespace
			// before it, the element framing is added again by the consumer.
			e.buffer = e.buffer[:0]
			return nil, nil
		}
	case '{':
		e.stack = append(e.stack, object)
	case '}':
		if err := e.pop(object, c); err != nil {
			return nil, err
		}
		if e.depth() == 0 {
			// The version header, or an object outside of any array
			e.buffer = e.buffer[:0]
			return nil, nil
		}
	case '[':
		e.stack = append(e.stack, array)
		if e.depth() == 1 {
			// Opening bracket of the outer array
			e.buffer = e.buffer[:0]
			return nil, nil
		}
	case ']':
		if err := e.pop(array, c); err != nil {
			return nil, err
		}
		if e.depth() == 1 && e.top() == array {
			e.buffer = append(e.buffer, c, '\n')
			line := make([]byte, len(e.buffer))
			copy(line, e.buffer)
			e.buffer = e.buffer[:0]
			return line, nil
		}
	}

	e.buffer = append(e.buffer, c)
	return nil, nil
}

// Write feeds every byte of p and returns the completed elements in order. On a
// protocol violation it returns the elements completed before the offending byte.
func (e *Extractor) Write(p []byte) ([][]byte, error) {
	var lines [][]byte
	for _, c := range p {
		line, err := e.Feed(c)
		if err != nil {
			return lines, err
		}
		if line != nil {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// Depth returns the number of open brackets and braces outside of strings
func (e *Extractor) Depth() int {
	return e.depth()
}

func (e *Extractor) depth() int {
	return len(e.stack)
}

func (e *Extractor) top() token {
	if len(e.stack) == 0 {
		return 0
	}
	return e.stack[len(e.stack)-1]
}

func (e *Extractor) pop(want token, c byte) error {
	if e.top() != want {
		if len(e.stack) == 0 {
			return fmt.Errorf("%w: unexpected %q at byte %d with nothing open", ErrProtocol, c, e.offset)
		}
		return fmt.Errorf("%w: unexpected %q at byte %d, innermost open is %q", ErrProtocol, c, e.offset, byte(e.top()))
	}
	e.stack = e.stack[:len(e.stack)-1]
	return nil
}
