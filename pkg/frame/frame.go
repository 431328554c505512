package frame

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrProtocol reports a line that does not follow the frame format at all.
	ErrProtocol = errors.New("frame protocol violation")

	// ErrInvalidPriority reports a line whose priority tag is not an integer.
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrDecode reports a payload that is not valid base64.
	ErrDecode = errors.New("payload decode failed")
)

// Frame is one tagged update exchanged over the shared channel
type Frame struct {
	Priority int
	Payload  []byte // The decoded payload, verbatim
}

// Format encodes a Frame into its wire form, including the trailing newline.
// Format: "priority:base64(payload)\n"
func Format(f Frame) []byte {
	line := strconv.AppendInt(nil, int64(f.Priority), 10)
	line = append(line, ':')
	line = base64.StdEncoding.AppendEncode(line, f.Payload)
	return append(line, '\n')
}

// Parse decodes one wire line. A single trailing newline is optional.
//
// The priority is checked before the payload is decoded: a line with an unusable tag is
// reported as ErrInvalidPriority even when its payload is corrupt as well.
func Parse(line []byte) (Frame, error) {
	line = bytes.TrimSuffix(line, []byte{'\n'})

	tag, body, found := bytes.Cut(line, []byte{':'})
	if !found {
		return Frame{}, fmt.Errorf("%w: missing ':' in %q", ErrProtocol, abbreviate(line))
	}

	priority, err := strconv.Atoi(string(tag))
	if err != nil {
		return Frame{}, fmt.Errorf("%w %q: %v", ErrInvalidPriority, abbreviate(tag), err)
	}

	payload := make([]byte, base64.StdEncoding.DecodedLen(len(body)))
	n, err := base64.StdEncoding.Decode(payload, body)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return Frame{Priority: priority, Payload: payload[:n]}, nil
}

// abbreviate keeps error messages short when a producer sends garbage
func abbreviate(b []byte) []byte {
	const limit = 64
	if len(b) <= limit {
		return b
	}
	return append(b[:limit:limit], "..."...)
}
