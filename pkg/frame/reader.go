package frame

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Reader splits a byte stream into frames
type Reader struct {
	reader *bufio.Reader
}

func NewReader(reader io.Reader) *Reader {
	return &Reader{
		reader: bufio.NewReader(reader),
	}
}

// Next blocks until a complete line is available and parses it.
//
// It returns io.EOF when the underlying stream ends on a frame boundary. A stream that
// ends in the middle of a line yields io.ErrUnexpectedEOF. Errors wrapping
// ErrInvalidPriority leave the Reader positioned at the next line, so the caller can
// skip the frame and keep reading.
func (r *Reader) Next() (Frame, error) {
	line, err := r.reader.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			if len(line) == 0 {
				return Frame{}, io.EOF
			}
			return Frame{}, fmt.Errorf("reading frame (%d bytes without newline): %w", len(line), io.ErrUnexpectedEOF)
		}
		return Frame{}, fmt.Errorf("reading frame: %w", err)
	}
	return Parse(line)
}
