package frame

import (
	"fmt"
	"io"
)

// Writer writes frames to an io.Writer
type Writer struct {
	writer io.Writer
}

func NewWriter(writer io.Writer) *Writer {
	return &Writer{
		writer: writer,
	}
}

// WriteFrame writes one frame using a single Write call. Frames not larger than PIPE_BUF
// are therefore atomic on a pipe shared with other writers.
func (w *Writer) WriteFrame(f Frame) error {
	line := Format(f)
	n, err := w.writer.Write(line)
	if err != nil {
		return err
	}
	if n != len(line) {
		return fmt.Errorf("short write: %d of %d bytes: %w", n, len(line), io.ErrShortWrite)
	}
	return nil
}
