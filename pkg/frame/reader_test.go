package frame

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReader_Next(t *testing.T) {
	input := "5:dGVzdA==\n2:\n"
	reader := NewReader(strings.NewReader(input))

	f, err := reader.Next()
	require.NoError(t, err)
	require.Equal(t, 5, f.Priority)
	require.Equal(t, "test", string(f.Payload))

	f, err = reader.Next()
	require.NoError(t, err)
	require.Equal(t, 2, f.Priority)
	require.Empty(t, f.Payload)

	_, err = reader.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestReader_InvalidPriorityIsSkippable(t *testing.T) {
	input := "abc:dGVzdA==\n3:dGVzdA==\n"
	reader := NewReader(strings.NewReader(input))

	_, err := reader.Next()
	require.ErrorIs(t, err, ErrInvalidPriority)

	f, err := reader.Next()
	require.NoError(t, err)
	require.Equal(t, 3, f.Priority)
	require.Equal(t, "test", string(f.Payload))
}

func TestReader_TruncatedFrame(t *testing.T) {
	reader := NewReader(strings.NewReader("1:dGVzdA==\n2:dGVz"))

	_, err := reader.Next()
	require.NoError(t, err)

	_, err = reader.Next()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("boom")
}

func TestReader_PropagatesReadErrors(t *testing.T) {
	reader := NewReader(failingReader{})
	_, err := reader.Next()
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

// slowReader hands out one byte per Read call, like a pipe written to byte by byte
type slowReader struct {
	data []byte
}

func (s *slowReader) Read(p []byte) (int, error) {
	if len(s.data) == 0 {
		return 0, io.EOF
	}
	p[0] = s.data[0]
	s.data = s.data[1:]
	return 1, nil
}

func TestReader_AssemblesPartialReads(t *testing.T) {
	var buf bytes.Buffer
	writer := NewWriter(&buf)
	require.NoError(t, writer.WriteFrame(Frame{Priority: 9, Payload: []byte("[{\"full_text\":\"x\"}]\n")}))

	reader := NewReader(&slowReader{data: buf.Bytes()})
	f, err := reader.Next()
	require.NoError(t, err)
	require.Equal(t, 9, f.Priority)
	require.Equal(t, "[{\"full_text\":\"x\"}]\n", string(f.Payload))
}
