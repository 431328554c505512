package extractor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func extract(t *testing.T, input string) []string {
	t.Helper()
	var e Extractor
	lines, err := e.Write([]byte(input))
	require.NoError(t, err)
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		result = append(result, string(line))
	}
	return result
}

func TestExtractor_I3statusStream(t *testing.T) {
	input := "{\"version\":1}\n" +
		"[\n" +
		"[{\"full_text\":\"a\"}]\n" +
		",[{\"full_text\":\"b\"}]\n" +
		",[{\"full_text\":\"c\"},{\"full_text\":\"d\"}]\n"

	require.Equal(t, []string{
		"\n[{\"full_text\":\"a\"}]\n",
		"[{\"full_text\":\"b\"}]\n",
		"[{\"full_text\":\"c\"},{\"full_text\":\"d\"}]\n",
	}, extract(t, input))
}

func TestExtractor_CompactStream(t *testing.T) {
	input := "{\"version\":1}[[{\"full_text\":\"a\"}],[{\"full_text\":\"b\"}],[]"
	require.Equal(t, []string{
		"[{\"full_text\":\"a\"}]\n",
		"[{\"full_text\":\"b\"}]\n",
		"[]\n",
	}, extract(t, input))
}

func TestExtractor_HeaderWithExtraFields(t *testing.T) {
	input := "{\"version\":1,\"click_events\":true,\"nested\":{\"a\":[1,2]}}\n[[{\"full_text\":\"x\"}]"
	require.Equal(t, []string{"[{\"full_text\":\"x\"}]\n"}, extract(t, input))
}

func TestExtractor_StructuralCharactersInsideStrings(t *testing.T) {
	tests := []struct {
		name    string
		element string
	}{
		{name: "brackets", element: `[{"full_text":"]]]["}]`},
		{name: "braces", element: `[{"full_text":"}{"}]`},
		{name: "commas", element: `[{"full_text":"a,b"},{"full_text":","}]`},
		{name: "escaped quote", element: `[{"full_text":"say \"]\""}]`},
		{name: "escaped backslash before quote", element: `[{"full_text":"dir\\"},{"full_text":"]"}]`},
		{name: "unicode escape", element: `[{"full_text":"\u005d\u0022"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := "{\"version\":1}\n[" + tt.element + ",[]"
			require.Equal(t, []string{tt.element + "\n", "[]\n"}, extract(t, input))
		})
	}
}

func TestExtractor_BackslashOutsideStringIsPlain(t *testing.T) {
	// Not valid JSON, but a backslash outside a string must not swallow the next byte
	input := "[[\\]"
	require.Equal(t, []string{"[\\]\n"}, extract(t, input))
}

func TestExtractor_CommaInsideElementIsKept(t *testing.T) {
	input := "[[1,2,[3,4]],[5]"
	require.Equal(t, []string{"[1,2,[3,4]]\n", "[5]\n"}, extract(t, input))
}

func TestExtractor_ObjectsInOuterArrayAreNotEmitted(t *testing.T) {
	// Only arrays are status lines; an object element is buffered and then dropped at
	// the next separator.
	input := "[{\"a\":1},[{\"full_text\":\"x\"}]"
	require.Equal(t, []string{"[{\"full_text\":\"x\"}]\n"}, extract(t, input))
}

func TestExtractor_MultipleStreams(t *testing.T) {
	// A status program restarted behind the same pipe starts a new header and array
	input := "{\"version\":1}[[\"a\"]]\n{\"version\":1}[[\"b\"]"
	require.Equal(t, []string{"[\"a\"]\n", "[\"b\"]\n"}, extract(t, input))
}

func TestExtractor_ByteByByte(t *testing.T) {
	input := "{\"version\":1}\n[\n[{\"full_text\":\"a\"}]\n,[{\"full_text\":\"b\"}]"

	var e Extractor
	var lines []string
	completedAt := []int{}
	for i := 0; i < len(input); i++ {
		line, err := e.Feed(input[i])
		require.NoError(t, err)
		if line != nil {
			lines = append(lines, string(line))
			completedAt = append(completedAt, i)
		}
	}

	require.Len(t, lines, 2)
	// Each line is complete exactly at its closing bracket, not at a later newline
	first := strings.Index(input, "}]") + 1
	require.Equal(t, first, completedAt[0])
	require.Equal(t, len(input)-1, completedAt[1])
}

func TestExtractor_ReturnedLinesAreIndependent(t *testing.T) {
	var e Extractor
	lines, err := e.Write([]byte("[[1],[2]"))
	require.NoError(t, err)
	require.Len(t, lines, 2)

	lines[0][1] = 'X'
	require.Equal(t, "[2]\n", string(lines[1]))
}

func TestExtractor_NoStrayArtifacts(t *testing.T) {
	input := "{\"version\":1}\n[\n[{\"full_text\":\"q\\\"\"}]\n,[{\"full_text\":\"]\"}]\n,[]"
	for _, line := range extract(t, input) {
		require.True(t, strings.HasPrefix(strings.TrimLeft(line, "\n"), "["), "line %q", line)
		require.True(t, strings.HasSuffix(line, "]\n"), "line %q", line)
		require.NotContains(t, line, "version")
		require.False(t, strings.HasPrefix(line, ","), "line %q", line)
	}
}

func TestExtractor_Depth(t *testing.T) {
	var e Extractor
	_, err := e.Write([]byte("{\"version\":1}[[{\"a\":\"[\""))
	require.NoError(t, err)
	require.Equal(t, 3, e.Depth())
}

func TestExtractor_ProtocolViolations(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "closing brace with nothing open", input: "}"},
		{name: "closing bracket with nothing open", input: "]"},
		{name: "brace closes array", input: "[[}"},
		{name: "bracket closes object", input: "{\"a\":[1}"},
		{name: "bracket closes header", input: "{\"version\":1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Extractor
			_, err := e.Write([]byte(tt.input))
			require.ErrorIs(t, err, ErrProtocol)
		})
	}
}

func TestExtractor_ViolationKeepsEarlierLines(t *testing.T) {
	var e Extractor
	lines, err := e.Write([]byte("[[1],[2]}"))
	require.ErrorIs(t, err, ErrProtocol)
	require.Len(t, lines, 2)
}

func TestExtractor_OuterArrayClosed(t *testing.T) {
	// Closing the outer array emits nothing
	input := "[[1]]"
	require.Equal(t, []string{"[1]\n"}, extract(t, input))
}
