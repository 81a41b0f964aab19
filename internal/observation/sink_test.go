package observation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptInt(t *testing.T) {
	assert.Equal(t, "", OptInt{}.String())
	assert.Equal(t, "0", Of(0).String())
	assert.Equal(t, "7", Of(7).String())
	assert.Equal(t, "1", OfBool(true).String())
	assert.Equal(t, "0", OfBool(false).String())
}

func TestFieldsMatchHeader(t *testing.T) {
	o := &Observation{}
	assert.Len(t, o.Fields(), len(Header()))
}

func TestSinkHeaderWrittenOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	sink := NewSink(path)

	first := &Observation{Domain: "a.com", Device: "desktop", RunID: 1, Status: StatusOK}
	second := &Observation{Domain: "b.com", Device: "mobile", RunID: 2, Status: StatusError,
		Notes: `nav failed: "timeout", gave up`}
	require.NoError(t, sink.Append(first))
	require.NoError(t, sink.Append(second))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(Header(), ","), lines[0])
	// Notes field with comma and quotes gets quoted with doubled quotes.
	assert.Contains(t, lines[2], `"nav failed: ""timeout"", gave up"`)
}

func TestSinkRoundTripThroughLoadDoneKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	sink := NewSink(path)

	rows := []*Observation{
		{Domain: "ok.com", Device: "desktop", RunID: 1, Status: StatusOK, Notes: "a, b"},
		{Domain: "bad.com", Device: "desktop", RunID: 1, Status: StatusError},
		{Domain: "crash.com", Device: "mobile", RunID: 2, Status: StatusScriptError},
	}
	for _, o := range rows {
		require.NoError(t, sink.Append(o))
	}

	all, err := LoadDoneKeys(path, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Contains(t, all, "ok.com|desktop|1")
	assert.Contains(t, all, "bad.com|desktop|1")
	assert.Contains(t, all, "crash.com|mobile|2")

	retryable, err := LoadDoneKeys(path, true)
	require.NoError(t, err)
	assert.Len(t, retryable, 1)
	assert.Contains(t, retryable, "ok.com|desktop|1")
}

func TestLoadDoneKeysMissingFile(t *testing.T) {
	keys, err := LoadDoneKeys(filepath.Join(t.TempDir(), "absent.csv"), false)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestDecodeLine(t *testing.T) {
	cols := decodeLine(`a,"b,c","say ""hi""",d`)
	assert.Equal(t, []string{"a", "b,c", `say "hi"`, "d"}, cols)
}
