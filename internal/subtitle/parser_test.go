package subtitle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSRT(t *testing.T) {
	data := []byte("1\n00:00:01,000 --> 00:00:04,000\nHello world\n\n" +
		"2\n00:00:05,500 --> 00:00:07,250\nHow are you?\n\n" +
		"3\n00:01:30,500 --> 00:01:33,000\nFine, thanks.\n")

	file, err := Parse(data, FormatSRT)
	require.NoError(t, err)
	require.Len(t, file.Cues, 3)

	assert.Equal(t, 1.0, file.Cues[0].StartTime)
	assert.Equal(t, 4.0, file.Cues[0].EndTime)
	assert.Equal(t, "Hello world", file.Cues[0].Text)
	assert.Equal(t, 5.5, file.Cues[1].StartTime)
	assert.Equal(t, 7.25, file.Cues[1].EndTime)
	assert.Equal(t, 90.5, file.Cues[2].StartTime)
	assert.Equal(t, FormatSRT, file.Format)

	for _, cue := range file.Cues {
		assert.NotEmpty(t, cue.ID)
		assert.Empty(t, cue.Words)
		assert.Zero(t, cue.DifficultyScore)
	}
}

func TestParseSRT_SingleCue(t *testing.T) {
	file, err := Parse([]byte("1\n00:00:01,000 --> 00:00:04,000\nHello world\n"), FormatSRT)
	require.NoError(t, err)
	require.Len(t, file.Cues, 1)
	assert.Equal(t, 1.0, file.Cues[0].StartTime)
	assert.Equal(t, 4.0, file.Cues[0].EndTime)
	assert.Equal(t, "Hello world", file.Cues[0].Text)
}

func TestParseSRT_MultilineText(t *testing.T) {
	data := []byte("1\n00:00:01,000 --> 00:00:04,000\nFirst line\nsecond line\n")
	file, err := Parse(data, FormatSRT)
	require.NoError(t, err)
	require.Len(t, file.Cues, 1)
	assert.Equal(t, "First line second line", file.Cues[0].Text)
}

func TestParseSRT_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "bad timestamp", data: "1\n00:00:xx,000 --> 00:00:04,000\nHello\n"},
		{name: "bad index", data: "not-an-index\n00:00:01,000 --> 00:00:04,000\nHello\n"},
		{name: "end before start", data: "1\n00:00:05,000 --> 00:00:04,000\nHello\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), FormatSRT)
			assert.Error(t, err)
		})
	}
}

func TestParseVTT(t *testing.T) {
	data := []byte("WEBVTT\n\n" +
		"00:00:01.000 --> 00:00:04.000\nHello world\n\n" +
		"cue-2\n00:01:30.500 --> 00:01:33.000\nGoodbye\n")

	file, err := Parse(data, FormatVTT)
	require.NoError(t, err)
	require.Len(t, file.Cues, 2)
	assert.Equal(t, 1.0, file.Cues[0].StartTime)
	assert.Equal(t, "Hello world", file.Cues[0].Text)
	assert.Equal(t, 90.5, file.Cues[1].StartTime)
	assert.Equal(t, 93.0, file.Cues[1].EndTime)
}

func TestParseVTT_ShortTimestamps(t *testing.T) {
	data := []byte("WEBVTT\n\n01:30.500 --> 01:33.000\nShort form\n")

	file, err := Parse(data, FormatVTT)
	require.NoError(t, err)
	require.Len(t, file.Cues, 1)
	assert.Equal(t, 90.5, file.Cues[0].StartTime)
	assert.Equal(t, 93.0, file.Cues[0].EndTime)
}

func TestParseVTT_MissingHeader(t *testing.T) {
	_, err := Parse([]byte("00:00:01.000 --> 00:00:04.000\nHello\n"), FormatVTT)
	assert.Error(t, err)
}

func TestTimestampConversion(t *testing.T) {
	start, end, err := parseSRTTime("00:01:30,500 --> 00:01:33,250")
	require.NoError(t, err)
	assert.Equal(t, 90.5, start)
	assert.Equal(t, 93.25, end)

	start, end, err = parseVTTTime("00:01:30.500 --> 00:01:33.250")
	require.NoError(t, err)
	assert.Equal(t, 90.5, start)
	assert.Equal(t, 93.25, end)
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "markup tags", input: "<i>Hello</i> world", want: "Hello world"},
		{name: "brackets", input: "[door slams] Hello", want: "Hello"},
		{name: "parentheses", input: "(sighs) Hello", want: "Hello"},
		{name: "music notes", input: "♪ la la la ♪ Hello", want: "Hello"},
		{name: "collapse whitespace", input: "Hello    world\n again", want: "Hello world again"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.input))
		})
	}
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatVTT, DetectFormat("http://example.com/sub.vtt", nil))
	assert.Equal(t, FormatVTT, DetectFormat("http://example.com/sub.webvtt", nil))
	assert.Equal(t, FormatSRT, DetectFormat("http://example.com/sub.srt", nil))
	assert.Equal(t, FormatVTT, DetectFormat("http://example.com/download?id=9", []byte("WEBVTT\n\n00:01.000 --> 00:02.000\nHi\n")))
	assert.Equal(t, FormatSRT, DetectFormat("http://example.com/download?id=9", []byte("1\n00:00:01,000 --> 00:00:02,000\nHi\n")))
}

func TestDifficultyLevelWeight(t *testing.T) {
	assert.Equal(t, 1.0, LevelBeginner.Weight())
	assert.Equal(t, 2.0, LevelIntermediate.Weight())
	assert.Equal(t, 3.0, LevelAdvanced.Weight())
}
