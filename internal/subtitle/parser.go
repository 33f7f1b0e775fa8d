package subtitle

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"
	"golang.org/x/text/language"
)

var (
	srtTimeRe = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2}),(\d{3}) --> (\d{2}):(\d{2}):(\d{2}),(\d{3})`)
	vttTimeRe = regexp.MustCompile(`(?:(\d{1,2}):)?(\d{1,2}):(\d{2})\.(\d{3})\s*-->\s*(?:(\d{1,2}):)?(\d{1,2}):(\d{2})\.(\d{3})`)

	markupRe     = regexp.MustCompile(`<[^>]+>`)
	bracketRe    = regexp.MustCompile(`\[.*?\]`)
	parenRe      = regexp.MustCompile(`\(.*?\)`)
	musicNotesRe = regexp.MustCompile(`♪.*?♪`)
)

// Parse converts raw subtitle file bytes into an ordered cue list.
// A malformed cue block aborts the whole file.
func Parse(data []byte, format Format) (*File, error) {
	content := string(data)

	var cues []Cue
	var err error
	switch format {
	case FormatSRT:
		cues, err = parseSRT(content)
	case FormatVTT:
		cues, err = parseVTT(content)
	default:
		return nil, fmt.Errorf("unsupported subtitle format: %s", format)
	}
	if err != nil {
		return nil, err
	}

	return &File{
		Cues:     cues,
		Language: detectLanguage(cues),
		Format:   format,
	}, nil
}

// parseSRT parses SubRip content: index line, timestamp line, text lines,
// blank separator.
func parseSRT(content string) ([]Cue, error) {
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cues []Cue
	currentCue := Cue{}
	state := "index" // possible values: "index", "time", "text"
	var textLines []string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch state {
		case "index":
			if line == "" {
				continue
			}
			index, err := strconv.Atoi(line)
			if err != nil {
				return nil, fmt.Errorf("malformed cue block, expected index: %q", line)
			}
			currentCue.Index = index
			state = "time"

		case "time":
			if line == "" {
				continue
			}
			startTime, endTime, err := parseSRTTime(line)
			if err != nil {
				return nil, fmt.Errorf("failed to parse time: %w", err)
			}
			if endTime < startTime {
				return nil, fmt.Errorf("cue %d ends before it starts: %s", currentCue.Index, line)
			}
			currentCue.StartTime = startTime
			currentCue.EndTime = endTime
			state = "text"
			textLines = []string{}

		case "text":
			if line == "" {
				// subtitle text ends
				if len(textLines) > 0 {
					cues = append(cues, finishCue(currentCue, textLines))
					currentCue = Cue{}
				}
				state = "index"
				textLines = []string{}
			} else {
				textLines = append(textLines, line)
			}
		}
	}

	// handle last cue group
	if state == "text" && len(textLines) > 0 {
		cues = append(cues, finishCue(currentCue, textLines))
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subtitle content: %w", err)
	}
	return cues, nil
}

// parseVTT parses WebVTT content: WEBVTT header, cue blocks with optional
// cue identifiers, blank separators.
func parseVTT(content string) ([]Cue, error) {
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() || !strings.HasPrefix(strings.TrimSpace(scanner.Text()), "WEBVTT") {
		return nil, fmt.Errorf("missing WEBVTT header")
	}

	var cues []Cue
	currentCue := Cue{}
	index := 0
	state := "cue" // possible values: "cue", "text"
	var textLines []string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch state {
		case "cue":
			if line == "" {
				continue
			}
			// NOTE/STYLE/REGION blocks carry no cues
			if strings.HasPrefix(line, "NOTE") || strings.HasPrefix(line, "STYLE") || strings.HasPrefix(line, "REGION") {
				state = "skip"
				continue
			}
			if !strings.Contains(line, "-->") {
				// optional cue identifier line, the timestamp must follow
				if !scanner.Scan() {
					return nil, fmt.Errorf("malformed cue block, missing timestamps after %q", line)
				}
				line = strings.TrimSpace(scanner.Text())
			}
			startTime, endTime, err := parseVTTTime(line)
			if err != nil {
				return nil, fmt.Errorf("failed to parse time: %w", err)
			}
			if endTime < startTime {
				return nil, fmt.Errorf("cue ends before it starts: %s", line)
			}
			index++
			currentCue = Cue{Index: index, StartTime: startTime, EndTime: endTime}
			state = "text"
			textLines = []string{}

		case "text":
			if line == "" {
				if len(textLines) > 0 {
					cues = append(cues, finishCue(currentCue, textLines))
				}
				state = "cue"
				textLines = []string{}
			} else {
				textLines = append(textLines, line)
			}

		case "skip":
			if line == "" {
				state = "cue"
			}
		}
	}

	if state == "text" && len(textLines) > 0 {
		cues = append(cues, finishCue(currentCue, textLines))
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subtitle content: %w", err)
	}
	return cues, nil
}

func finishCue(cue Cue, textLines []string) Cue {
	cue.ID = uuid.NewString()
	cue.Text = CleanText(strings.Join(textLines, " "))
	return cue
}

// parseSRTTime parses an SRT timestamp line into float seconds.
// SRT time format: 00:02:16,612 --> 00:02:19,376
func parseSRTTime(timeString string) (float64, float64, error) {
	matches := srtTimeRe.FindStringSubmatch(timeString)
	if len(matches) != 9 {
		return 0, 0, fmt.Errorf("invalid time format: %s", timeString)
	}

	start := hmsToSeconds(matches[1], matches[2], matches[3], matches[4])
	end := hmsToSeconds(matches[5], matches[6], matches[7], matches[8])
	return start, end, nil
}

// parseVTTTime parses a WebVTT timestamp line into float seconds.
// WebVTT time format: 00:02:16.612 --> 00:02:19.376, the hour part is optional.
func parseVTTTime(timeString string) (float64, float64, error) {
	matches := vttTimeRe.FindStringSubmatch(timeString)
	if len(matches) != 9 {
		return 0, 0, fmt.Errorf("invalid time format: %s", timeString)
	}

	start := hmsToSeconds(matches[1], matches[2], matches[3], matches[4])
	end := hmsToSeconds(matches[5], matches[6], matches[7], matches[8])
	return start, end, nil
}

func hmsToSeconds(hours, minutes, seconds, millis string) float64 {
	h, _ := strconv.Atoi(hours) // empty hour part parses to 0
	m, _ := strconv.Atoi(minutes)
	s, _ := strconv.Atoi(seconds)
	ms, _ := strconv.Atoi(millis)

	return float64(h)*3600 + float64(m)*60 + float64(s) + float64(ms)/1000
}

// CleanText strips markup tags, bracketed and parenthetical asides, paired
// music-note markers, and collapses whitespace.
func CleanText(text string) string {
	text = markupRe.ReplaceAllString(text, "")
	text = bracketRe.ReplaceAllString(text, "")
	text = parenRe.ReplaceAllString(text, "")
	text = musicNotesRe.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// DetectFormat determines the subtitle format from the file URL extension,
// falling back to content sniffing. Defaults to SRT.
func DetectFormat(fileURL string, data []byte) Format {
	urlLower := strings.ToLower(fileURL)
	switch {
	case strings.HasSuffix(urlLower, ".vtt"), strings.HasSuffix(urlLower, ".webvtt"):
		return FormatVTT
	case strings.HasSuffix(urlLower, ".srt"):
		return FormatSRT
	}

	head := data
	if len(head) > 200 {
		head = head[:200]
	}
	if bytes.Contains(bytes.ToUpper(head), []byte("WEBVTT")) {
		return FormatVTT
	}
	return FormatSRT
}

// detectLanguage picks the dominant language across cue texts
func detectLanguage(cues []Cue) language.Tag {
	if len(cues) == 0 {
		return language.Und
	}

	langMap := make(map[string]int)
	for _, cue := range cues {
		if cue.Text == "" {
			continue
		}
		lang := whatlanggo.DetectLang(cue.Text).Iso6391()
		langMap[lang]++
	}

	var topLang string
	var topCount int
	for lang, count := range langMap {
		if count > topCount {
			topLang = lang
			topCount = count
		}
	}

	return language.All.Make(topLang)
}
