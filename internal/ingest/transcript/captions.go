package transcript

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Matches both SRT ("00:00:01,000 --> 00:00:02,500") and VTT
	// ("00:00:01.000 --> 00:00:02.500") cue timing lines.
	cueTimingPattern = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2})[,.](\d{3})\s*-->\s*(\d{2}):(\d{2}):(\d{2})[,.](\d{3})`)
	tagPattern       = regexp.MustCompile(`<[^>]*>`)
)

type cue struct {
	start float64
	end   float64
	text  string
}

// parseCaptionWords converts a raw SRT or VTT caption payload into
// WordTimings. Captions carry only cue-level (not word-level) timing, so
// each cue's words are distributed proportionally across its time span by
// character count — a documented approximation, not true forced alignment.
func parseCaptionWords(raw []byte, provenance Provenance) []WordTiming {
	cues := parseCues(raw)
	words := make([]WordTiming, 0, len(cues)*8)
	for _, c := range cues {
		words = append(words, distributeWords(c, provenance)...)
	}
	return words
}

func parseCues(raw []byte) []cue {
	var cues []cue
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		pendingStart, pendingEnd float64
		pendingText              []string
		inCue                    bool
	)

	flush := func() {
		if inCue && len(pendingText) > 0 {
			text := strings.TrimSpace(tagPattern.ReplaceAllString(strings.Join(pendingText, " "), ""))
			if text != "" {
				cues = append(cues, cue{start: pendingStart, end: pendingEnd, text: text})
			}
		}
		pendingText = nil
		inCue = false
	}

	for scanner.Scan() {
		line := scanner.Text()
		if m := cueTimingPattern.FindStringSubmatch(line); m != nil {
			flush()
			pendingStart = timestampToSeconds(m[1], m[2], m[3], m[4])
			pendingEnd = timestampToSeconds(m[5], m[6], m[7], m[8])
			inCue = true
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if trimmed == "WEBVTT" || isSequenceNumber(trimmed) {
			continue
		}
		if inCue {
			pendingText = append(pendingText, trimmed)
		}
	}
	flush()
	return cues
}

func isSequenceNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

func timestampToSeconds(h, m, s, ms string) float64 {
	hh, _ := strconv.Atoi(h)
	mm, _ := strconv.Atoi(m)
	ss, _ := strconv.Atoi(s)
	msec, _ := strconv.Atoi(ms)
	return float64(hh*3600+mm*60+ss) + float64(msec)/1000.0
}

func distributeWords(c cue, provenance Provenance) []WordTiming {
	tokens := strings.Fields(c.text)
	if len(tokens) == 0 {
		return nil
	}
	totalChars := 0
	for _, t := range tokens {
		totalChars += len(t)
	}
	if totalChars == 0 {
		return nil
	}

	span := c.end - c.start
	if span <= 0 {
		span = 0
	}
	words := make([]WordTiming, 0, len(tokens))
	cursor := c.start
	for _, t := range tokens {
		share := span * float64(len(t)) / float64(totalChars)
		wordStart := cursor
		wordEnd := cursor + share
		words = append(words, WordTiming{
			Text:       t,
			StartSec:   wordStart,
			EndSec:     wordEnd,
			Provenance: provenance,
		})
		cursor = wordEnd
	}
	return words
}
