package chat

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Frame is one step of the typing animation: the text shown so far and
// how long to wait before the next step.
type Frame struct {
	Text  string
	Delay time.Duration
}

const (
	baseTypingSpeed = 15 // ms
	minTypingSpeed  = 5  // ms
)

const (
	mathSymbols = "+-*/=^√∑∫≈<>≤≥±"
	sentenceEnd = ".!?؟"
	clauseEnd   = ",;:،؛"
)

// TypingFrames splits text into progressively longer prefixes. Text that
// contains math symbols is typed one character at a time, other text word
// by word. Longer messages type faster; sentence and clause punctuation
// (Latin or Arabic) lengthen the pause after a word.
func TypingFrames(text string) []Frame {
	if text == "" {
		return nil
	}

	speed := max(minTypingSpeed, min(baseTypingSpeed, 30-utf8.RuneCountInString(text)/20))
	containsMath := strings.ContainsAny(text, mathSymbols)

	var segments []string
	if containsMath {
		for _, r := range text {
			segments = append(segments, string(r))
		}
	} else {
		segments = strings.Split(text, " ")
	}

	frames := make([]Frame, 0, len(segments))
	var shown strings.Builder
	for i, seg := range segments {
		if !containsMath && i > 0 {
			shown.WriteByte(' ')
		}
		shown.WriteString(seg)

		delay := speed
		if !containsMath {
			switch last, _ := utf8.DecodeLastRuneInString(seg); {
			case strings.ContainsRune(sentenceEnd, last):
				delay = speed * 5
			case strings.ContainsRune(clauseEnd, last):
				delay = speed * 3
			}
			delay *= utf8.RuneCountInString(seg)
		}

		frames = append(frames, Frame{
			Text:  shown.String(),
			Delay: time.Duration(delay) * time.Millisecond,
		})
	}
	return frames
}
