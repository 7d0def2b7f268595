package stt

import (
	"strings"
	"sync"
)

// Transcript folds streaming results into the cumulative transcript a
// browser recognizer would report: finalized segments followed by the
// current interim guess.
type Transcript struct {
	mu      sync.Mutex
	final   []string
	interim string
}

// Apply folds r into the transcript and returns the new cumulative text.
func (t *Transcript) Apply(r TranscriptResult) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	text := strings.TrimSpace(r.Text)
	if r.IsFinal {
		if text != "" {
			t.final = append(t.final, text)
		}
		t.interim = ""
	} else {
		t.interim = text
	}
	return t.textLocked()
}

// Text returns the cumulative transcript.
func (t *Transcript) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.textLocked()
}

// Reset clears everything heard so far.
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.final = nil
	t.interim = ""
}

func (t *Transcript) textLocked() string {
	parts := t.final
	if t.interim != "" {
		parts = append(parts[:len(parts):len(parts)], t.interim)
	}
	return strings.Join(parts, " ")
}
