// Package segmenter turns a continuously updating speech transcript into
// discrete finalized utterances, filtering out recognizer noise.
package segmenter

import (
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Config holds the segmentation thresholds.
type Config struct {
	MinSpeechLength   int           // Shortest transcript (in characters) treated as speech (default 3)
	SignificantChange int           // Length delta counted as genuine speech (default 5)
	MaxNoiseCount     int           // Small changes tolerated while idle before discarding (default 3)
	Silence           time.Duration // Stability window that closes an utterance (default 2s)
	Inactivity        time.Duration // Housekeeping interval (default 10s)
	NameIndicators    []string      // Phrases that accept an otherwise too-short utterance
	HistorySize       int           // Recent significant transcripts kept for diagnostics (default 5)
}

// DefaultConfig returns the thresholds tuned for pt-BR browser recognition.
func DefaultConfig() Config {
	return Config{
		MinSpeechLength:   3,
		SignificantChange: 5,
		MaxNoiseCount:     3,
		Silence:           2 * time.Second,
		Inactivity:        10 * time.Second,
		NameIndicators: []string{
			"nome",
			"chamo",
			"sou o",
			"sou a",
			"me chamo",
			"meu nome",
		},
		HistorySize: 5,
	}
}

// State is the speech activity state of a session.
type State int

const (
	Idle State = iota
	Accumulating
)

func (s State) String() string {
	if s == Accumulating {
		return "accumulating"
	}
	return "idle"
}

// EventKind distinguishes segmenter events.
type EventKind int

const (
	// EventUtterance carries a finalized utterance in Text.
	EventUtterance EventKind = iota
	// EventDiscard asks the transcript source to clear its transcript.
	EventDiscard
)

// Discard reasons.
const (
	ReasonNoise    = "noise"
	ReasonRejected = "rejected"
	ReasonReset    = "reset"
)

// Event is delivered on the channel returned by Events.
type Event struct {
	Kind   EventKind
	Text   string
	Reason string
}

// Snapshot is a copy of the segmentation state.
type Snapshot struct {
	State         State
	Transcript    string
	LastUtterance string
	NoiseCount    int
	Recent        []string
}

// Segmenter is the per-session segmentation state machine. All methods are
// safe for concurrent use; timer callbacks take the same lock.
type Segmenter struct {
	cfg    Config
	logger *slog.Logger
	events chan Event
	now    func() time.Time

	mu            sync.Mutex
	closed        bool
	paused        bool
	speaking      bool
	transcript    string
	lastUtterance string
	awaitFresh    bool // drop resends of lastUtterance until the source clears
	lastLength    int
	lastStable    time.Time
	noiseCount    int
	recent        []string

	stable     *time.Timer
	stableGen  uint64
	inactivity *time.Timer
}

const eventBuffer = 16

// New creates a segmenter and starts its inactivity watchdog. Close must be
// called to release the timers.
func New(cfg Config, logger *slog.Logger) *Segmenter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 5
	}
	s := &Segmenter{
		cfg:    cfg,
		logger: logger,
		events: make(chan Event, eventBuffer),
		now:    time.Now,
	}

	s.mu.Lock()
	s.armInactivity()
	s.mu.Unlock()

	return s
}

// Events returns the event stream. It is closed by Close.
func (s *Segmenter) Events() <-chan Event {
	return s.events
}

// Update feeds the current cumulative transcript. Updates are ignored while
// paused, after Close, or when the transcript has not changed.
func (s *Segmenter) Update(transcript string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.paused {
		return
	}

	trimmed := strings.TrimSpace(transcript)
	if s.awaitFresh {
		if trimmed == s.lastUtterance {
			return
		}
		s.awaitFresh = false
	}
	if transcript == s.transcript {
		return
	}

	s.transcript = transcript
	n := utf8.RuneCountInString(trimmed)
	change := n - s.lastLength
	if change < 0 {
		change = -change
	}

	significant := false
	if n > 0 {
		if change >= s.cfg.SignificantChange || n >= s.cfg.MinSpeechLength*2 {
			significant = true
			s.pushRecent(transcript)
			if !s.speaking && n >= s.cfg.MinSpeechLength {
				s.speaking = true
				s.logger.Debug("speech started", "length", n)
			}
			s.lastStable = s.now()
			s.noiseCount = 0
		} else if change > 0 {
			s.noiseCount++
			s.logger.Debug("small transcript change", "change", change, "noise_count", s.noiseCount)

			if s.noiseCount > s.cfg.MaxNoiseCount && !s.speaking {
				s.noiseCount = 0
				s.transcript = ""
				s.lastLength = 0
				s.logger.Debug("transcript discarded as noise", "length", n)
				s.emit(Event{Kind: EventDiscard, Reason: ReasonNoise})
				return
			}
		}
	}

	s.lastLength = n

	// Small changes never push the stability window out; only a significant
	// update or a missing timer arms it.
	if s.speaking && n > s.cfg.MinSpeechLength && (significant || s.stable == nil) {
		s.armStable(s.cfg.Silence)
	}
}

// Pause stops segmentation while the consultation awaits a reply. Any pending
// stability timer is cancelled. The segmenter also pauses itself after every
// finalized utterance.
func (s *Segmenter) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paused = true
	s.stopStable()
}

// Resume re-enables Update.
func (s *Segmenter) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paused = false
}

// Reset clears the per-utterance state and emits a discard event so the
// transcript source starts from an empty transcript.
func (s *Segmenter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.stopStable()
	s.speaking = false
	s.transcript = ""
	s.lastLength = 0
	s.noiseCount = 0
	s.emit(Event{Kind: EventDiscard, Reason: ReasonReset})
}

// Close cancels both timers and closes the event stream. It is idempotent.
func (s *Segmenter) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.stopStable()
	if s.inactivity != nil {
		s.inactivity.Stop()
		s.inactivity = nil
	}
	close(s.events)
}

// State returns a snapshot of the current segmentation state.
func (s *Segmenter) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := Idle
	if s.speaking {
		state = Accumulating
	}
	return Snapshot{
		State:         state,
		Transcript:    s.transcript,
		LastUtterance: s.lastUtterance,
		NoiseCount:    s.noiseCount,
		Recent:        append([]string(nil), s.recent...),
	}
}

// Accept reports whether a stable candidate qualifies as an utterance: it
// must look like real words, or contain a self-identification phrase.
func (s *Segmenter) Accept(text string) bool {
	return IsWordLike(text, s.cfg.MinSpeechLength) || HasNameIndicator(text, s.cfg.NameIndicators)
}

// must hold s.mu
func (s *Segmenter) armStable(d time.Duration) {
	s.stopStable()
	s.stableGen++
	gen := s.stableGen
	s.stable = time.AfterFunc(d, func() { s.onStable(gen) })
}

// must hold s.mu
func (s *Segmenter) stopStable() {
	if s.stable != nil {
		s.stable.Stop()
		s.stable = nil
	}
	s.stableGen++
}

func (s *Segmenter) onStable(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || gen != s.stableGen {
		return
	}
	s.stable = nil
	if !s.speaking || s.paused {
		return
	}

	if elapsed := s.now().Sub(s.lastStable); elapsed < s.cfg.Silence {
		s.armStable(s.cfg.Silence - elapsed)
		return
	}

	candidate := strings.TrimSpace(s.transcript)
	s.speaking = false
	s.lastLength = 0
	s.noiseCount = 0
	s.transcript = ""

	if s.Accept(candidate) {
		// The consumer resumes once the utterance is handled, so a late
		// recognizer update cannot finalize the same text twice.
		s.paused = true
		s.awaitFresh = true
		s.lastUtterance = candidate
		s.logger.Debug("utterance finalized", "length", utf8.RuneCountInString(candidate))
		s.emit(Event{Kind: EventUtterance, Text: candidate})
		return
	}

	s.logger.Debug("stable transcript rejected", "text", candidate)
	s.emit(Event{Kind: EventDiscard, Reason: ReasonRejected})
}

// must hold s.mu
func (s *Segmenter) armInactivity() {
	if s.cfg.Inactivity <= 0 {
		return
	}
	s.inactivity = time.AfterFunc(s.cfg.Inactivity, s.onInactivity)
}

func (s *Segmenter) onInactivity() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if !s.speaking && strings.TrimSpace(s.transcript) == "" {
		if s.noiseCount > 0 || len(s.recent) > 0 {
			s.logger.Debug("inactivity reset")
		}
		s.noiseCount = 0
		s.recent = nil
	}
	s.armInactivity()
}

// must hold s.mu
func (s *Segmenter) pushRecent(t string) {
	s.recent = append(s.recent, t)
	if len(s.recent) > s.cfg.HistorySize {
		s.recent = s.recent[len(s.recent)-s.cfg.HistorySize:]
	}
}

// emit never blocks; it runs under s.mu so nothing is sent after Close.
func (s *Segmenter) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("segmenter event dropped, consumer not keeping up", "kind", ev.Kind, "reason", ev.Reason)
	}
}
