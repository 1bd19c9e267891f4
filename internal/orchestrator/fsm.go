package orchestrator

import (
	"fmt"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/MrWong99/reshka/internal/activity"
	"github.com/MrWong99/reshka/internal/voicecmd"
	"github.com/MrWong99/reshka/pkg/audio"
	"github.com/MrWong99/reshka/pkg/audio/synth"
)

// Mode is the capture mode.
type Mode int

const (
	// Idle means capture is off.
	Idle Mode = iota

	// Listening means capture is armed and no segment is being transcribed.
	Listening

	// Processing means a segment is being transcribed.
	Processing
)

// String returns the lower-case mode name.
func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Processing:
		return "processing"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Segment is one captured speech interval awaiting transcription.
type Segment struct {
	ID    uuid.UUID
	Audio audio.Buffer
}

// State is the orchestrator state. The zero value is Idle.
type State struct {
	Mode Mode

	// InFlight identifies the segment being transcribed. uuid.Nil unless
	// Mode is Processing.
	InFlight uuid.UUID

	// Queue holds segments that ended while another was in flight, oldest
	// first.
	Queue []Segment
}

// ── Events ──────────────────────────────────────────────────────────────────

// Event is an input to [Transition].
type Event interface{ event() }

// Started reports that preflight passed and the detector subscription is
// live.
type Started struct{}

// Stopped is an explicit stop request.
type Stopped struct{}

// IdleTimeout fires when no speech was detected for After while listening.
type IdleTimeout struct{ After time.Duration }

// SpeechStarted is the detector's speech-start callback.
type SpeechStarted struct{}

// SpeechEnded is the detector's speech-end callback with the captured audio.
type SpeechEnded struct{ Segment Segment }

// Misfired is the detector's misfire callback.
type Misfired struct{}

// TranscriptionDone reports the outcome of the call for segment ID.
type TranscriptionDone struct {
	ID uuid.UUID

	// Text is the cleaned candidate line. Empty when Err is set.
	Text string

	// Command is set when Text matched a voice command.
	Command voicecmd.Command

	// Elapsed is the round-trip time of the remote call.
	Elapsed time.Duration

	Err error
}

func (Started) event()           {}
func (Stopped) event()           {}
func (IdleTimeout) event()       {}
func (SpeechStarted) event()     {}
func (SpeechEnded) event()       {}
func (Misfired) event()          {}
func (TranscriptionDone) event() {}

// ── Effects ─────────────────────────────────────────────────────────────────

// Effect is an instruction emitted by [Transition] for the session to carry
// out, in order.
type Effect interface{ effect() }

// StatusState is the indicator shown next to the status text.
type StatusState string

const (
	StatusReady      StatusState = "ready"
	StatusActive     StatusState = "active"
	StatusSpeaking   StatusState = "speaking"
	StatusProcessing StatusState = "processing"
)

// PlayCue plays a feedback sound.
type PlayCue struct{ Cue synth.Kind }

// Transcribe starts the remote call for a segment.
type Transcribe struct{ Segment Segment }

// CancelInFlight aborts the running remote call, if any.
type CancelInFlight struct{}

// AppendTranscript appends a line to the transcript and persists it.
type AppendTranscript struct{ Text string }

// GenerateQuestions starts the question flow.
type GenerateQuestions struct{}

// Log records an activity entry.
type Log struct {
	Type    activity.Type
	Message string
}

// Notify shows a toast.
type Notify struct {
	Level   activity.Level
	Message string
}

// Unsubscribe closes the detector subscription.
type Unsubscribe struct{}

// ResetSleepTimer (re)arms the auto-sleep timer.
type ResetSleepTimer struct{}

// StopSleepTimer disarms the auto-sleep timer.
type StopSleepTimer struct{}

// Status updates the status indicator.
type Status struct {
	State StatusState
	Text  string
}

func (PlayCue) effect()           {}
func (Transcribe) effect()        {}
func (CancelInFlight) effect()    {}
func (AppendTranscript) effect()  {}
func (GenerateQuestions) effect() {}
func (Log) effect()               {}
func (Notify) effect()            {}
func (Unsubscribe) effect()       {}
func (ResetSleepTimer) effect()   {}
func (StopSleepTimer) effect()    {}
func (Status) effect()            {}

// Fallback texts.
const (
	FallbackTranscription = "No transcription available"
)

var (
	statusReady     = Status{State: StatusReady, Text: "Ready"}
	statusListening = Status{State: StatusActive, Text: "Listening..."}
)

// ── Transition ──────────────────────────────────────────────────────────────

// Transition computes the next state and the effects for ev. It performs no
// I/O and never mutates s.
func Transition(s State, ev Event) (State, []Effect) {
	switch ev := ev.(type) {
	case Started:
		if s.Mode != Idle {
			return s, nil
		}
		return State{Mode: Listening}, []Effect{
			statusListening,
			Log{Type: activity.Success, Message: "Live transcription started"},
			Notify{Level: activity.LevelSuccess, Message: "Live transcription started"},
			ResetSleepTimer{},
		}

	case Stopped:
		if s.Mode == Idle {
			return s, nil
		}
		return State{Mode: Idle}, stopEffects(s,
			Log{Type: activity.Info, Message: "Live transcription stopped"},
			Notify{Level: activity.LevelSuccess, Message: "Live transcription stopped"},
		)

	case IdleTimeout:
		if s.Mode != Listening {
			return s, nil
		}
		return State{Mode: Idle}, stopEffects(s,
			Log{Type: activity.Info, Message: fmt.Sprintf("Auto-sleep: no speech for %s", ev.After.Round(time.Second))},
			Notify{Level: activity.LevelSuccess, Message: "Live transcription stopped (auto-sleep)"},
		)

	case SpeechStarted:
		if s.Mode == Idle {
			return s, nil
		}
		eff := []Effect{
			Status{State: StatusSpeaking, Text: "Speaking detected"},
			Log{Type: activity.SpeechStart, Message: "Speech started"},
			PlayCue{Cue: synth.SpeechStart},
		}
		if s.Mode == Listening {
			eff = append(eff, ResetSleepTimer{})
		}
		return s, eff

	case Misfired:
		if s.Mode == Idle {
			return s, nil
		}
		return s, []Effect{
			Log{Type: activity.Warning, Message: "VAD misfire detected"},
			PlayCue{Cue: synth.Misfire},
		}

	case SpeechEnded:
		return speechEnded(s, ev.Segment)

	case TranscriptionDone:
		return transcriptionDone(s, ev)
	}
	return s, nil
}

func stopEffects(s State, tail ...Effect) []Effect {
	eff := []Effect{Unsubscribe{}}
	if s.Mode == Processing {
		eff = append(eff, CancelInFlight{})
	}
	eff = append(eff, StopSleepTimer{}, statusReady)
	return append(eff, tail...)
}

func speechEnded(s State, seg Segment) (State, []Effect) {
	ms := seg.Audio.Duration().Round(time.Millisecond).Milliseconds()
	head := []Effect{
		PlayCue{Cue: synth.SpeechEnd},
		Status{State: StatusProcessing, Text: "Processing..."},
		Log{Type: activity.SpeechEnd, Message: fmt.Sprintf("Speech ended (%dms)", ms)},
	}
	switch s.Mode {
	case Listening:
		next := State{Mode: Processing, InFlight: seg.ID}
		return next, append(head, StopSleepTimer{}, Transcribe{Segment: seg})
	case Processing:
		next := s
		next.Queue = append(slices.Clip(s.Queue), seg)
		return next, append(head, Log{
			Type:    activity.Info,
			Message: fmt.Sprintf("Segment queued (%d waiting)", len(next.Queue)),
		})
	default:
		return s, nil
	}
}

func transcriptionDone(s State, ev TranscriptionDone) (State, []Effect) {
	if s.Mode != Processing || ev.ID != s.InFlight {
		return s, nil
	}

	var eff []Effect
	switch {
	case ev.Err != nil:
		eff = append(eff,
			PlayCue{Cue: synth.Error},
			Log{Type: activity.Error, Message: "Transcription error: " + ev.Err.Error()},
			Notify{Level: activity.LevelError, Message: "Transcription failed: " + ev.Err.Error()},
		)
	default:
		eff = append(eff,
			PlayCue{Cue: synth.ResultArrived},
			Log{Type: activity.Success, Message: fmt.Sprintf("Transcription received (%d chars, %.1fs)",
				utf8.RuneCountInString(ev.Text), ev.Elapsed.Seconds())},
		)
		if ev.Command == voicecmd.GenerateQuestions {
			eff = append(eff,
				Log{Type: activity.Info, Message: "Voice command detected: generate questions"},
				GenerateQuestions{},
			)
		} else {
			eff = append(eff, AppendTranscript{Text: ev.Text})
		}
	}

	if len(s.Queue) > 0 {
		nextSeg := s.Queue[0]
		next := State{Mode: Processing, InFlight: nextSeg.ID, Queue: s.Queue[1:]}
		if len(next.Queue) == 0 {
			next.Queue = nil
		}
		return next, append(eff,
			Status{State: StatusProcessing, Text: "Processing..."},
			Transcribe{Segment: nextSeg},
		)
	}
	return State{Mode: Listening}, append(eff, statusListening, ResetSleepTimer{})
}
