package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/reshka/internal/activity"
	"github.com/MrWong99/reshka/internal/observe"
	"github.com/MrWong99/reshka/pkg/audio"
	"github.com/MrWong99/reshka/pkg/audio/synth"
	"github.com/MrWong99/reshka/pkg/provider/vad"
)

// CuePlayer plays feedback sounds without blocking. *cue.Player implements
// it.
type CuePlayer interface {
	Play(name synth.Kind, onDone func())
}

// SegmentTranscriber runs the remote call for one segment. *Transcriber
// implements it.
type SegmentTranscriber interface {
	Transcribe(ctx context.Context, seg audio.Buffer) (Result, error)
}

// TranscriptAppender stores accepted transcript lines.
// *transcript.Store implements it.
type TranscriptAppender interface {
	Append(ctx context.Context, line string) (string, error)
}

// QuestionGenerator runs the question flow. It handles and reports its own
// errors; the returned error is informational.
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, cues CuePlayer) error
}

// Deps are the collaborators of a [Session]. All fields are required.
type Deps struct {
	Engine      vad.Engine
	VAD         vad.Config
	Host        Host
	Cues        CuePlayer
	Preflight   *Preflight
	Transcriber SegmentTranscriber
	Transcript  TranscriptAppender
	Questions   QuestionGenerator
	Settings    Settings
	Feed        Activity
}

func (d Deps) validate() error {
	var errs []error
	check := func(ok bool, name string) {
		if !ok {
			errs = append(errs, errors.New("orchestrator: missing "+name))
		}
	}
	check(d.Engine != nil, "Engine")
	check(d.Host != nil, "Host")
	check(d.Cues != nil, "Cues")
	check(d.Preflight != nil, "Preflight")
	check(d.Transcriber != nil, "Transcriber")
	check(d.Transcript != nil, "Transcript")
	check(d.Questions != nil, "Questions")
	check(d.Settings != nil, "Settings")
	check(d.Feed != nil, "Feed")
	return errors.Join(errs...)
}

// SessionOption configures a [Session].
type SessionOption func(*Session)

// WithAutoSleep fixes the auto-sleep interval instead of reading it from the
// settings on every re-arm. Zero disables auto-sleep.
func WithAutoSleep(d time.Duration) SessionOption {
	return func(s *Session) {
		s.autoSleep = func(context.Context) time.Duration { return d }
	}
}

// Session drives one orchestrator instance. All state lives on the goroutine
// running [Session.Run]; the other methods post requests to it.
type Session struct {
	deps      Deps
	autoSleep func(ctx context.Context) time.Duration

	requests chan Event
	done     chan struct{}
	mode     atomic.Int32
	flows    sync.WaitGroup // question flows; Run waits for them before Done

	// Owned by the Run goroutine.
	state    State
	sub      vad.Subscription
	inflight context.CancelFunc
	sleep    *time.Timer
	sleepFor time.Duration
	starting bool
	aborted  bool
}

// Internal loop events.
type (
	startRequest  struct{}
	preflightDone struct {
		sub vad.Subscription
		err error
	}
)

func (startRequest) event()  {}
func (preflightDone) event() {}

// NewSession creates a Session. Call Run to start it.
func NewSession(deps Deps, opts ...SessionOption) (*Session, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	s := &Session{
		deps:     deps,
		requests: make(chan Event, 16),
		done:     make(chan struct{}),
	}
	s.autoSleep = func(ctx context.Context) time.Duration {
		app, err := deps.Settings.App(ctx)
		if err != nil {
			return 0
		}
		return app.AutoSleep()
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Mode returns the current capture mode. Safe to call from any goroutine.
func (s *Session) Mode() Mode {
	return Mode(s.mode.Load())
}

// Start asks the session to run preflight and begin capture. It returns
// immediately; progress is reported through the host and the activity feed.
func (s *Session) Start() {
	s.post(startRequest{})
}

// Stop ends capture. Pending segments are dropped and the in-flight call is
// cancelled.
func (s *Session) Stop() {
	s.post(Stopped{})
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) post(ev Event) {
	select {
	case s.requests <- ev:
	case <-s.done:
	}
}

// Run processes events until ctx is cancelled. On return the detector
// subscription is closed, any in-flight call cancelled and every question
// flow the session started has finished, so no cue plays after Done.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.teardown()

	for {
		var vadEvents <-chan vad.Event
		if s.sub != nil {
			vadEvents = s.sub.Events()
		}
		var sleepC <-chan time.Time
		if s.sleep != nil {
			sleepC = s.sleep.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-s.requests:
			s.handle(ctx, ev)

		case ev, ok := <-vadEvents:
			if !ok {
				observe.Logger(ctx).Info("vad subscription ended by engine")
				s.sub = nil
				s.apply(ctx, Stopped{})
				continue
			}
			s.apply(ctx, fromVAD(ev))

		case <-sleepC:
			s.sleep = nil
			s.apply(ctx, IdleTimeout{After: s.sleepFor})
		}
	}
}

func fromVAD(ev vad.Event) Event {
	switch ev.Type {
	case vad.SpeechStart:
		return SpeechStarted{}
	case vad.SpeechEnd:
		return SpeechEnded{Segment: Segment{ID: uuid.New(), Audio: ev.Segment}}
	case vad.Misfire:
		return Misfired{}
	default:
		return nil
	}
}

func (s *Session) handle(ctx context.Context, ev Event) {
	switch ev := ev.(type) {
	case startRequest:
		if s.state.Mode != Idle || s.starting {
			return
		}
		s.starting = true
		s.aborted = false
		s.deps.Host.ShowStatus(Idle, Status{State: StatusProcessing, Text: "Validating..."})
		go s.prepare(ctx)

	case preflightDone:
		s.starting = false
		if ev.err != nil || s.aborted {
			if ev.sub != nil {
				_ = ev.sub.Close()
			}
			s.deps.Host.ShowStatus(Idle, statusReady)
			return
		}
		s.sub = ev.sub
		s.apply(ctx, Started{})

	case Stopped:
		if s.starting {
			s.aborted = true
		}
		s.apply(ctx, ev)

	default:
		s.apply(ctx, ev)
	}
}

// prepare runs preflight and subscribes to the detector off the loop, so the
// host can answer permission queries while it waits.
func (s *Session) prepare(ctx context.Context) {
	var res preflightDone
	if err := s.deps.Preflight.Run(ctx, s.deps.Host); err != nil {
		res.err = err
	} else {
		s.deps.Feed.Log(ctx, activity.Info, "Initializing voice activity detection...")
		sub, err := s.deps.Engine.Subscribe(ctx, s.deps.VAD)
		if err != nil {
			s.deps.Feed.Log(ctx, activity.Error, "Error: "+err.Error())
			s.deps.Feed.Notify(ctx, activity.LevelError, "Failed to start transcription: "+err.Error())
			res.err = err
		}
		res.sub = sub
	}
	select {
	case s.requests <- res:
	case <-s.done:
		if res.sub != nil {
			_ = res.sub.Close()
		}
	}
}

// apply runs ev through the transition function and executes the effects.
func (s *Session) apply(ctx context.Context, ev Event) {
	if ev == nil {
		return
	}
	next, effects := Transition(s.state, ev)
	s.state = next
	for _, e := range effects {
		s.execute(ctx, e)
	}
	s.mode.Store(int32(next.Mode))
}

func (s *Session) execute(ctx context.Context, e Effect) {
	switch e := e.(type) {
	case PlayCue:
		s.deps.Cues.Play(e.Cue, nil)
	case Log:
		s.deps.Feed.Log(ctx, e.Type, e.Message)
	case Notify:
		s.deps.Feed.Notify(ctx, e.Level, e.Message)
	case Status:
		s.deps.Host.ShowStatus(s.state.Mode, e)
	case Transcribe:
		s.transcribe(ctx, e.Segment)
	case CancelInFlight:
		if s.inflight != nil {
			s.inflight()
			s.inflight = nil
		}
	case AppendTranscript:
		if _, err := s.deps.Transcript.Append(ctx, e.Text); err != nil {
			s.deps.Feed.Log(ctx, activity.Error, "Failed to save transcript: "+err.Error())
		}
	case GenerateQuestions:
		s.flows.Add(1)
		go func() {
			defer s.flows.Done()
			if err := s.deps.Questions.GenerateQuestions(ctx, s.deps.Cues); err != nil {
				observe.Logger(ctx).Debug("question flow ended with error", "err", err)
			}
		}()
	case Unsubscribe:
		if s.sub != nil {
			if err := s.sub.Close(); err != nil {
				observe.Logger(ctx).Warn("closing vad subscription", "err", err)
			}
			s.sub = nil
		}
	case ResetSleepTimer:
		s.armSleep(ctx)
	case StopSleepTimer:
		s.disarmSleep()
	}
}

func (s *Session) transcribe(ctx context.Context, seg Segment) {
	if s.inflight != nil {
		s.inflight()
	}
	callCtx, cancel := context.WithCancel(observe.WithField(ctx, "segment", seg.ID.String()))
	s.inflight = cancel

	s.deps.Feed.Log(ctx, activity.Info, "Converting audio to WAV...")
	s.deps.Feed.Log(ctx, activity.APICall, "Sending to API...")
	go func() {
		defer cancel()
		start := time.Now()
		res, err := s.deps.Transcriber.Transcribe(callCtx, seg.Audio)
		done := TranscriptionDone{ID: seg.ID, Elapsed: time.Since(start), Err: err}
		if err == nil {
			done.Text = res.Text
			done.Command = res.Command
		} else if callCtx.Err() == nil {
			observe.Logger(callCtx).Warn("transcription failed", "kind", KindOf(err).String(), "err", err)
		}
		s.post(done)
	}()
}

func (s *Session) armSleep(ctx context.Context) {
	s.disarmSleep()
	d := s.autoSleep(ctx)
	if d <= 0 {
		return
	}
	s.sleepFor = d
	s.sleep = time.NewTimer(d)
}

func (s *Session) disarmSleep() {
	if s.sleep != nil {
		s.sleep.Stop()
		s.sleep = nil
	}
}

func (s *Session) teardown() {
	if s.sub != nil {
		_ = s.sub.Close()
		s.sub = nil
	}
	if s.inflight != nil {
		s.inflight()
		s.inflight = nil
	}
	s.disarmSleep()
	s.mode.Store(int32(Idle))
	s.flows.Wait()
}
