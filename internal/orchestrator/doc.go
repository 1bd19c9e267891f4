// Package orchestrator coordinates one dictation session: voice activity
// events in, remote transcription calls out, transcript updates and feedback
// cues as side effects.
//
// The state machine in fsm.go is pure. [Transition] takes the current
// [State] and an [Event] and returns the next state plus the effects to run,
// so every transition is testable without goroutines. [Session] owns a
// State, runs effects and feeds their completions back in as events on a
// single loop goroutine. Segments that end while another is being
// transcribed queue up in FIFO order, so each one is transcribed exactly
// once.
//
// [Preflight] checks credentials and microphone permission before capture
// starts. [Transcriber] builds and sends the request for one segment.
package orchestrator
