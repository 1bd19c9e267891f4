package server

import (
	"github.com/MrWong99/reshka/pkg/provider/vad"
)

// Client → server text frame types. A binary frame carries one finished
// speech segment as little-endian float32 samples at the capture rate.
const (
	msgStart       = "start"
	msgStop        = "stop"
	msgSpeechStart = "speech_start"
	msgMisfire     = "misfire"
	msgPermission  = "permission"
	msgCueEnded    = "cue_ended"
)

// Server → client text frame types. A cue frame is immediately followed by
// a binary frame holding the WAV bytes.
const (
	msgHello             = "hello"
	msgState             = "state"
	msgVAD               = "vad"
	msgLog               = "log"
	msgToast             = "toast"
	msgActivityCleared   = "activity_cleared"
	msgRedirect          = "redirect"
	msgTranscript        = "transcript"
	msgQuestions         = "questions"
	msgRephrase          = "rephrase"
	msgPermissionQuery   = "permission_query"
	msgPermissionRequest = "permission_request"
	msgCue               = "cue"
)

// configPath is where the browser is sent on credential failures.
const configPath = "/config"

type inbound struct {
	Type string `json:"type"`

	// ID correlates replies (permission, cue_ended) with the server frame
	// that asked for them.
	ID string `json:"id,omitempty"`

	// State is the permission state for permission replies.
	State string `json:"state,omitempty"`

	// Error is set when the browser failed to answer a query.
	Error string `json:"error,omitempty"`
}

type outbound struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Data any    `json:"data,omitempty"`
}

type helloPayload struct {
	ClientID string     `json:"clientId"`
	VAD      vad.Config `json:"vad"`
	Cues     []string   `json:"cues"`
}

type statePayload struct {
	Mode  string `json:"mode"`
	State string `json:"state"`
	Text  string `json:"text"`
}

type vadPayload struct {
	Action string      `json:"action"`
	Config *vad.Config `json:"config,omitempty"`
}

type redirectPayload struct {
	To      string `json:"to"`
	AfterMS int64  `json:"afterMs"`
}

type cuePayload struct {
	Name       string `json:"name"`
	DurationMS int64  `json:"durationMs"`
	Size       int    `json:"size"`
}

type textPayload struct {
	Text string `json:"text"`
}
