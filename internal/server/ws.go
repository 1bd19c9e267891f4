package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/reshka/internal/cue"
	"github.com/MrWong99/reshka/internal/observe"
	"github.com/MrWong99/reshka/internal/orchestrator"
	"github.com/MrWong99/reshka/pkg/audio"
	"github.com/MrWong99/reshka/pkg/provider/vad"
)

const (
	// maxFrameBytes bounds a single frame. A minute of float32 audio at
	// 16 kHz is under 4 MiB.
	maxFrameBytes = 16 << 20

	// writeTimeout bounds a single frame write to a slow browser.
	writeTimeout = 5 * time.Second

	// replyTimeout bounds how long a permission query waits for the browser.
	// A permission prompt needs a human, so it is generous.
	replyTimeout = 60 * time.Second

	// cueGrace is added to a cue's duration when waiting for cue_ended.
	cueGrace = 500 * time.Millisecond

	// eventBuffer is the number of detector events queued per subscription.
	eventBuffer = 16
)

var errNoReply = errors.New("server: browser did not answer")

// client is one browser connection. It is the orchestrator host, the
// detector engine and the cue sink of its session.
type client struct {
	id   uuid.UUID
	srv  *Server
	conn *websocket.Conn
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan inbound
	sub     *browserSubscription

	player  *cue.Player
	session *orchestrator.Session
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		observe.Logger(r.Context()).Warn("websocket accept failed", "err", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	c, err := s.newClient(conn)
	if err != nil {
		observe.Logger(r.Context()).Error("creating session", "err", err)
		conn.Close(websocket.StatusInternalError, "session setup failed")
		return
	}
	if !s.register(c) {
		c.cancel()
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer s.unregister(c)

	c.run()
}

func (s *Server) newClient(conn *websocket.Conn) (*client, error) {
	id := uuid.New()
	ctx, cancel := context.WithCancel(observe.WithField(s.ctx, "client", id.String()))
	c := &client{
		id:      id,
		srv:     s,
		conn:    conn,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]chan inbound),
	}
	c.log = observe.Logger(ctx)
	c.player = cue.NewPlayer(ctx, s.deps.Cues, c, cue.WithMetrics(s.metrics))

	session, err := orchestrator.NewSession(orchestrator.Deps{
		Engine:      c,
		VAD:         s.deps.VAD,
		Host:        c,
		Cues:        c.player,
		Preflight:   s.preflight,
		Transcriber: s.transcriber,
		Transcript:  s.deps.Transcript,
		Questions:   s.deps.Assist,
		Settings:    s.deps.Settings,
		Feed:        s.deps.Feed,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	c.session = session
	return c, nil
}

// run serves the connection until the browser goes away or the server shuts
// down.
func (c *client) run() {
	c.log.Info("browser connected")
	defer c.log.Info("browser disconnected")

	go func() { _ = c.session.Run(c.ctx) }()

	c.sendSnapshot()
	err := c.readLoop()

	c.cancel()
	c.closeSubscription()
	<-c.session.Done()
	c.player.Wait()

	if err != nil && websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
		c.log.Debug("read loop ended", "err", err)
		c.conn.Close(websocket.StatusInternalError, "read failed")
		return
	}
	c.conn.Close(websocket.StatusNormalClosure, "")
}

func (c *client) sendSnapshot() {
	names := c.srv.deps.Cues.Names()
	cues := make([]string, len(names))
	for i, n := range names {
		cues[i] = string(n)
	}
	c.send(outbound{Type: msgHello, Data: helloPayload{
		ClientID: c.id.String(),
		VAD:      c.srv.deps.VAD,
		Cues:     cues,
	}})
	c.ShowStatus(orchestrator.Idle, orchestrator.Status{State: orchestrator.StatusReady, Text: "Ready"})
	c.send(outbound{Type: msgTranscript, Data: textPayload{Text: c.srv.deps.Transcript.Text()}})
	if q, found, err := c.srv.deps.Assist.Questions(c.ctx); err == nil && found {
		c.send(outbound{Type: msgQuestions, Data: q})
	}
	if r, found, err := c.srv.deps.Assist.RephraseResult(c.ctx); err == nil && found {
		c.send(outbound{Type: msgRephrase, Data: textPayload{Text: r}})
	}
}

func (c *client) readLoop() error {
	for {
		typ, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return err
		}
		switch typ {
		case websocket.MessageBinary:
			c.onSegment(data)
		case websocket.MessageText:
			var in inbound
			if err := json.Unmarshal(data, &in); err != nil {
				c.log.Debug("ignoring malformed frame", "err", err)
				continue
			}
			c.onMessage(in)
		}
	}
}

func (c *client) onMessage(in inbound) {
	switch in.Type {
	case msgStart:
		c.session.Start()
	case msgStop:
		c.session.Stop()
	case msgSpeechStart:
		c.deliver(vad.Event{Type: vad.SpeechStart})
	case msgMisfire:
		c.deliver(vad.Event{Type: vad.Misfire})
	case msgPermission, msgCueEnded:
		c.resolve(in)
	default:
		c.log.Debug("ignoring unknown frame", "type", in.Type)
	}
}

func (c *client) onSegment(data []byte) {
	buf, err := audio.DecodeFloat32LE(data, c.srv.deps.VAD.SampleRate)
	if err != nil {
		c.log.Warn("dropping malformed segment", "bytes", len(data), "err", err)
		return
	}
	c.deliver(vad.Event{Type: vad.SpeechEnd, Segment: buf})
}

// ── outbound ────────────────────────────────────────────────────────────────

func (c *client) send(msg outbound) {
	if err := c.write(msg, nil); err != nil && c.ctx.Err() == nil {
		c.log.Debug("websocket write failed", "type", msg.Type, "err", err)
	}
}

// write sends msg, followed by payload as a binary frame when non-nil. The
// pair is written atomically with respect to other writers.
func (c *client) write(msg outbound, payload []byte) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("server: marshal %s: %w", msg.Type, err)
	}
	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return err
	}
	if payload != nil {
		return c.conn.Write(ctx, websocket.MessageBinary, payload)
	}
	return nil
}

// ask sends msg with a fresh id and waits for the matching reply.
func (c *client) ask(ctx context.Context, msg outbound, timeout time.Duration) (inbound, error) {
	msg.ID = uuid.NewString()
	reply := c.await(msg.ID)
	defer c.forget(msg.ID)

	if err := c.write(msg, nil); err != nil {
		return inbound{}, err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case in := <-reply:
		return in, nil
	case <-timer.C:
		return inbound{}, errNoReply
	case <-ctx.Done():
		return inbound{}, ctx.Err()
	}
}

func (c *client) await(id string) <-chan inbound {
	ch := make(chan inbound, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	return ch
}

func (c *client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *client) resolve(in inbound) {
	c.mu.Lock()
	ch, ok := c.pending[in.ID]
	delete(c.pending, in.ID)
	c.mu.Unlock()
	if ok {
		ch <- in
	}
}

// ── orchestrator.Host ───────────────────────────────────────────────────────

func (c *client) MicrophonePermission(ctx context.Context) (orchestrator.MicPermission, error) {
	in, err := c.ask(ctx, outbound{Type: msgPermissionQuery}, replyTimeout)
	if err != nil {
		return "", err
	}
	if in.Error != "" {
		return "", errors.New(in.Error)
	}
	return orchestrator.MicPermission(in.State), nil
}

func (c *client) RequestMicrophone(ctx context.Context) error {
	in, err := c.ask(ctx, outbound{Type: msgPermissionRequest}, replyTimeout)
	if err != nil {
		return err
	}
	if in.Error != "" {
		return errors.New(in.Error)
	}
	if orchestrator.MicPermission(in.State) != orchestrator.MicGranted {
		return fmt.Errorf("microphone %s", in.State)
	}
	return nil
}

func (c *client) Redirect(_ context.Context, after time.Duration) {
	c.send(outbound{Type: msgRedirect, Data: redirectPayload{To: configPath, AfterMS: after.Milliseconds()}})
}

func (c *client) ShowStatus(mode orchestrator.Mode, st orchestrator.Status) {
	c.send(outbound{Type: msgState, Data: statePayload{
		Mode:  mode.String(),
		State: string(st.State),
		Text:  st.Text,
	}})
}

// ── cue.Sink ────────────────────────────────────────────────────────────────

// Play sends the cue and blocks until the browser reports it finished, or
// its duration has passed.
func (c *client) Play(ctx context.Context, cu cue.Cue) error {
	id := uuid.NewString()
	done := c.await(id)
	defer c.forget(id)

	msg := outbound{Type: msgCue, ID: id, Data: cuePayload{
		Name:       string(cu.Name),
		DurationMS: cu.Duration.Milliseconds(),
		Size:       len(cu.WAV),
	}}
	if err := c.write(msg, cu.WAV); err != nil {
		return err
	}

	timer := time.NewTimer(cu.Duration + cueGrace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// ── vad.Engine ──────────────────────────────────────────────────────────────

// browserSubscription delivers the detector callbacks relayed by the
// browser. The detector itself runs in the page.
type browserSubscription struct {
	c      *client
	ch     chan vad.Event
	closed bool
}

// Subscribe starts the browser detector with cfg. A previous subscription
// is closed first.
func (c *client) Subscribe(_ context.Context, cfg vad.Config) (vad.Subscription, error) {
	c.closeSubscription()

	sub := &browserSubscription{c: c, ch: make(chan vad.Event, eventBuffer)}
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()

	if err := c.write(outbound{Type: msgVAD, Data: vadPayload{Action: "start", Config: &cfg}}, nil); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("server: start detector: %w", err)
	}
	return sub, nil
}

func (c *client) deliver(ev vad.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub == nil || c.sub.closed {
		return
	}
	select {
	case c.sub.ch <- ev:
	default:
		c.log.Warn("detector event dropped, session busy", "event", ev.Type.String())
	}
}

func (c *client) closeSubscription() {
	c.mu.Lock()
	sub := c.sub
	c.mu.Unlock()
	if sub != nil {
		_ = sub.Close()
	}
}

func (s *browserSubscription) Events() <-chan vad.Event {
	return s.ch
}

// Close pauses the browser detector. Safe to call more than once.
func (s *browserSubscription) Close() error {
	c := s.c
	c.mu.Lock()
	if s.closed {
		c.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	if c.sub == s {
		c.sub = nil
	}
	c.mu.Unlock()

	if c.ctx.Err() == nil {
		c.send(outbound{Type: msgVAD, Data: vadPayload{Action: "pause"}})
	}
	return nil
}

var (
	_ orchestrator.Host = (*client)(nil)
	_ cue.Sink          = (*client)(nil)
	_ vad.Engine        = (*client)(nil)
)
