// Package stream implements the per-connection streaming protocol served at
// /ws/stream.
//
// A [Session] owns one [ChunkBuffer] and one language configuration and runs
// a single control loop. Inbound messages are handled strictly in order.
// When the buffer crosses its threshold, or the client flushes, the loop
// snapshots the buffer and hands a processing pass (decode, transcribe,
// translate) to the shared inference gateway, then goes straight back to
// reading. At most one pass is in flight per session; chunks that arrive in
// the meantime only grow the buffer, and a flush received while busy runs as
// soon as the current pass completes. A close answers every pass already
// owed to the client before the transport is closed.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrWong99/lingualink/internal/inference"
	"github.com/MrWong99/lingualink/internal/language"
	"github.com/MrWong99/lingualink/internal/observe"
	"github.com/MrWong99/lingualink/internal/transcript"
	"github.com/MrWong99/lingualink/pkg/audio"
)

// DefaultMinDuration is the shortest decoded segment an auto-flush pass will
// transcribe. Explicit flushes ignore it.
const DefaultMinDuration = 500 * time.Millisecond

// Conn is the message transport a session runs over.
type Conn interface {
	// Read blocks for the next client message.
	Read(ctx context.Context) ([]byte, error)

	// Write sends one JSON-encodable message.
	Write(ctx context.Context, v any) error

	// Close closes the transport.
	Close() error
}

// Decoder turns a buffered blob into a segment. It must not fail; an
// undecodable blob yields an empty segment.
type Decoder interface {
	Decode(ctx context.Context, data []byte, targetRate int) audio.Segment
}

// Config tunes a session.
type Config struct {
	// AutoFlushBytes is the [ChunkBuffer] threshold.
	AutoFlushBytes int

	// MinDuration is the auto-flush segment floor.
	MinDuration time.Duration

	// SampleRate is the rate segments are decoded to.
	SampleRate int
}

func (c Config) withDefaults() Config {
	if c.AutoFlushBytes <= 0 {
		c.AutoFlushBytes = DefaultAutoFlushBytes
	}
	if c.MinDuration <= 0 {
		c.MinDuration = DefaultMinDuration
	}
	if c.SampleRate <= 0 {
		c.SampleRate = audio.TargetSampleRate
	}
	return c
}

// Deps are the shared collaborators a session uses.
type Deps struct {
	Gateway *inference.Gateway
	Decoder Decoder

	// Store, when set, receives every final result.
	Store transcript.Store

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// State is the protocol state of a session.
type State int

const (
	StateOpen State = iota
	StateClosed
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

type passMode int

const (
	passAuto passMode = iota
	passFlush
)

func (m passMode) String() string {
	if m == passAuto {
		return "auto"
	}
	return "flush"
}

// passResult is what a processing pass hands back to the control loop.
type passResult struct {
	mode     passMode
	skipped  bool
	text     string
	detected string
	translit string
	target   *string
}

// Session is one streaming client.
type Session struct {
	id   string
	conn Conn
	cfg  Config
	deps Deps
	log  *slog.Logger

	state        State
	lang         LanguageConfig
	buf          *ChunkBuffer
	pending      *inference.Future[passResult]
	pendingMode  passMode
	pendingFlush bool
}

// NewSession creates a session in [StateOpen]. Call [Session.Run] to serve it.
func NewSession(id string, conn Conn, cfg Config, deps Deps) *Session {
	cfg = cfg.withDefaults()
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	return &Session{
		id:   id,
		conn: conn,
		cfg:  cfg,
		deps: deps,
		log:  slog.With("component", "stream", "session_id", id),
		buf:  NewChunkBuffer(cfg.AutoFlushBytes),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

type readResult struct {
	data []byte
	err  error
}

// Run serves the session until the client sends close, the transport fails
// or ctx ends. A client close or disconnect returns nil. On a client close the
// in-flight pass and any deferred flush are still answered; when ctx ends or
// the transport fails they are cancelled and their results discarded.
func (s *Session) Run(ctx context.Context) error {
	ctx = observe.WithSessionID(ctx, s.id)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() { s.state = StateClosed }()

	s.deps.Metrics.ActiveSessions.Add(ctx, 1)
	defer s.deps.Metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)

	inbound := make(chan readResult)
	go func() {
		for {
			data, err := s.conn.Read(ctx)
			select {
			case inbound <- readResult{data: data, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	s.log.Debug("session opened")
	for {
		var passDone <-chan struct{}
		if s.pending != nil {
			passDone = s.pending.Done()
		}

		select {
		case <-ctx.Done():
			_ = s.close()
			return ctx.Err()

		case r := <-inbound:
			if r.err != nil {
				s.log.Debug("session disconnected", "error", r.err)
				s.state = StateClosed
				return nil
			}
			if stop := s.handle(ctx, r.data); stop {
				s.drain(ctx)
				s.log.Debug("session closed by client")
				return s.close()
			}

		case <-passDone:
			res, err := s.pending.Result()
			mode := s.pendingMode
			s.pending = nil
			s.emitPass(ctx, mode, res, err)

			switch {
			case s.pendingFlush:
				s.pendingFlush = false
				s.startPass(ctx, passFlush)
			case s.buf.ShouldAutoFlush():
				s.startPass(ctx, passAuto)
			}
		}
	}
}

// drain answers the in-flight pass and a deferred flush, in order, then
// discards whatever audio is still buffered.
func (s *Session) drain(ctx context.Context) {
	for s.pending != nil {
		res, err := s.pending.Await(ctx)
		mode := s.pendingMode
		s.pending = nil
		s.emitPass(ctx, mode, res, err)

		if s.pendingFlush && ctx.Err() == nil {
			s.pendingFlush = false
			s.startPass(ctx, passFlush)
		}
	}
	s.buf.SnapshotAndClear()
}

// close moves the session to [StateClosed] and closes the transport.
func (s *Session) close() error {
	s.state = StateClosed
	return s.conn.Close()
}

// handle processes one inbound message and reports whether the session
// should terminate.
func (s *Session) handle(ctx context.Context, data []byte) bool {
	msg, err := ParseMessage(data)
	if err != nil {
		s.record(ctx, "in", "invalid")
		s.send(ctx, newError(err.Error()))
		return false
	}
	s.record(ctx, "in", msg.messageType())

	switch m := msg.(type) {
	case ConfigMessage:
		s.handleConfig(ctx, m)
	case ChunkMessage:
		b, err := m.Decode()
		if err != nil {
			s.send(ctx, newError(err.Error()))
			return false
		}
		s.buf.Append(b)
		if s.pending == nil && s.buf.ShouldAutoFlush() {
			s.startPass(ctx, passAuto)
		}
	case FlushMessage:
		if s.pending != nil {
			s.pendingFlush = true
			return false
		}
		s.startPass(ctx, passFlush)
	case CloseMessage:
		return true
	}
	return false
}

func (s *Session) handleConfig(ctx context.Context, m ConfigMessage) {
	next := s.lang
	for _, f := range []struct {
		in  *string
		dst **string
	}{
		{m.SourceLanguage, &next.SourceLanguage},
		{m.TargetLanguage, &next.TargetLanguage},
	} {
		switch {
		case f.in == nil:
		case *f.in == "":
			*f.dst = nil
		default:
			code, ok := language.Normalize(*f.in)
			if !ok {
				s.send(ctx, newError("unsupported language: "+*f.in))
				return
			}
			*f.dst = &code
		}
	}
	s.lang = next
	s.send(ctx, newConfigAck(s.lang))
}

// startPass snapshots the buffer and submits one processing pass.
func (s *Session) startPass(ctx context.Context, mode passMode) {
	data := s.buf.SnapshotAndClear()
	hint := s.lang.Source()
	target := s.lang.TargetLanguage

	s.pendingMode = mode
	s.pending = inference.Submit(ctx, s.deps.Gateway, "pass", func(ctx context.Context) (passResult, error) {
		return s.process(ctx, mode, data, hint, target)
	})
}

// process runs on a gateway worker. It must not touch session state.
func (s *Session) process(ctx context.Context, mode passMode, data []byte, hint string, target *string) (passResult, error) {
	res := passResult{mode: mode, target: target}

	seg := s.deps.Decoder.Decode(ctx, data, s.cfg.SampleRate)
	if mode == passAuto && seg.Duration() < s.cfg.MinDuration {
		res.skipped = true
		return res, nil
	}

	tr, err := s.deps.Gateway.Transcribe(ctx, seg, hint)
	if err != nil {
		return res, err
	}
	res.text, res.detected, res.translit = tr.Text, tr.Language, tr.Text

	tgt := deref(target)
	if tgt != "" && tgt != tr.Language && tr.Text != "" {
		res.translit = s.deps.Gateway.Translate(ctx, tr.Text, tr.Language, tgt)
	}

	if mode == passFlush && s.deps.Store != nil && res.text != "" {
		e := transcript.Entry{
			SessionID: s.id,
			Source:    transcript.SourceStream,
			Text:      res.text,
			Language:  res.detected,
		}
		if tgt != "" {
			e.Translations = map[string]string{tgt: res.translit}
		}
		if err := s.deps.Store.Append(ctx, e); err != nil {
			s.log.Warn("failed to persist transcript", "error", err)
		}
	}
	return res, nil
}

func (s *Session) emitPass(ctx context.Context, mode passMode, res passResult, err error) {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		if mode == passAuto {
			s.log.Warn("interim pass failed", "error", err)
			return
		}
		s.log.Error("final pass failed", "error", err)
		s.send(ctx, newError(err.Error()))
		return
	}

	switch {
	case res.mode == passAuto && res.skipped:
		s.log.Debug("interim pass skipped: segment below minimum duration")
	case res.mode == passAuto:
		s.send(ctx, newInterim(res.text, res.detected))
	default:
		s.send(ctx, Final{
			Type:             TypeFinal,
			OriginalText:     res.text,
			TranslatedText:   res.translit,
			DetectedLanguage: res.detected,
			TargetLanguage:   res.target,
		})
	}
}

// send writes one message. Write failures are left for the reader to notice
// as a disconnect. A closed session sends nothing.
func (s *Session) send(ctx context.Context, v any) {
	if s.state == StateClosed {
		return
	}
	var t string
	switch m := v.(type) {
	case ConfigAck:
		t = m.Type
	case Interim:
		t = m.Type
	case Final:
		t = m.Type
	case ErrorMessage:
		t = m.Type
	}
	s.record(ctx, "out", t)
	if err := s.conn.Write(ctx, v); err != nil {
		s.log.Debug("write failed", "type", t, "error", err)
	}
}

func (s *Session) record(ctx context.Context, direction, msgType string) {
	s.deps.Metrics.RecordMessage(ctx, "stream", direction, msgType)
}
