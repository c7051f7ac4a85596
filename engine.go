package corvus

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/synqronlabs/corvus/journal"
	"github.com/synqronlabs/corvus/sasl"
	"github.com/synqronlabs/corvus/transport"
	"github.com/synqronlabs/corvus/wire"
)

// Engine is the asynchronous SMTP submission engine.
//
// Create one with New, enqueue operations, and observe progress through
// the Events callbacks. A single driver goroutine owns the operation
// queue and the transport; public methods only post requests to it, so
// they are safe to call from any goroutine, including from inside an
// event callback.
type Engine struct {
	cfg     *Config
	log     *slog.Logger
	tr      transport.Transport
	events  Events
	jrnl    *journal.Journal
	metrics *metrics

	// inbox collects enqueued operations until the driver picks them up.
	inboxMu sync.Mutex
	inbox   []*operation
	lastID  int
	closed  bool

	wake chan struct{}
	done chan struct{}

	closeOnce sync.Once

	// snapshot state, readable from any goroutine.
	snapMu             sync.Mutex
	state              State
	errorStr           string
	lastErr            *ProtocolError
	opts               OptionSet
	authModes          map[AuthMode]bool
	localName          string
	localNameEncrypted string

	// driver-goroutine state.
	queue      []*operation
	inProgress bool
	framer     *wire.Framer
}

// New creates an Engine and starts its driver goroutine. A nil config
// uses DefaultConfig.
func New(cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	def := DefaultConfig()
	if cfg.LocalName == "" {
		cfg.LocalName = def.LocalName
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.QuitFlushTimeout == 0 {
		cfg.QuitFlushTimeout = def.QuitFlushTimeout
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	jrnl := journal.New(cfg.JournalLimit)
	log = log.With("component", "corvus", "session", jrnl.ID())

	tr := cfg.Transport
	if tr == nil {
		tr = transport.NewTCP(transport.Config{
			TLSConfig:   cfg.TLSConfig,
			Resolver:    cfg.Resolver,
			DialTimeout: cfg.DialTimeout,
			Logger:      log,
		})
	}

	e := &Engine{
		cfg:                cfg,
		log:                log,
		tr:                 tr,
		jrnl:               jrnl,
		metrics:            newMetrics(cfg.Metrics),
		wake:               make(chan struct{}, 1),
		done:               make(chan struct{}),
		state:              StateDisconnected,
		opts:               make(OptionSet),
		authModes:          make(map[AuthMode]bool),
		localName:          cfg.LocalName,
		localNameEncrypted: cfg.LocalNameEncrypted,
		framer:             wire.NewFramer(log),
	}
	if cfg.Events != nil {
		e.events = *cfg.Events
	}

	go e.run()
	return e
}

// Close stops the engine and closes the transport. Pending operations are
// dropped without events. The engine cannot be reused afterwards.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.inboxMu.Lock()
		e.closed = true
		e.inboxMu.Unlock()
		e.tr.Close()
		close(e.done)
	})
	return nil
}

// enqueue assigns an id and hands the operation to the driver.
// Returns -1 when the engine is closed.
func (e *Engine) enqueue(op *operation) int {
	e.inboxMu.Lock()
	if e.closed {
		e.inboxMu.Unlock()
		return -1
	}
	e.lastID++
	op.id = e.lastID
	e.inbox = append(e.inbox, op)
	e.inboxMu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return op.id
}

// ConnectToHost enqueues a plaintext connection to host:port.
// A port of 0 or less means 25.
func (e *Engine) ConnectToHost(host string, port int) int {
	if port <= 0 {
		port = 25
	}
	return e.enqueue(&operation{kind: opConnect, host: host, port: port})
}

// ConnectToHostEncrypted enqueues an implicit-TLS connection (SMTPS).
// A port of 0 or less means 465.
func (e *Engine) ConnectToHostEncrypted(host string, port int) int {
	if port <= 0 {
		port = 465
	}
	return e.enqueue(&operation{kind: opConnect, host: host, port: port, implicitTLS: true})
}

// StartTLS enqueues an in-band upgrade of the session to TLS (RFC 3207).
// The engine re-issues EHLO after the handshake and replaces the
// capability set with the server's post-TLS answer.
func (e *Engine) StartTLS() int {
	return e.enqueue(&operation{kind: opStartTLS})
}

// Authenticate enqueues an AUTH exchange. With AuthAny the engine picks
// PLAIN if the server advertised it, else LOGIN; requesting a mechanism
// the server did not advertise is the caller's risk.
func (e *Engine) Authenticate(user, password string, mode AuthMode) int {
	return e.enqueue(&operation{
		kind:  opAuthenticate,
		mode:  mode,
		creds: sasl.Credentials{Username: user, Password: password},
	})
}

// SendMail enqueues a mail transaction with an inline DATA phase. The
// body must be a complete, dot-stuffed message; the engine appends only
// the CRLF "." CRLF terminator.
func (e *Engine) SendMail(from string, to []string, body []byte) int {
	return e.enqueue(&operation{
		kind:  opMail,
		from:  from,
		rcpts: append([]string(nil), to...),
		body:  append([]byte(nil), body...),
	})
}

// SendMailBURL enqueues a BURL submission (RFC 4468): the message content
// is referenced by an IMAP URL instead of transmitted inline.
func (e *Engine) SendMailBURL(from string, to []string, imapURL string) int {
	return e.enqueue(&operation{
		kind:  opMailBURL,
		from:  from,
		rcpts: append([]string(nil), to...),
		burl:  imapURL,
	})
}

// RawCommand enqueues a verbatim command line. CRLF is appended when
// missing. The operation completes on the next reply group, whatever its
// code; the reply surfaces through the RawReply event.
func (e *Engine) RawCommand(text string) int {
	return e.enqueue(&operation{kind: opRaw, raw: text})
}

// DisconnectFromHost enqueues a clean session teardown: QUIT, a bounded
// flush wait, then closing the stream.
func (e *Engine) DisconnectFromHost() int {
	return e.enqueue(&operation{kind: opDisconnect})
}

// SetLocalName sets the hostname used in EHLO/HELO on plaintext streams.
func (e *Engine) SetLocalName(name string) {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	e.localName = name
}

// SetLocalNameEncrypted sets the hostname used in EHLO/HELO once the
// stream is under TLS. Empty means use the plaintext name.
func (e *Engine) SetLocalNameEncrypted(name string) {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	e.localNameEncrypted = name
}

// IgnoreTLSErrors makes subsequent TLS handshakes proceed despite
// certificate verification failures. The failures are still reported
// through the TLSErrors event. Call before StartTLS or
// ConnectToHostEncrypted.
func (e *Engine) IgnoreTLSErrors() {
	e.tr.IgnoreTLSErrors()
}

// State returns the engine's current state.
func (e *Engine) State() State {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	return e.state
}

// Options returns the capability set from the most recent EHLO.
func (e *Engine) Options() OptionSet {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	out := make(OptionSet, len(e.opts))
	for k, v := range e.opts {
		out[k] = v
	}
	return out
}

// SupportedAuthModes returns the SASL mechanisms the server advertised,
// in preference order.
func (e *Engine) SupportedAuthModes() []AuthMode {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	modes := make([]AuthMode, 0, len(e.authModes))
	for m := range e.authModes {
		modes = append(modes, m)
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i] < modes[j] })
	return modes
}

// ErrorString returns the text of the most recent failing reply. It is
// cleared at the start of each successful sub-step.
func (e *Engine) ErrorString() string {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	return e.errorStr
}

// LastError returns the most recent protocol rejection as a typed
// *ProtocolError, or nil when the last failure was not a server reply.
func (e *Engine) LastError() error {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	if e.lastErr == nil {
		return nil
	}
	return e.lastErr
}

// SessionID returns the ULID identifying this engine's transcript.
func (e *Engine) SessionID() string {
	return e.jrnl.ID()
}

// Journal returns the engine's wire transcript.
func (e *Engine) Journal() *journal.Journal {
	return e.jrnl
}

// run is the driver goroutine: the only code that touches the queue head,
// writes to the transport, and walks operation state machines.
func (e *Engine) run() {
	for {
		select {
		case <-e.done:
			return
		case <-e.wake:
			e.intake()
		case ev := <-e.tr.Events():
			e.handleTransportEvent(ev)
		}
	}
}

// intake moves freshly enqueued operations onto the queue and dispatches
// when idle.
func (e *Engine) intake() {
	e.inboxMu.Lock()
	ops := e.inbox
	e.inbox = nil
	e.inboxMu.Unlock()

	e.queue = append(e.queue, ops...)
	if !e.inProgress && len(e.queue) > 0 {
		e.dispatchHead()
	}
}

// setError records a failure description for ErrorString.
func (e *Engine) setError(text string) {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	e.errorStr = text
	e.lastErr = nil
}

// setReplyError records a protocol rejection: the joined reply text for
// ErrorString plus the typed form for LastError.
func (e *Engine) setReplyError(code int, lines []string) {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	e.errorStr = strings.Join(lines, "\n")
	e.lastErr = &ProtocolError{Code: code, Lines: append([]string(nil), lines...)}
}

func (e *Engine) clearError() {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	e.errorStr = ""
	e.lastErr = nil
}

// setState transitions the engine state, emitting StateChanged only on
// actual changes plus the Connected/Disconnected milestones.
func (e *Engine) setState(s State) {
	e.snapMu.Lock()
	old := e.state
	if old == s {
		e.snapMu.Unlock()
		return
	}
	e.state = s
	e.snapMu.Unlock()

	e.log.Debug("smtp: state change", "from", old, "to", s)
	e.emitStateChanged(s)
	if old == StateConnecting && s == StateConnected {
		e.emitConnected()
	}
	if s == StateDisconnected {
		e.emitDisconnected()
	}
}

// resetCapabilities clears the capability and auth-mode sets, as required
// on connect and before each EHLO.
func (e *Engine) resetCapabilities() {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	e.opts = make(OptionSet)
	e.authModes = make(map[AuthMode]bool)
}

// applyOptions replaces the capability set with the one parsed from an
// EHLO reply group.
func (e *Engine) applyOptions(lines []string) {
	opts, modes := parseOptions(lines)
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	e.opts = opts
	e.authModes = modes
}

// heloName picks the EHLO/HELO hostname: the encrypted variant when the
// stream is under TLS and one is set, the plain name otherwise.
func (e *Engine) heloName() string {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	if e.tr.IsEncrypted() && e.localNameEncrypted != "" {
		return e.localNameEncrypted
	}
	return e.localName
}
