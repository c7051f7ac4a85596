package corvus

// Events defines the callback interface for engine notifications.
// All callbacks are optional; nil callbacks are simply not invoked.
// Callbacks run on the driver goroutine and should return quickly.
// Enqueuing further operations from a callback is safe: they are picked
// up after the current protocol step, never in the middle of one.
type Events struct {
	// StateChanged is called on every actual state transition. It never
	// fires twice in a row with the same value.
	StateChanged func(state State)

	// Connected is called when the session to the server is established
	// (after the TLS handshake, for implicit TLS).
	Connected func()

	// Disconnected is called when the session ends, cleanly or not.
	Disconnected func()

	// TLSStarted is called when a STARTTLS upgrade completed, including
	// the post-handshake EHLO.
	TLSStarted func()

	// Authenticated is called when an AUTH exchange succeeded.
	Authenticated func()

	// CommandStarted is called when the operation with the given id is
	// dispatched. At most once per operation.
	CommandStarted func(id int)

	// CommandFinished is called when the operation completes. Exactly
	// once per dispatched operation unless the session is torn down, in
	// which case pending operations are discarded after a single
	// Done(false).
	CommandFinished func(id int, errored bool)

	// Done is called when the engine goes idle: true when the queue
	// drained successfully or a requested disconnect completed, false on
	// a session failure.
	Done func(ok bool)

	// RawReply is called with the reply to a RawCommand operation.
	RawReply func(code int, text string)

	// TLSErrors is called with certificate verification errors. See
	// Engine.IgnoreTLSErrors.
	TLSErrors func(errs []error)

	// SocketError is called with a fatal transport error.
	SocketError func(err error)

	// LogSent receives every byte sequence written to the server, plus
	// "*** " annotations for out-of-band happenings. Credentials are
	// replaced with placeholders.
	LogSent func(data []byte)

	// LogReceived receives every byte sequence read from the server.
	LogReceived func(data []byte)
}

// The emit helpers keep nil checks out of the driver logic.

func (e *Engine) emitStateChanged(s State) {
	if e.events.StateChanged != nil {
		e.events.StateChanged(s)
	}
}

func (e *Engine) emitConnected() {
	if e.events.Connected != nil {
		e.events.Connected()
	}
}

func (e *Engine) emitDisconnected() {
	if e.events.Disconnected != nil {
		e.events.Disconnected()
	}
}

func (e *Engine) emitTLSStarted() {
	if e.events.TLSStarted != nil {
		e.events.TLSStarted()
	}
}

func (e *Engine) emitAuthenticated() {
	if e.events.Authenticated != nil {
		e.events.Authenticated()
	}
}

func (e *Engine) emitCommandStarted(id int) {
	if e.events.CommandStarted != nil {
		e.events.CommandStarted(id)
	}
}

func (e *Engine) emitCommandFinished(id int, errored bool) {
	if e.events.CommandFinished != nil {
		e.events.CommandFinished(id, errored)
	}
}

func (e *Engine) emitDone(ok bool) {
	if !ok {
		e.metrics.sessionFailure()
	}
	if e.events.Done != nil {
		e.events.Done(ok)
	}
}

func (e *Engine) emitRawReply(code int, text string) {
	if e.events.RawReply != nil {
		e.events.RawReply(code, text)
	}
}

func (e *Engine) emitTLSErrors(errs []error) {
	if e.events.TLSErrors != nil {
		e.events.TLSErrors(errs)
	}
}

func (e *Engine) emitSocketError(err error) {
	if e.events.SocketError != nil {
		e.events.SocketError(err)
	}
}

func (e *Engine) emitLogSent(data []byte) {
	e.jrnl.Sent(data)
	if e.events.LogSent != nil {
		e.events.LogSent(data)
	}
}

func (e *Engine) emitLogNote(text string) {
	e.jrnl.Note(text)
	if e.events.LogSent != nil {
		e.events.LogSent([]byte(text))
	}
}

func (e *Engine) emitLogReceived(data []byte) {
	e.jrnl.Received(data)
	if e.events.LogReceived != nil {
		e.events.LogReceived(data)
	}
}
