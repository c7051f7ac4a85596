package corvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/synqronlabs/corvus/sasl"
	"github.com/synqronlabs/corvus/transport"
	"github.com/synqronlabs/corvus/wire"
)

// This file is the dialog driver: it dispatches the head operation,
// consumes framed replies against the composite (kind, stage, code) key,
// and funnels every completion through advance so each operation finishes
// exactly once.

// handleTransportEvent reacts to transport lifecycle and data events.
func (e *Engine) handleTransportEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventConnected:
		e.onConnected()
	case transport.EventEncrypted:
		e.onEncrypted()
	case transport.EventData:
		e.onData(ev.Data)
	case transport.EventSocketError:
		e.log.Debug("smtp: socket error", "err", ev.Err)
		e.setError(ev.Err.Error())
		e.emitSocketError(ev.Err)
	case transport.EventTLSErrors:
		e.emitTLSErrors(ev.TLSErrors)
	case transport.EventDisconnected:
		e.onDisconnected()
	}
}

// onConnected runs when the stream is open (for implicit TLS, after the
// handshake). Capabilities are forgotten; the banner is awaited at stage 0.
func (e *Engine) onConnected() {
	e.resetCapabilities()
	e.framer = wire.NewFramer(e.log)
	e.setState(StateConnected)
}

// onEncrypted runs when a STARTTLS handshake completed: forget everything
// and restart capability discovery with a fresh EHLO.
func (e *Engine) onEncrypted() {
	e.resetCapabilities()
	if e.inProgress && len(e.queue) > 0 && e.queue[0].kind == opStartTLS {
		e.sendEhlo()
	}
}

// onData frames a read batch and processes each completed reply group in
// order against the head operation. A pipelined batch may carry replies
// for several sub-steps; each is applied before the next is looked at.
func (e *Engine) onData(data []byte) {
	e.emitLogReceived(data)

	for _, r := range e.framer.Feed(data) {
		e.metrics.reply(r.Code)
		if !e.inProgress || len(e.queue) == 0 {
			e.log.Debug("smtp: reply with no operation in progress", "code", r.Code, "text", r.Text())
			continue
		}
		e.handleReply(r)
	}
}

// onDisconnected tears the session down. A disconnect requested through
// the queue concludes cleanly; anything else fails the head operation and
// discards the rest of the queue.
func (e *Engine) onDisconnected() {
	e.setState(StateDisconnected)

	if len(e.queue) == 0 {
		e.inProgress = false
		e.emitDone(true)
		return
	}

	if e.queue[0].kind == opDisconnect {
		e.finishHead(false)
		e.inProgress = false
		e.emitDone(true)
		if len(e.queue) > 0 {
			// A reconnect sequence was queued behind the disconnect.
			e.dispatchHead()
		}
		return
	}

	e.finishHead(true)
	e.queue = nil
	e.inProgress = false
	e.emitDone(false)
}

// dispatchHead starts the head operation.
func (e *Engine) dispatchHead() {
	op := e.queue[0]
	e.inProgress = true
	e.metrics.command(op.kind)
	e.emitCommandStarted(op.id)

	switch op.kind {
	case opConnect:
		ctx := context.Background()
		if op.implicitTLS {
			e.emitLogNote(fmt.Sprintf("*** connectToHostEncrypted: %s:%d", op.host, op.port))
			if err := e.tr.ConnectEncrypted(ctx, op.host, op.port); err != nil {
				e.setError(err.Error())
				e.advance(true, true)
				return
			}
		} else {
			e.emitLogNote(fmt.Sprintf("*** connectToHost: %s:%d", op.host, op.port))
			if err := e.tr.Connect(ctx, op.host, op.port); err != nil {
				e.setError(err.Error())
				e.advance(true, true)
				return
			}
		}
		e.setState(StateConnecting)

	case opDisconnect:
		e.sendQuit()

	case opStartTLS:
		e.send([]byte("STARTTLS\r\n"))
		e.setState(StateTLSRequested)

	case opAuthenticate:
		e.dispatchAuthenticate(op)

	case opMail, opMailBURL:
		e.setState(StateSending)
		e.send([]byte("MAIL FROM:<" + op.from + ">\r\n"))

	case opRaw:
		text := op.raw
		if !strings.HasSuffix(text, "\r\n") {
			text += "\r\n"
		}
		e.setState(StateSending)
		e.send([]byte(text))
	}
}

// dispatchAuthenticate resolves the requested mode against the advertised
// mechanisms and opens the AUTH exchange. An unresolvable mode fails the
// operation right away.
func (e *Engine) dispatchAuthenticate(op *operation) {
	mode := op.mode
	if mode == AuthAny {
		e.snapMu.Lock()
		plain, login := e.authModes[AuthPlain], e.authModes[AuthLogin]
		e.snapMu.Unlock()
		if plain {
			mode = AuthPlain
		} else if login {
			mode = AuthLogin
		}
	}

	switch mode {
	case AuthPlain:
		op.mech = sasl.NewPlain(op.creds)
	case AuthLogin:
		op.mech = sasl.NewLogin(op.creds)
	default:
		e.log.Warn("smtp: no usable authentication mechanism", "requested", op.mode)
		e.setError("Unsupported or unknown authentication scheme")
		e.advance(true, true)
		return
	}
	op.mode = mode

	e.send([]byte("AUTH " + op.mech.Name() + "\r\n"))
	e.setState(StateAuthenticating)
}

// handleReply applies one framed reply to the head operation.
func (e *Engine) handleReply(r wire.Reply) {
	op := e.queue[0]
	switch op.kind {
	case opConnect:
		e.replyConnect(op, r)
	case opStartTLS:
		e.replyStartTLS(op, r)
	case opAuthenticate:
		e.replyAuthenticate(op, r)
	case opMail, opMailBURL:
		e.replyMail(op, r)
	case opRaw:
		e.replyRaw(op, r)
	case opDisconnect:
		// Typically the 221 goodbye; completion is driven by the
		// transport's disconnect event.
		e.log.Debug("smtp: reply during disconnect", "code", r.Code)
	}
}

// replyConnect: stage 0 awaits the banner, stage 1 the EHLO answer,
// stage 2 the HELO fallback answer.
func (e *Engine) replyConnect(op *operation, r wire.Reply) {
	switch {
	case op.stage == 0 && r.Code == 220:
		e.sendEhlo()

	case op.stage == 1 && r.Code == 250:
		e.applyOptions(r.Lines)
		e.clearError()
		e.setState(StateConnected)
		e.advance(false, false)

	case op.stage == 1 && (r.Code == 421 || r.Code == 501 || r.Code == 502 || r.Code == 554):
		// EHLO not understood or refused; note the reason and fall back
		// to HELO. The error slot clears again if HELO succeeds.
		e.setReplyError(r.Code, r.Lines)
		e.sendHelo()
		op.stage = 2

	case op.stage == 2 && r.Code == 250:
		// HELO advertises no capabilities.
		e.clearError()
		e.setState(StateConnected)
		e.advance(false, false)

	default:
		e.setReplyError(r.Code, r.Lines)
		e.advance(true, true)
	}
}

// replyStartTLS: stage 0 awaits the go-ahead for the handshake, stage 1
// the post-handshake EHLO answer.
func (e *Engine) replyStartTLS(op *operation, r wire.Reply) {
	switch {
	case op.stage == 0 && r.Code == 220:
		e.emitLogNote("*** startClientEncryption")
		if err := e.tr.StartClientEncryption(); err != nil {
			e.setError(err.Error())
			e.advance(true, true)
		}

	case op.stage == 1 && r.Code == 250:
		e.applyOptions(r.Lines)
		e.clearError()
		e.setState(StateConnected)
		e.emitTLSStarted()
		e.advance(false, false)

	default:
		e.log.Debug("smtp: starttls refused", "stage", op.stage, "code", r.Code, "text", r.Text())
		e.setError("TLS failed")
		// The transport stays open; the caller inspects and decides.
		e.advance(true, true)
	}
}

// replyAuthenticate walks the AUTH exchange: 334 challenges are answered
// by the mechanism, 235 concludes, anything else is a rejection.
func (e *Engine) replyAuthenticate(op *operation, r wire.Reply) {
	switch r.Code {
	case 235:
		e.clearError()
		e.emitAuthenticated()
		e.setState(StateConnected)
		e.advance(false, false)

	case 334:
		resp, err := op.mech.Respond(r.Text())
		if err != nil {
			// The server wants more rounds than the mechanism has:
			// this attempt failed.
			e.setReplyError(r.Code, r.Lines)
			e.setState(StateConnected)
			e.advance(true, false)
			return
		}
		e.clearError()
		e.sendLogged([]byte(resp+"\r\n"), e.authLogLine(op, resp))
		op.stage++

	default:
		e.setReplyError(r.Code, r.Lines)
		e.setState(StateConnected)
		e.advance(true, true)
	}
}

// authLogLine substitutes credentials in the sent-log stream. The PLAIN
// blob and the LOGIN password round are replaced with placeholders; the
// LOGIN username round is logged as written.
func (e *Engine) authLogLine(op *operation, resp string) []byte {
	if op.mode == AuthPlain {
		return []byte("*** [sending authentication data: username '" + op.creds.Username + "']")
	}
	if op.stage >= 1 {
		return []byte("*** [AUTH LOGIN password]")
	}
	return []byte(resp + "\r\n")
}

// replyMail drives MAIL FROM, the RCPT TO loop, then DATA+body or BURL.
func (e *Engine) replyMail(op *operation, r wire.Reply) {
	switch {
	case op.stage == 0 && r.Code == 250:
		if len(op.rcpts) == 0 {
			e.setError("no recipients")
			e.setState(StateConnected)
			e.advance(true, false)
			return
		}
		e.clearError()
		e.sendRcpt(op)

	case op.stage == 0 && r.Code == 421:
		// Temporary envelope failure (greylisting, most likely). The
		// session stays usable; move on to the next operation.
		e.setReplyError(r.Code, r.Lines)
		e.setState(StateConnected)
		e.advance(true, false)

	case op.stage == 1 && r.Code == 250:
		e.clearError()
		if op.kind == opMailBURL {
			e.send([]byte("BURL " + op.burl + " LAST\r\n"))
		} else {
			e.send([]byte("DATA\r\n"))
		}
		op.stage = 2

	case op.stage == 2 && r.Code == 354 && op.kind == opMail:
		e.clearError()
		// The body is expected to be dot-stuffed already; only the
		// terminator is appended.
		payload := make([]byte, 0, len(op.body)+5)
		payload = append(payload, op.body...)
		payload = append(payload, "\r\n.\r\n"...)
		e.send(payload)
		op.stage = 3

	case r.Code == 250 && (op.stage == 3 || (op.stage == 2 && op.kind == opMailBURL)):
		// Message queued (inline DATA) or BURL accepted.
		e.clearError()
		e.setState(StateConnected)
		e.advance(false, false)

	default:
		e.setReplyError(r.Code, r.Lines)
		e.setState(StateConnected)
		e.advance(true, true)
	}
}

// replyRaw completes the raw operation on its first reply group,
// whatever the code; interpretation is the caller's business.
func (e *Engine) replyRaw(op *operation, r wire.Reply) {
	e.emitRawReply(r.Code, r.Text())
	e.setState(StateConnected)
	e.advance(false, false)
}

// finishHead emits CommandFinished for the head operation, once, and
// dequeues it.
func (e *Engine) finishHead(errored bool) {
	op := e.queue[0]
	if !op.finished {
		op.finished = true
		e.emitCommandFinished(op.id, errored)
	}
	e.queue = e.queue[1:]
}

// advance is the single completion funnel: it finishes the head, reports
// a session failure when one occurred, and either dispatches the next
// operation or goes idle. Routing every completion through here is what
// enforces the one-CommandFinished-per-operation guarantee.
func (e *Engine) advance(errored, sessionFailed bool) {
	e.finishHead(errored)

	if sessionFailed {
		e.emitDone(false)
	}

	if len(e.queue) == 0 {
		e.inProgress = false
		if !sessionFailed {
			e.emitDone(!errored)
		}
		return
	}
	e.dispatchHead()
}

// send writes bytes to the server, mirroring them to the sent log. A
// write failure forces a teardown through the transport's disconnect
// event.
func (e *Engine) send(data []byte) {
	e.sendLogged(data, data)
}

func (e *Engine) sendLogged(data, logged []byte) {
	if err := e.tr.Write(data); err != nil {
		e.log.Error("smtp: write failed", "err", err)
		e.setError(err.Error())
		e.emitSocketError(err)
		e.tr.Close()
		return
	}
	e.emitLogSent(logged)
}

// sendEhlo opens capability discovery; the answer is expected at stage 1.
func (e *Engine) sendEhlo() {
	e.send([]byte("EHLO " + e.heloName() + "\r\n"))
	e.queue[0].stage = 1
}

// sendHelo is the fallback for servers that reject EHLO.
func (e *Engine) sendHelo() {
	e.send([]byte("HELO " + e.heloName() + "\r\n"))
}

// sendRcpt issues RCPT TO for the next pending recipient; once all are
// out, the next 250 moves the transaction to the data phase.
func (e *Engine) sendRcpt(op *operation) {
	rcpt := op.rcpts[0]
	op.rcpts = op.rcpts[1:]
	e.send([]byte("RCPT TO:<" + rcpt + ">\r\n"))
	if len(op.rcpts) == 0 {
		op.stage = 1
	}
}

// sendQuit writes QUIT, lets the bytes drain briefly, and closes the
// stream. Completion happens in onDisconnected.
func (e *Engine) sendQuit() {
	e.send([]byte("QUIT\r\n"))
	e.tr.Shutdown(e.cfg.QuitFlushTimeout)
	e.setState(StateDisconnecting)
}
