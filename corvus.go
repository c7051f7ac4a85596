// Corvus is an asynchronous client-side SMTP engine for Go.
//
// Corvus drives a mail submission session as a queue of high-level
// operations rather than a sequence of blocking calls. Callers enqueue
// operations - connect, STARTTLS, authenticate, send mail, send BURL, raw
// command, disconnect - and receive progress through event callbacks while
// a single driver goroutine walks each operation's sub-state machine
// against the server's replies.
//
// # Quick start
//
//	engine := corvus.New(&corvus.Config{
//	    LocalName: "client.example.com",
//	    Events: &corvus.Events{
//	        Done: func(ok bool) { log.Printf("session done ok=%v", ok) },
//	    },
//	})
//	defer engine.Close()
//
//	engine.ConnectToHost("smtp.example.com", 587)
//	engine.StartTLS()
//	engine.Authenticate("user", "secret", corvus.AuthAny)
//	engine.SendMail("sender@example.com", []string{"rcpt@example.com"}, body)
//	engine.DisconnectFromHost()
//
// Every operation returns an integer id immediately; CommandStarted and
// CommandFinished events carry the id so callers can correlate outcomes.
// Operations run strictly in enqueue order and never overlap.
//
// # Events
//
// The Events structure holds optional callbacks for every lifecycle
// happening: state changes, connection and TLS milestones, per-operation
// start/finish, session completion, raw-command replies, certificate and
// socket errors, and the sent/received wire log. Callbacks run on the
// driver goroutine; they must return quickly and may enqueue further
// operations, which are picked up after the current step completes.
//
// # Capabilities
//
// The engine tracks the server's EHLO capabilities (PIPELINING, STARTTLS,
// AUTH, 8BITMIME, SIZE, ENHANCEDSTATUSCODES, BURL) and advertised SASL
// mechanisms. The set is cleared on connect and again after a STARTTLS
// upgrade, when the engine transparently re-issues EHLO.
//
// # BURL
//
// SendMailBURL submits a message previously uploaded to an IMAP server
// (RFC 4468): instead of the inline DATA phase the engine sends
// "BURL <imap-url> LAST". The engine does not pre-check that the server
// advertised BURL; callers consult Options first.
//
// # Submission flow
//
// Corvus implements the client side of RFC 5321 with the extensions a
// submission agent needs:
//
//   - RFC 3207: STARTTLS in-band upgrade, including the repeated EHLO
//   - RFC 4954: AUTH with PLAIN (RFC 4616) and LOGIN mechanisms
//   - RFC 4468: BURL submission of IMAP-staged messages
//   - RFC 2920: tolerant framing of pipelined reply batches
//
// Message construction is out of scope: SendMail takes a pre-built,
// dot-stuffed RFC 5322 payload and appends only the CRLF "." CRLF
// terminator.
package corvus
