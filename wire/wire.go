// Package wire segments the SMTP server byte stream into reply groups.
//
// An SMTP reply group is one or more lines sharing a 3-digit code, all but
// the last marked with "-" after the code, the last marked with a space
// (RFC 5321 Section 4.2). Servers in the wild terminate lines with CR, LF,
// or CRLF; the framer accepts any of the three.
package wire

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// replyLine matches a single SMTP reply line: code, continuation flag, text.
var replyLine = regexp.MustCompile(`^(\d{3})([ -])(.*)$`)

// Reply is a framed SMTP reply group.
type Reply struct {
	// Code is the 3-digit reply code shared by the group's lines.
	Code int

	// Lines holds the text of each line, trimmed of surrounding whitespace.
	Lines []string
}

// Text returns the reply lines joined with newlines.
func (r Reply) Text() string {
	return strings.Join(r.Lines, "\n")
}

// IsSuccess returns true for 2xx codes.
func (r Reply) IsSuccess() bool {
	return r.Code >= 200 && r.Code < 300
}

// IsIntermediate returns true for 3xx codes.
func (r Reply) IsIntermediate() bool {
	return r.Code >= 300 && r.Code < 400
}

// IsError returns true for 4xx and 5xx codes.
func (r Reply) IsError() bool {
	return r.Code >= 400
}

// Framer accumulates raw bytes from the transport and produces complete
// reply groups. It carries partial lines and unterminated groups across
// feeds, so the sequence of replies produced is independent of how the
// byte stream is split into reads.
type Framer struct {
	log *slog.Logger

	pending []byte // bytes of an incomplete line
	open    bool   // a group is accumulating continuation lines
	cur     Reply
}

// NewFramer creates a Framer. A nil logger defaults to slog.Default().
func NewFramer(log *slog.Logger) *Framer {
	if log == nil {
		log = slog.Default()
	}
	return &Framer{log: log}
}

// Feed consumes one read batch and returns the reply groups completed by it.
// A single batch may complete zero, one, or several groups; pipelined
// responses commonly arrive in one read. Malformed lines are logged and
// skipped, never fatal.
func (f *Framer) Feed(batch []byte) []Reply {
	data := batch
	if len(f.pending) > 0 {
		data = append(f.pending, batch...)
		f.pending = nil
	}

	lines, rest := splitLines(data)
	f.pending = rest

	var replies []Reply
	matched := false
	for _, line := range lines {
		if line == "" {
			continue
		}
		m := replyLine.FindStringSubmatch(line)
		if m == nil {
			f.log.Debug("smtp: malformed reply line", "line", line)
			continue
		}
		matched = true

		code, _ := strconv.Atoi(m[1])
		text := strings.TrimSpace(m[3])

		if !f.open {
			f.cur = Reply{Code: code}
			f.open = true
		} else if code != f.cur.Code {
			f.log.Debug("smtp: reply code changed inside multiline group", "group", f.cur.Code, "line", code)
		}
		f.cur.Lines = append(f.cur.Lines, text)

		if m[2] == " " {
			replies = append(replies, f.cur)
			f.cur = Reply{}
			f.open = false
		}
	}

	if !matched && len(lines) > 0 {
		f.log.Warn("smtp: all reply lines in batch malformed", "batch", string(data))
	}

	return replies
}

// splitLines splits data on CR, LF, or CRLF and returns complete lines plus
// the unterminated remainder. A trailing lone CR is kept in the remainder:
// it may be the first half of a CRLF split across two reads.
func splitLines(data []byte) (lines []string, rest []byte) {
	start := 0
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case '\n':
			lines = append(lines, string(data[start:i]))
			start = i + 1
		case '\r':
			if i == len(data)-1 {
				return lines, append([]byte(nil), data[start:]...)
			}
			lines = append(lines, string(data[start:i]))
			if data[i+1] == '\n' {
				i++
			}
			start = i + 1
		}
	}
	return lines, append([]byte(nil), data[start:]...)
}
