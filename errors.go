package corvus

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEngineClosed is returned by operations enqueued after Close.
	ErrEngineClosed = errors.New("smtp: engine closed")

	// ErrUnsupportedAuth indicates the requested authentication scheme
	// is not offered by the server or not implemented by the engine.
	ErrUnsupportedAuth = errors.New("smtp: unsupported or unknown authentication scheme")
)

// ProtocolError is a server rejection: a 4xx/5xx reply where the dialog
// expected success.
type ProtocolError struct {
	// Code is the 3-digit SMTP reply code.
	Code int

	// Lines holds the reply text lines.
	Lines []string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("SMTP %d: %s", e.Code, strings.Join(e.Lines, "\n"))
}

// IsPermanent returns true for 5xx rejections.
func (e *ProtocolError) IsPermanent() bool {
	return e.Code >= 500 && e.Code < 600
}

// IsTransient returns true for 4xx rejections.
func (e *ProtocolError) IsTransient() bool {
	return e.Code >= 400 && e.Code < 500
}
