package corvus

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseOptions_Recognized(t *testing.T) {
	lines := []string{
		"mx.example.com greets you",
		"PIPELINING",
		"STARTTLS",
		"SIZE 35882577",
		"AUTH PLAIN LOGIN CRAM-MD5",
		"8BITMIME",
		"ENHANCEDSTATUSCODES",
		"BURL imap",
		"X-UNKNOWN-THING with params",
	}

	opts, modes := parseOptions(lines)

	for _, ext := range []Extension{ExtPipelining, ExtSTARTTLS, ExtSize, ExtAuth, Ext8BitMIME, ExtEnhancedStatusCodes, ExtBURL} {
		if !opts.Has(ext) {
			t.Errorf("extension %s not parsed", ext)
		}
	}
	if len(opts) != 7 {
		t.Errorf("unknown keyword leaked into the set: %v", opts)
	}
	if opts.Param(ExtSize) != "35882577" {
		t.Errorf("SIZE params = %q", opts.Param(ExtSize))
	}

	// CRAM-MD5 is not implemented and must not be collected.
	if !modes[AuthPlain] || !modes[AuthLogin] || len(modes) != 2 {
		t.Errorf("auth modes = %v, want PLAIN and LOGIN only", modes)
	}
}

func TestParseOptions_CaseInsensitive(t *testing.T) {
	opts, modes := parseOptions([]string{"mx", "StArTtLs", "auth Plain lOgIn"})

	if !opts.Has(ExtSTARTTLS) || !opts.Has(ExtAuth) {
		t.Errorf("case-insensitive parse failed: %v", opts)
	}
	if !modes[AuthPlain] || !modes[AuthLogin] {
		t.Errorf("case-insensitive auth mode parse failed: %v", modes)
	}
}

func TestParseOptions_GreetingOnly(t *testing.T) {
	opts, modes := parseOptions([]string{"mx.example.com"})
	if len(opts) != 0 || len(modes) != 0 {
		t.Errorf("single-line EHLO reply must yield nothing, got %v %v", opts, modes)
	}
}

// parse -> format -> parse is a fixed point.
func TestOptions_FormatParseIdempotent(t *testing.T) {
	first, _ := parseOptions([]string{"mx", "PIPELINING", "SIZE 1000", "AUTH PLAIN LOGIN", "BURL imap"})

	formatted := first.Format()
	again, _ := parseOptions(append([]string{"greeting"}, strings.Split(formatted, "\n")...))

	if !reflect.DeepEqual(first, again) {
		t.Errorf("reparse mismatch:\nfirst:  %v\nagain:  %v\nvia %q", first, again, formatted)
	}

	if again.Format() != formatted {
		t.Errorf("format not stable: %q vs %q", again.Format(), formatted)
	}
}

func TestOptionSet_FormatSorted(t *testing.T) {
	s := OptionSet{ExtSTARTTLS: "", ExtAuth: "plain", Ext8BitMIME: ""}
	want := "8BITMIME\nAUTH plain\nSTARTTLS"
	if got := s.Format(); got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestAuthMode_String(t *testing.T) {
	if AuthPlain.String() != "PLAIN" || AuthLogin.String() != "LOGIN" || AuthAny.String() != "ANY" {
		t.Error("AuthMode names wrong")
	}
}

func TestState_String(t *testing.T) {
	names := map[State]string{
		StateDisconnected:   "Disconnected",
		StateConnecting:     "Connecting",
		StateConnected:      "Connected",
		StateTLSRequested:   "TLSRequested",
		StateAuthenticating: "Authenticating",
		StateSending:        "Sending",
		StateDisconnecting:  "Disconnecting",
	}
	for s, want := range names {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
