package wire

import (
	"reflect"
	"testing"
)

func TestFramer_SingleLine(t *testing.T) {
	f := NewFramer(nil)

	replies := f.Feed([]byte("220 mx.example.com ESMTP ready\r\n"))
	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(replies))
	}
	if replies[0].Code != 220 {
		t.Errorf("expected code 220, got %d", replies[0].Code)
	}
	if replies[0].Text() != "mx.example.com ESMTP ready" {
		t.Errorf("unexpected text %q", replies[0].Text())
	}
}

func TestFramer_Multiline(t *testing.T) {
	f := NewFramer(nil)

	replies := f.Feed([]byte("250-mx.example.com\r\n250-PIPELINING\r\n250 AUTH PLAIN LOGIN\r\n"))
	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(replies))
	}
	want := []string{"mx.example.com", "PIPELINING", "AUTH PLAIN LOGIN"}
	if !reflect.DeepEqual(replies[0].Lines, want) {
		t.Errorf("expected lines %v, got %v", want, replies[0].Lines)
	}
}

func TestFramer_MultipleGroupsInOneRead(t *testing.T) {
	f := NewFramer(nil)

	// Pipelined responses to MAIL FROM and two RCPT TO commands.
	replies := f.Feed([]byte("250 sender ok\r\n250 rcpt a ok\r\n250 rcpt b ok\r\n"))
	if len(replies) != 3 {
		t.Fatalf("expected 3 replies, got %d", len(replies))
	}
	for i, r := range replies {
		if r.Code != 250 {
			t.Errorf("reply %d: expected code 250, got %d", i, r.Code)
		}
	}
}

func TestFramer_AnyLineEnding(t *testing.T) {
	for _, ending := range []string{"\r\n", "\n", "\r"} {
		f := NewFramer(nil)
		// A lone CR at the end of a batch is held back in case it is half a
		// CRLF, so feed a trailing probe to flush it.
		replies := f.Feed([]byte("250-one" + ending + "250 two" + ending))
		replies = append(replies, f.Feed([]byte("220 x\r\n"))...)
		if len(replies) < 1 {
			t.Fatalf("ending %q: no reply produced", ending)
		}
		if replies[0].Code != 250 || len(replies[0].Lines) != 2 {
			t.Errorf("ending %q: got %+v", ending, replies[0])
		}
	}
}

// Framing must be a pure function of the byte stream: any split of the same
// bytes across reads yields the same replies.
func TestFramer_SplitIndependence(t *testing.T) {
	stream := []byte("220 banner\r\n250-mx\r\n250-SIZE 1000000\r\n250 STARTTLS\r\n354 go ahead\r\n")

	whole := NewFramer(nil).Feed(stream)

	for split := 1; split < len(stream); split++ {
		f := NewFramer(nil)
		var got []Reply
		got = append(got, f.Feed(stream[:split])...)
		got = append(got, f.Feed(stream[split:])...)
		if !reflect.DeepEqual(got, whole) {
			t.Fatalf("split at %d: got %+v, want %+v", split, got, whole)
		}
	}

	// Byte-at-a-time.
	f := NewFramer(nil)
	var got []Reply
	for _, b := range stream {
		got = append(got, f.Feed([]byte{b})...)
	}
	if !reflect.DeepEqual(got, whole) {
		t.Fatalf("byte-at-a-time: got %+v, want %+v", got, whole)
	}
}

func TestFramer_CRLFSplitAcrossReads(t *testing.T) {
	f := NewFramer(nil)

	replies := f.Feed([]byte("250 ok\r"))
	if len(replies) != 0 {
		t.Fatalf("expected no reply before line ending resolves, got %d", len(replies))
	}
	replies = f.Feed([]byte("\n"))
	if len(replies) != 1 || replies[0].Code != 250 {
		t.Fatalf("expected 250 reply after completing CRLF, got %+v", replies)
	}
}

func TestFramer_MalformedLinesSkipped(t *testing.T) {
	f := NewFramer(nil)

	replies := f.Feed([]byte("garbage here\r\n250 ok\r\n"))
	if len(replies) != 1 || replies[0].Code != 250 {
		t.Fatalf("expected malformed line skipped and 250 framed, got %+v", replies)
	}

	// A batch with nothing parseable produces no replies.
	replies = f.Feed([]byte("no replies at all\r\n"))
	if len(replies) != 0 {
		t.Fatalf("expected no replies, got %+v", replies)
	}
}

func TestFramer_TextTrimmed(t *testing.T) {
	f := NewFramer(nil)

	replies := f.Feed([]byte("421   try again later  \r\n"))
	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(replies))
	}
	if replies[0].Text() != "try again later" {
		t.Errorf("expected trimmed text, got %q", replies[0].Text())
	}
}

func TestReply_Classification(t *testing.T) {
	cases := []struct {
		code                        int
		success, intermediate, fail bool
	}{
		{250, true, false, false},
		{354, false, true, false},
		{421, false, false, true},
		{554, false, false, true},
	}
	for _, c := range cases {
		r := Reply{Code: c.code}
		if r.IsSuccess() != c.success || r.IsIntermediate() != c.intermediate || r.IsError() != c.fail {
			t.Errorf("code %d: classification wrong", c.code)
		}
	}
}
