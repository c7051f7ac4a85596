package sasl

import (
	"encoding/base64"
	"testing"
)

func TestPlain_Respond(t *testing.T) {
	p := NewPlain(Credentials{Username: "user", Password: "pass"})

	if p.Name() != "PLAIN" {
		t.Errorf("expected name PLAIN, got %q", p.Name())
	}

	resp, err := p.Respond("")
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(resp)
	if err != nil {
		t.Fatalf("response is not valid base64: %v", err)
	}
	if string(decoded) != "\x00user\x00pass" {
		t.Errorf("expected NUL user NUL pass, got %q", decoded)
	}

	if _, err := p.Respond(""); err != ErrUnexpectedChallenge {
		t.Errorf("expected ErrUnexpectedChallenge on second challenge, got %v", err)
	}
}

func TestPlain_NoLineWrapping(t *testing.T) {
	// RFC 4648 standard encoding without line breaks, even for long input.
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	p := NewPlain(Credentials{Username: string(long), Password: string(long)})

	resp, err := p.Respond("")
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	for _, c := range resp {
		if c == '\n' || c == '\r' {
			t.Fatal("base64 output must not be line-wrapped")
		}
	}
}

func TestLogin_Respond(t *testing.T) {
	l := NewLogin(Credentials{Username: "user", Password: "pass"})

	if l.Name() != "LOGIN" {
		t.Errorf("expected name LOGIN, got %q", l.Name())
	}

	resp, err := l.Respond(LoginChallengeUsername)
	if err != nil {
		t.Fatalf("first Respond failed: %v", err)
	}
	if resp != base64.StdEncoding.EncodeToString([]byte("user")) {
		t.Errorf("expected base64 username, got %q", resp)
	}

	resp, err = l.Respond(LoginChallengePassword)
	if err != nil {
		t.Fatalf("second Respond failed: %v", err)
	}
	if resp != base64.StdEncoding.EncodeToString([]byte("pass")) {
		t.Errorf("expected base64 password, got %q", resp)
	}

	if _, err := l.Respond(""); err != ErrUnexpectedChallenge {
		t.Errorf("expected ErrUnexpectedChallenge on third challenge, got %v", err)
	}
}
