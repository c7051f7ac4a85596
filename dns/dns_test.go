package dns

import (
	"context"
	"net"
	"testing"
)

func TestMockResolver_LookupIP(t *testing.T) {
	r := MockResolver{
		A:    map[string][]string{"mail.example.com.": {"192.0.2.10"}},
		AAAA: map[string][]string{"mail.example.com.": {"2001:db8::10"}},
	}

	res, err := r.LookupIP(context.Background(), "mail.example.com")
	if err != nil {
		t.Fatalf("LookupIP failed: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 addresses, got %d", len(res.Records))
	}

	if _, err := r.LookupIP(context.Background(), "absent.example.com"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMockResolver_LookupMX(t *testing.T) {
	r := MockResolver{
		MX: map[string][]*net.MX{
			"example.com.": {{Host: "mx1.example.com.", Pref: 10}},
		},
		Fail: []string{"mx broken.example.com."},
	}

	res, err := r.LookupMX(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("LookupMX failed: %v", err)
	}
	if res.Records[0].Host != "mx1.example.com." {
		t.Errorf("unexpected MX host %q", res.Records[0].Host)
	}

	if _, err := r.LookupMX(context.Background(), "broken.example.com"); err != ErrServFail {
		t.Errorf("expected ErrServFail, got %v", err)
	}
}

func TestEnsureAbsolute(t *testing.T) {
	if got := ensureAbsolute("example.com"); got != "example.com." {
		t.Errorf("got %q", got)
	}
	if got := ensureAbsolute("example.com."); got != "example.com." {
		t.Errorf("got %q", got)
	}
}
