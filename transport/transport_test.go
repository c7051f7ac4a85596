package transport

import (
	"context"
	"crypto/ed25519"
	cryptorand "crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"
)

// waitEvent reads events until one of the wanted kind arrives, failing the
// test if something else terminal shows up first.
func waitEvent(t *testing.T, tr Transport, want EventKind) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-tr.Events():
			if ev.Kind == want {
				return ev
			}
			if ev.Kind == EventSocketError {
				t.Fatalf("waiting for event %d, got socket error: %v", want, ev.Err)
			}
			if ev.Kind == EventDisconnected && want != EventDisconnected {
				t.Fatalf("waiting for event %d, got disconnect", want)
			}
		case <-timeout:
			t.Fatalf("timeout waiting for event %d", want)
		}
	}
}

func listen(t *testing.T) (net.Listener, string, int) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().(*net.TCPAddr)
	return l, addr.IP.String(), addr.Port
}

func TestTCP_ConnectReadWrite(t *testing.T) {
	l, host, port := listen(t)
	defer l.Close()

	serverGot := make(chan string, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("220 mx ready\r\n"))
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		serverGot <- string(buf[:n])
	}()

	tr := NewTCP(Config{})
	if err := tr.Connect(context.Background(), host, port); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	waitEvent(t, tr, EventConnected)
	if tr.IsEncrypted() {
		t.Error("plaintext connection reported as encrypted")
	}

	ev := waitEvent(t, tr, EventData)
	if string(ev.Data) != "220 mx ready\r\n" {
		t.Errorf("unexpected banner %q", ev.Data)
	}

	if err := tr.Write([]byte("QUIT\r\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := <-serverGot; got != "QUIT\r\n" {
		t.Errorf("server received %q", got)
	}

	if err := tr.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	waitEvent(t, tr, EventDisconnected)
}

func TestTCP_ConnectRefused(t *testing.T) {
	// Grab a port and close the listener so nothing accepts.
	l, host, port := listen(t)
	l.Close()

	tr := NewTCP(Config{DialTimeout: 2 * time.Second})
	if err := tr.Connect(context.Background(), host, port); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ev := <-tr.Events()
	if ev.Kind != EventSocketError {
		t.Fatalf("expected socket error first, got kind %d", ev.Kind)
	}
	ev = <-tr.Events()
	if ev.Kind != EventDisconnected {
		t.Fatalf("expected disconnect after socket error, got kind %d", ev.Kind)
	}
}

func TestTCP_RemoteClose(t *testing.T) {
	l, host, port := listen(t)
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		conn.Write([]byte("220 mx\r\n"))
		conn.Close()
	}()

	tr := NewTCP(Config{})
	tr.Connect(context.Background(), host, port)
	waitEvent(t, tr, EventConnected)
	waitEvent(t, tr, EventData)

	// A remote close is a disconnect, not a socket error.
	ev := <-tr.Events()
	if ev.Kind != EventDisconnected {
		t.Fatalf("expected clean disconnect, got kind %d (err %v)", ev.Kind, ev.Err)
	}
}

func TestTCP_StartTLSUpgrade(t *testing.T) {
	cert := fakeCert(t)
	l, host, port := listen(t)
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("220 mx ready\r\n"))
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		if string(buf[:n]) != "STARTTLS\r\n" {
			return
		}
		conn.Write([]byte("220 go ahead\r\n"))
		tlsConn := tls.Server(conn, &tls.Config{Certificates: []tls.Certificate{cert}})
		if err := tlsConn.Handshake(); err != nil {
			return
		}
		buf2 := make([]byte, 64)
		n, _ = tlsConn.Read(buf2)
		tlsConn.Write(append([]byte("ECHO "), buf2[:n]...))
	}()

	tr := NewTCP(Config{})
	tr.IgnoreTLSErrors() // self-signed test certificate
	tr.Connect(context.Background(), host, port)
	waitEvent(t, tr, EventConnected)
	waitEvent(t, tr, EventData) // banner

	tr.Write([]byte("STARTTLS\r\n"))
	waitEvent(t, tr, EventData) // 220 go ahead

	if err := tr.StartClientEncryption(); err != nil {
		t.Fatalf("StartClientEncryption: %v", err)
	}

	sawTLSErrors := false
	timeout := time.After(5 * time.Second)
	for {
		var ev Event
		select {
		case ev = <-tr.Events():
		case <-timeout:
			t.Fatal("timeout waiting for encryption")
		}
		if ev.Kind == EventTLSErrors {
			sawTLSErrors = true
			continue
		}
		if ev.Kind == EventEncrypted {
			break
		}
		t.Fatalf("unexpected event kind %d during upgrade (err %v)", ev.Kind, ev.Err)
	}
	if !sawTLSErrors {
		t.Error("expected TLS verification errors for self-signed certificate")
	}
	if !tr.IsEncrypted() {
		t.Error("transport not marked encrypted after upgrade")
	}

	// Traffic now flows through the TLS stream.
	tr.Write([]byte("ping"))
	ev := waitEvent(t, tr, EventData)
	if string(ev.Data) != "ECHO ping" {
		t.Errorf("unexpected echoed data %q", ev.Data)
	}

	tr.Close()
	waitEvent(t, tr, EventDisconnected)
}

func TestTCP_TLSVerificationFailureWithoutIgnore(t *testing.T) {
	cert := fakeCert(t)
	l, host, port := listen(t)
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tlsConn := tls.Server(conn, &tls.Config{Certificates: []tls.Certificate{cert}})
		tlsConn.Handshake()
	}()

	tr := NewTCP(Config{DialTimeout: 5 * time.Second})
	tr.ConnectEncrypted(context.Background(), host, port)

	sawTLSErrors, sawSocketError := false, false
	timeout := time.After(5 * time.Second)
	for {
		var ev Event
		select {
		case ev = <-tr.Events():
		case <-timeout:
			t.Fatal("timeout waiting for failure events")
		}
		switch ev.Kind {
		case EventTLSErrors:
			sawTLSErrors = true
		case EventSocketError:
			sawSocketError = true
		case EventDisconnected:
			if !sawTLSErrors || !sawSocketError {
				t.Errorf("expected TLS errors and socket error before disconnect (tls=%v sock=%v)", sawTLSErrors, sawSocketError)
			}
			return
		case EventConnected:
			t.Fatal("handshake unexpectedly succeeded")
		}
	}
}

// fakeCert returns a self-signed certificate for 127.0.0.1.
func fakeCert(t *testing.T) tls.Certificate {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(cryptorand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(cryptorand.Reader, &template, &template, pub, priv)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parsing certificate: %v", err)
	}
	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
		Leaf:        leaf,
	}
}
