// Package smtptest provides a scripted SMTP server for exercising the
// engine against literal byte exchanges. A test declares the expected
// client lines and the canned replies; the server verifies the dialog and
// records what the client actually sent.
package smtptest

import (
	"bufio"
	"crypto/ed25519"
	cryptorand "crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"strings"
	"sync"
	"time"
)

// Step is one exchange in a server script, executed in order: optionally
// read and verify a client line (or a whole DATA payload), optionally
// send a reply, optionally upgrade to TLS or close.
type Step struct {
	// Expect, when non-empty, requires the next client line to start
	// with this prefix. The comparison is case-sensitive.
	Expect string

	// ExpectData reads client lines until the lone "." terminator,
	// recording the payload. Used after replying 354.
	ExpectData bool

	// Reply is written verbatim after the expectation is met. Include
	// the CRLFs; multi-line replies are a single string.
	Reply string

	// StartTLS wraps the connection in a server-side TLS handshake
	// after Reply is written. The server's TLSConfig must be set.
	StartTLS bool

	// Close closes the connection after this step.
	Close bool
}

// Server is a scripted SMTP server on a loopback listener serving a
// single connection.
type Server struct {
	Host string
	Port int

	listener  net.Listener
	tlsConfig *tls.Config

	mu    sync.Mutex
	lines []string
	data  []string
	err   error

	finished chan struct{}
}

// NewServer starts a scripted server. With implicitTLS the connection is
// TLS from the first byte (SMTPS).
func NewServer(script []Step, implicitTLS bool) (*Server, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	cert, err := LocalhostCert()
	if err != nil {
		l.Close()
		return nil, err
	}

	addr := l.Addr().(*net.TCPAddr)
	s := &Server{
		Host:      addr.IP.String(),
		Port:      addr.Port,
		listener:  l,
		tlsConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
		finished:  make(chan struct{}),
	}

	go s.serve(script, implicitTLS)
	return s, nil
}

func (s *Server) serve(script []Step, implicitTLS bool) {
	defer close(s.finished)

	conn, err := s.listener.Accept()
	if err != nil {
		s.fail(fmt.Errorf("accept: %w", err))
		return
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	if implicitTLS {
		tlsConn := tls.Server(conn, s.tlsConfig)
		if err := tlsConn.Handshake(); err != nil {
			s.fail(fmt.Errorf("implicit tls handshake: %w", err))
			return
		}
		conn = tlsConn
	}
	reader := bufio.NewReader(conn)

	for i, step := range script {
		if step.ExpectData {
			var payload []string
			for {
				line, err := reader.ReadString('\n')
				if err != nil {
					s.fail(fmt.Errorf("step %d: reading data: %w", i, err))
					return
				}
				line = strings.TrimRight(line, "\r\n")
				if line == "." {
					break
				}
				payload = append(payload, line)
			}
			s.mu.Lock()
			s.data = append(s.data, strings.Join(payload, "\r\n"))
			s.mu.Unlock()
		} else if step.Expect != "" {
			line, err := reader.ReadString('\n')
			if err != nil {
				s.fail(fmt.Errorf("step %d: reading command: %w", i, err))
				return
			}
			line = strings.TrimRight(line, "\r\n")
			s.mu.Lock()
			s.lines = append(s.lines, line)
			s.mu.Unlock()
			if !strings.HasPrefix(line, step.Expect) {
				s.fail(fmt.Errorf("step %d: got %q, want prefix %q", i, line, step.Expect))
				return
			}
		}

		if step.Reply != "" {
			if _, err := conn.Write([]byte(step.Reply)); err != nil {
				s.fail(fmt.Errorf("step %d: writing reply: %w", i, err))
				return
			}
		}

		if step.StartTLS {
			tlsConn := tls.Server(conn, s.tlsConfig)
			if err := tlsConn.Handshake(); err != nil {
				s.fail(fmt.Errorf("step %d: starttls handshake: %w", i, err))
				return
			}
			conn = tlsConn
			reader = bufio.NewReader(conn)
		}

		if step.Close {
			return
		}
	}

	// Script exhausted; wait for the client to hang up.
	buf := make([]byte, 256)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}

func (s *Server) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Wait blocks until the scripted connection ended, bounded by the given
// timeout, and returns the first script violation if any.
func (s *Server) Wait(timeout time.Duration) error {
	select {
	case <-s.finished:
	case <-time.After(timeout):
		return fmt.Errorf("smtptest: server still running after %v", timeout)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Err returns the first script violation observed so far.
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Lines returns the command lines received from the client, in order.
func (s *Server) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

// Data returns the DATA payloads received, terminators stripped.
func (s *Server) Data() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.data...)
}

// Close shuts the listener down.
func (s *Server) Close() {
	s.listener.Close()
}

// LocalhostCert returns a self-signed certificate for 127.0.0.1, good for
// an hour.
func LocalhostCert() (tls.Certificate, error) {
	pub, priv, err := ed25519.GenerateKey(cryptorand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(cryptorand.Reader, &template, &template, pub, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
		Leaf:        leaf,
	}, nil
}
