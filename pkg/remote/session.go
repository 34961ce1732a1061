package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Identity is the single account used to log in to every host.
type Identity struct {
	User     string
	KeyFile  string
	Password string
	Port     int
	// Timeout bounds the TCP dial and the SSH handshake. Commands
	// themselves are not bounded.
	Timeout time.Duration
}

func (id Identity) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if id.KeyFile != "" {
		pem, err := os.ReadFile(id.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse key %s: %w", id.KeyFile, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if id.Password != "" {
		methods = append(methods, ssh.Password(id.Password))
	}
	if len(methods) == 0 {
		return nil, errors.New("identity has no key or password")
	}
	return methods, nil
}

// Runner executes commands on one host.
type Runner interface {
	Run(ctx context.Context, command string) (string, error)
	Close() error
}

// Dialer opens a Runner for a host.
type Dialer func(ctx context.Context, host string) (Runner, error)

// NewDialer binds an identity and host-key policy into a Dialer.
func NewDialer(id Identity, hostKeys ssh.HostKeyCallback) Dialer {
	return func(ctx context.Context, host string) (Runner, error) {
		s, err := Dial(ctx, host, id, hostKeys)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Session owns one SSH client connection to a single host.
type Session struct {
	host        string
	client      *ssh.Client
	fingerprint string

	closeOnce sync.Once
	closeErr  error
}

// Dial connects and authenticates to host. Any failure is returned as a
// *ConnectionError.
func Dial(ctx context.Context, host string, id Identity, hostKeys ssh.HostKeyCallback) (*Session, error) {
	if hostKeys == nil {
		return nil, &ConnectionError{Host: host, Err: errors.New("no host key policy")}
	}
	auth, err := id.authMethods()
	if err != nil {
		return nil, &ConnectionError{Host: host, Err: err}
	}
	port := id.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	s := &Session{host: host}
	cfg := &ssh.ClientConfig{
		User: id.User,
		Auth: auth,
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			if err := hostKeys(hostname, remote, key); err != nil {
				return err
			}
			s.fingerprint = ssh.FingerprintSHA256(key)
			return nil
		},
		Timeout: id.Timeout,
	}

	dialer := net.Dialer{Timeout: id.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Host: host, Err: err}
	}
	if id.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(id.Timeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, &ConnectionError{Host: host, Err: err}
	}
	_ = conn.SetDeadline(time.Time{})
	s.client = ssh.NewClient(c, chans, reqs)
	return s, nil
}

// Host is the identifier the session was dialed with.
func (s *Session) Host() string { return s.host }

// HostKeyFingerprint is the SHA256 fingerprint of the accepted host key.
func (s *Session) HostKeyFingerprint() string { return s.fingerprint }

// Run executes command in a fresh channel and returns its trimmed stdout.
// Stderr is discarded and a non-zero exit status is not an error, so a
// command that only writes to stderr yields "".
func (s *Session) Run(ctx context.Context, command string) (string, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return "", &ConnectionError{Host: s.host, Err: fmt.Errorf("open channel: %w", err)}
	}
	defer sess.Close()

	var stdout bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = io.Discard

	done := make(chan error, 1)
	go func() { done <- sess.Run(command) }()

	select {
	case <-ctx.Done():
		sess.Close()
		return "", &CommandError{Host: s.host, Command: command, Err: ctx.Err()}
	case err = <-done:
	}
	if err != nil {
		var exitErr *ssh.ExitError
		var missing *ssh.ExitMissingError
		if !errors.As(err, &exitErr) && !errors.As(err, &missing) {
			return "", &CommandError{Host: s.host, Command: command, Err: err}
		}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Close releases the connection. Calling it more than once is safe.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.client != nil {
			s.closeErr = s.client.Close()
		}
	})
	return s.closeErr
}
