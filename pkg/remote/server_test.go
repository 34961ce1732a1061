package remote

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"testing"

	"golang.org/x/crypto/ssh"
)

const (
	testUser     = "inventory"
	testPassword = "secret"
)

// execResult is what the fake server answers for one command.
type execResult struct {
	stdout string
	stderr string
	status uint32
}

// testServer is an in-process SSH server that answers exec requests.
type testServer struct {
	port   int
	signer ssh.Signer
}

func startTestServer(t *testing.T, handler func(command string) execResult) *testServer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("host signer: %v", err)
	}
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == testUser && string(pass) == testPassword {
				return nil, nil
			}
			return nil, errors.New("access denied")
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(conn, cfg, handler)
		}
	}()
	return &testServer{port: ln.Addr().(*net.TCPAddr).Port, signer: signer}
}

func serveConn(conn net.Conn, cfg *ssh.ServerConfig, handler func(string) execResult) {
	defer conn.Close()
	_, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		return
	}
	go ssh.DiscardRequests(reqs)
	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			newCh.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			continue
		}
		go serveSession(ch, requests, handler)
	}
}

func serveSession(ch ssh.Channel, requests <-chan *ssh.Request, handler func(string) execResult) {
	defer ch.Close()
	for req := range requests {
		if req.Type != "exec" {
			req.Reply(false, nil)
			continue
		}
		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			req.Reply(false, nil)
			return
		}
		req.Reply(true, nil)
		res := handler(payload.Command)
		io.WriteString(ch, res.stdout)
		io.WriteString(ch.Stderr(), res.stderr)
		ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{res.status}))
		return
	}
}
