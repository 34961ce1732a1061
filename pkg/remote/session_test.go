package remote

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

func testIdentity(port int) Identity {
	return Identity{User: testUser, Password: testPassword, Port: port, Timeout: 5 * time.Second}
}

func TestRunTrimsStdoutAndDiscardsStderr(t *testing.T) {
	srv := startTestServer(t, func(cmd string) execResult {
		switch cmd {
		case "hostname":
			return execResult{stdout: "  gpu01\n", stderr: "noise on stderr\n"}
		case "nvidia-smi":
			return execResult{stderr: "nvidia-smi: command not found\n", status: 127}
		}
		return execResult{status: 1}
	})

	s, err := Dial(context.Background(), "127.0.0.1", testIdentity(srv.port), TrustOnFirstUse())
	require.NoError(t, err)
	defer s.Close()

	out, err := s.Run(context.Background(), "hostname")
	require.NoError(t, err)
	assert.Equal(t, "gpu01", out)

	out, err = s.Run(context.Background(), "nvidia-smi")
	require.NoError(t, err, "non-zero exit with stderr only must look like empty output")
	assert.Equal(t, "", out)

	assert.Equal(t, "127.0.0.1", s.Host())
	assert.Equal(t, ssh.FingerprintSHA256(srv.signer.PublicKey()), s.HostKeyFingerprint())
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := startTestServer(t, func(string) execResult { return execResult{stdout: "ok"} })

	s, err := Dial(context.Background(), "127.0.0.1", testIdentity(srv.port), TrustOnFirstUse())
	require.NoError(t, err)

	first := s.Close()
	assert.NoError(t, first)
	assert.Equal(t, first, s.Close())

	_, err = s.Run(context.Background(), "hostname")
	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr), "got %v", err)
	assert.Equal(t, "127.0.0.1", connErr.Host)
}

func TestRunHonoursContext(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	srv := startTestServer(t, func(string) execResult {
		<-release
		return execResult{}
	})

	s, err := Dial(context.Background(), "127.0.0.1", testIdentity(srv.port), TrustOnFirstUse())
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.Run(ctx, "sleep 3600")
	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr), "got %v", err)
	assert.Equal(t, "sleep 3600", cmdErr.Command)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDialFailuresAreConnectionErrors(t *testing.T) {
	srv := startTestServer(t, func(string) execResult { return execResult{} })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedPort := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cases := map[string]Identity{
		"wrong password": {User: testUser, Password: "nope", Port: srv.port, Timeout: 5 * time.Second},
		"closed port":    testIdentity(closedPort),
		"missing key":    {User: testUser, KeyFile: filepath.Join(t.TempDir(), "absent"), Port: srv.port},
		"no credentials": {User: testUser, Port: srv.port},
	}
	for name, id := range cases {
		t.Run(name, func(t *testing.T) {
			s, err := Dial(context.Background(), "127.0.0.1", id, TrustOnFirstUse())
			assert.Nil(t, s)
			var connErr *ConnectionError
			require.True(t, errors.As(err, &connErr), "got %v", err)
			assert.Equal(t, "127.0.0.1", connErr.Host)
			assert.Contains(t, err.Error(), "connect 127.0.0.1")
		})
	}
}

func TestNewDialerReturnsNilRunnerOnFailure(t *testing.T) {
	dial := NewDialer(Identity{User: testUser}, TrustOnFirstUse())
	r, err := dial(context.Background(), "127.0.0.1")
	require.Error(t, err)
	assert.Nil(t, r)
}

func TestKnownHostsPolicy(t *testing.T) {
	srv := startTestServer(t, func(string) execResult { return execResult{stdout: "ok"} })
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(srv.port))
	dir := t.TempDir()

	good := filepath.Join(dir, "known_hosts")
	line := knownhosts.Line([]string{addr}, srv.signer.PublicKey())
	require.NoError(t, os.WriteFile(good, []byte(line+"\n"), 0o600))

	cb, err := HostKeyCallbackFor(PolicyKnownHosts, good)
	require.NoError(t, err)
	s, err := Dial(context.Background(), "127.0.0.1", testIdentity(srv.port), cb)
	require.NoError(t, err)
	s.Close()

	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	otherSigner, err := ssh.NewSignerFromKey(otherPriv)
	require.NoError(t, err)
	bad := filepath.Join(dir, "known_hosts.bad")
	require.NoError(t, os.WriteFile(bad, []byte(knownhosts.Line([]string{addr}, otherSigner.PublicKey())+"\n"), 0o600))

	cb, err = HostKeyCallbackFor(PolicyKnownHosts, bad)
	require.NoError(t, err)
	_, err = Dial(context.Background(), "127.0.0.1", testIdentity(srv.port), cb)
	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr), "got %v", err)
	assert.Contains(t, err.Error(), "key mismatch")
}

func TestHostKeyCallbackFor(t *testing.T) {
	cb, err := HostKeyCallbackFor(PolicyTrustOnFirstUse, "")
	require.NoError(t, err)
	require.NotNil(t, cb)

	_, err = HostKeyCallbackFor("strict", "")
	assert.EqualError(t, err, `unknown host key policy "strict"`)

	_, err = HostKeyCallbackFor(PolicyKnownHosts, filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestDialWithoutPolicy(t *testing.T) {
	_, err := Dial(context.Background(), "h", testIdentity(22), nil)
	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.EqualError(t, err, "connect h: no host key policy")
}

func TestErrorMessages(t *testing.T) {
	cause := errors.New("boom")
	assert.EqualError(t, &ConnectionError{Host: "h", Err: cause}, "connect h: boom")
	assert.EqualError(t, &CommandError{Host: "h", Command: "df -h", Err: cause}, `run "df -h" on h: boom`)
	assert.ErrorIs(t, &CommandError{Err: cause}, cause)
}
