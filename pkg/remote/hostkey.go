package remote

import (
	"fmt"
	"net"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Host-key policy names as they appear in configuration.
const (
	PolicyTrustOnFirstUse = "trust_on_first_use"
	PolicyKnownHosts      = "known_hosts"
)

// TrustOnFirstUse accepts whatever key the host presents. The key is
// trusted for the lifetime of the session only and never persisted.
func TrustOnFirstUse() ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		return nil
	}
}

// KnownHosts verifies host keys against an OpenSSH known_hosts file.
func KnownHosts(path string) (ssh.HostKeyCallback, error) {
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts %s: %w", path, err)
	}
	return cb, nil
}

// HostKeyCallbackFor maps a configured policy name to a callback.
func HostKeyCallbackFor(policy, knownHostsPath string) (ssh.HostKeyCallback, error) {
	switch policy {
	case PolicyTrustOnFirstUse:
		return TrustOnFirstUse(), nil
	case PolicyKnownHosts:
		return KnownHosts(knownHostsPath)
	default:
		return nil, fmt.Errorf("unknown host key policy %q", policy)
	}
}
