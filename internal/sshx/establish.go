// Package sshx implements the connection establisher and command runner on
// top of golang.org/x/crypto/ssh.
package sshx

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/Crusty-rs/crusty/internal/creds"
	"github.com/Crusty-rs/crusty/internal/errors"
	"github.com/Crusty-rs/crusty/internal/logging"
	"github.com/Crusty-rs/crusty/internal/target"
)

// Session is one authenticated connection scoped to a single target and a
// single attempt. It is never shared across targets or reused across
// retries.
type Session struct {
	client *ssh.Client
	target target.Target
}

// Close tears down the underlying connection. Errors on close are not
// actionable and are dropped.
func (s *Session) Close() error {
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}
	return nil
}

// Establisher opens authenticated sessions against targets. Safe for
// concurrent use; each call produces an independent Session.
type Establisher struct {
	credentials    *creds.Credentials
	connectTimeout time.Duration
	logger         *logging.Logger
	hostKeyCB      ssh.HostKeyCallback
}

// NewEstablisher builds an establisher sharing the run's credentials.
func NewEstablisher(c *creds.Credentials, connectTimeout time.Duration, logger *logging.Logger) *Establisher {
	return &Establisher{
		credentials:    c,
		connectTimeout: connectTimeout,
		logger:         logger,
		hostKeyCB:      hostKeyCallback(logger),
	}
}

// Establish resolves the target address and opens an authenticated session
// within the connect timeout budget. Authentication candidates are tried
// strictly in priority order; the transport stops at the first success.
func (e *Establisher) Establish(ctx context.Context, t target.Target) (*Session, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.connectTimeout)
	defer cancel()

	addrs, err := net.DefaultResolver.LookupHost(ctx, t.Host)
	if err != nil || len(addrs) == 0 {
		return nil, errors.New(errors.KindResolve, fmt.Sprintf("cannot resolve %s", t.Host), err)
	}

	authMethods, err := e.credentials.AuthMethods()
	if err != nil {
		return nil, errors.New(errors.KindAuth, "no usable credentials", err)
	}

	config := &ssh.ClientConfig{
		User:            e.credentials.User,
		Auth:            authMethods,
		HostKeyCallback: e.hostKeyCB,
		Timeout:         e.connectTimeout,
	}

	// Try each resolved address with the remaining budget; keep the last
	// failure for diagnostics.
	var lastErr error
	for _, addr := range addrs {
		dialAddr := net.JoinHostPort(addr, strconv.Itoa(t.Port))
		session, err := e.dial(ctx, dialAddr, t, config)
		if err == nil {
			e.logger.LogConnection(t, time.Since(start))
			return session, nil
		}
		lastErr = err
		if errors.KindOf(err) == errors.KindAuth {
			// Bad credentials fail identically on every address.
			break
		}
	}
	return nil, lastErr
}

func (e *Establisher) dial(ctx context.Context, addr string, t target.Target, config *ssh.ClientConfig) (*Session, error) {
	dialer := &net.Dialer{}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.New(errors.KindConnect, fmt.Sprintf("cannot connect to %s", addr), err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = netConn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, config)
	if err != nil {
		netConn.Close()
		if isAuthErr(err) {
			return nil, errors.New(errors.KindAuth, fmt.Sprintf("authentication failed for %s@%s", config.User, t.Host), err)
		}
		return nil, errors.New(errors.KindConnect, fmt.Sprintf("handshake failed for %s", addr), err)
	}
	// Clear the handshake deadline; command io has its own idle timeout.
	_ = netConn.SetDeadline(time.Time{})

	return &Session{client: ssh.NewClient(sshConn, chans, reqs), target: t}, nil
}

// isAuthErr distinguishes an exhausted credential list from a transport
// failure during the handshake.
func isAuthErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unable to authenticate") ||
		strings.Contains(s, "no supported methods remain")
}

// hostKeyCallback verifies against the user's known_hosts, then the system
// file, then falls back to accepting unknown keys with a logged warning.
func hostKeyCallback(logger *logging.Logger) ssh.HostKeyCallback {
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".ssh", "known_hosts")
		if _, err := os.Stat(path); err == nil {
			if cb, err := knownhosts.New(path); err == nil {
				return cb
			}
		}
	}
	if cb, err := knownhosts.New("/etc/ssh/ssh_known_hosts"); err == nil {
		return cb
	}
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		logger.LogHostKeyWarning(hostname)
		return nil
	}
}
