// Package creds holds the authentication candidates shared read-only by all
// execution tasks.
package creds

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/term"
)

// Credentials is the ordered list of authentication candidates for a run.
// The order is fixed: key file, then agent, then password. Immutable once
// built; safe for concurrent use.
type Credentials struct {
	User     string
	KeyFile  string
	Password string
	UseAgent bool
}

// New builds credentials from the CLI surface. With no explicit key or
// password it probes the conventional default key locations and falls back
// to the agent when none exist.
func New(user, keyFile, password string) (*Credentials, error) {
	if user == "" {
		return nil, fmt.Errorf("remote user must not be empty")
	}
	c := &Credentials{
		User:     user,
		KeyFile:  keyFile,
		Password: password,
		UseAgent: true,
	}

	if keyFile == "" && password == "" {
		if home, err := os.UserHomeDir(); err == nil {
			for _, name := range []string{"id_rsa", "id_ed25519", "id_ecdsa"} {
				path := filepath.Join(home, ".ssh", name)
				if _, err := os.Stat(path); err == nil {
					c.KeyFile = path
					break
				}
			}
		}
	}

	if c.KeyFile != "" {
		if _, err := os.Stat(c.KeyFile); err != nil {
			return nil, fmt.Errorf("private key %s not accessible: %w", c.KeyFile, err)
		}
	}

	return c, nil
}

// AuthMethods materializes the candidates in priority order. Candidates
// that cannot be constructed (unreadable key, no agent socket) are skipped
// rather than failing the whole list; an empty list is an error since no
// authentication could ever succeed.
func (c *Credentials) AuthMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if c.KeyFile != "" {
		keyAuth, err := keyFileAuth(c.KeyFile)
		if err != nil {
			return nil, err
		}
		methods = append(methods, keyAuth)
	}

	if c.UseAgent {
		if agentAuth := agentAuth(); agentAuth != nil {
			methods = append(methods, agentAuth)
		}
	}

	if c.Password != "" {
		methods = append(methods, ssh.Password(c.Password))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no authentication methods available; provide --private-key, --password or a running ssh-agent")
	}
	return methods, nil
}

func keyFileAuth(path string) (ssh.AuthMethod, error) {
	keyBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read private key %s: %w", path, err)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("cannot parse private key %s: %w", path, err)
	}
	return ssh.PublicKeys(signer), nil
}

func agentAuth() ssh.AuthMethod {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil
	}
	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers)
}

// PromptPassword reads a password from the terminal without echo.
func PromptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}
