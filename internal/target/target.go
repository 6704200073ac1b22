// Package target parses and normalizes host specifications into connection targets.
package target

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is used when a host specification carries no port.
const DefaultPort = 22

// Target is one (host, port) pair to execute the command against. It is
// immutable once constructed.
type Target struct {
	Host string // Hostname or IP address
	Port int    // SSH port number
}

// Key returns the deduplication identity of the target.
func (t Target) Key() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Addr returns the dialable host:port address.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// String returns the canonical display form. The default port is elided.
func (t Target) String() string {
	if t.Port == DefaultPort {
		return t.Host
	}
	return t.Key()
}

// Parse parses a single host specification of the form "host[:port]".
// Anything after the first whitespace run following the host token is
// treated as an inline comment and dropped.
func Parse(spec string) (Target, error) {
	spec = strings.TrimSpace(spec)
	if i := strings.IndexAny(spec, " \t"); i >= 0 {
		spec = spec[:i]
	}
	if spec == "" {
		return Target{}, fmt.Errorf("empty host specification")
	}

	host := spec
	portStr := ""

	if strings.HasPrefix(spec, "[") {
		// IPv6 literal: [::1] or [::1]:2222
		close := strings.Index(spec, "]")
		if close == -1 {
			return Target{}, fmt.Errorf("invalid IPv6 address %q: missing closing bracket", spec)
		}
		host = spec[1:close]
		rest := spec[close+1:]
		if strings.HasPrefix(rest, ":") {
			portStr = rest[1:]
		} else if rest != "" {
			return Target{}, fmt.Errorf("invalid host specification %q", spec)
		}
	} else if i := strings.LastIndex(spec, ":"); i >= 0 {
		if strings.Count(spec, ":") > 1 {
			// Bare IPv6 without a port.
			host = spec
		} else {
			host = spec[:i]
			portStr = spec[i+1:]
		}
	}

	if host == "" {
		return Target{}, fmt.Errorf("empty hostname in %q", spec)
	}

	t := Target{Host: host, Port: DefaultPort}
	if portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Target{}, fmt.Errorf("invalid port %q in %q", portStr, spec)
		}
		if port < 1 || port > 65535 {
			return Target{}, fmt.Errorf("port %d out of range (1-65535) in %q", port, spec)
		}
		t.Port = port
	}

	return t, nil
}

// ParseList parses a comma-separated list of host specifications. Empty
// entries are skipped; invalid entries fail the whole list.
func ParseList(input string) ([]Target, error) {
	var targets []Target
	for i, spec := range strings.Split(input, ",") {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		t, err := Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("host %d: %w", i+1, err)
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// Dedupe collapses duplicate (host, port) pairs, keeping the first
// occurrence and preserving order.
func Dedupe(targets []Target) []Target {
	seen := make(map[string]bool, len(targets))
	out := make([]Target, 0, len(targets))
	for _, t := range targets {
		if seen[t.Key()] {
			continue
		}
		seen[t.Key()] = true
		out = append(out, t)
	}
	return out
}
