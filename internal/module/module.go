// Package module provides the pluggable command builders: named modules
// that expand a short invocation into the shell command the dispatcher
// runs. The dispatcher treats a module-built command identically to a
// user-typed one.
package module

import (
	"fmt"
	"strings"
)

// Source builds a command string from module arguments.
type Source interface {
	// Name is the module name matched against the first positional arg.
	Name() string

	// Build produces the shell command to run on every target.
	Build(args []string) (string, error)
}

// registry holds the built-in modules in lookup order.
var registry = []Source{
	sudoModule{},
	osUpdateModule{},
	rebootWaitModule{},
	collectFactsModule{},
}

// Lookup returns the module registered under name, if any.
func Lookup(name string) (Source, bool) {
	for _, m := range registry {
		if m.Name() == name {
			return m, true
		}
	}
	return nil, false
}

// Names returns the registered module names.
func Names() []string {
	names := make([]string, len(registry))
	for i, m := range registry {
		names[i] = m.Name()
	}
	return names
}

// Resolve turns the positional arguments into the command to execute. When
// the first argument names a registered module, its builder runs on the
// remaining arguments; otherwise all arguments join into a verbatim
// command.
func Resolve(args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("no module or command provided")
	}
	if m, ok := Lookup(args[0]); ok {
		cmd, err := m.Build(args[1:])
		if err != nil {
			return "", fmt.Errorf("module %s: %w", m.Name(), err)
		}
		return cmd, nil
	}
	return strings.Join(args, " "), nil
}

// shellQuote wraps s in single quotes, escaping embedded single quotes, so
// a script can be handed to bash -c as one argument.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// bashC wraps a script for remote execution as a single command string.
func bashC(script string) string {
	return "bash -c " + shellQuote(script)
}
