// Command crusty executes a shell command or module across a fleet of SSH
// hosts with bounded concurrency, per-host retries and structured output.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Crusty-rs/crusty/internal/config"
	"github.com/Crusty-rs/crusty/internal/creds"
	"github.com/Crusty-rs/crusty/internal/dispatch"
	"github.com/Crusty-rs/crusty/internal/inventory"
	"github.com/Crusty-rs/crusty/internal/logging"
	"github.com/Crusty-rs/crusty/internal/module"
	"github.com/Crusty-rs/crusty/internal/output"
	"github.com/Crusty-rs/crusty/internal/retry"
	"github.com/Crusty-rs/crusty/internal/sshx"
	"github.com/Crusty-rs/crusty/internal/target"
)

var (
	// Build-time variables (set via -ldflags)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"

	cfg *config.Config

	// CLI flags
	hosts          string
	inventoryFile  string
	user           string
	privateKey     string
	password       string
	askPass        bool
	concurrency    uint
	connectTimeout time.Duration
	ioTimeout      time.Duration
	retries        uint
	jsonOut        bool
	prettyJSONOut  bool
	fieldsSpec     string
	quiet          bool
	verbose        bool
	dryRun         bool
	logFormat      string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "crusty: %v\n", err)
		os.Exit(getExitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "crusty [flags] -- <module-or-command> [args...]",
	Short: "Run a command across a fleet of SSH hosts in parallel",
	Long: `crusty connects to every host in the inventory, runs one command, and
reports a structured per-host result. Connections are bounded by a
concurrency limit; slow or unreachable hosts never stall the rest of the
fleet.

The first argument is either a built-in module (` + strings.Join(module.Names(), ", ") + `)
or a verbatim shell command.

Examples:
  crusty --hosts web1,web2:2222 -- uptime
  crusty --inventory hosts.txt --retries 2 -- "systemctl status nginx"
  crusty --hosts db1 --json -- collect-facts
  crusty --hosts all.example.com -- sudo alice --template=operator`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return &SetupError{Message: "command is required after '--'"}
		}
		return nil
	},
	PreRunE: func(cmd *cobra.Command, args []string) error {
		manager := config.NewManager()
		loaded, err := manager.Load()
		if err != nil {
			return &SetupError{Message: fmt.Sprintf("failed to load configuration: %v", err)}
		}
		cfg = loaded

		applyFlagOverrides(cmd)

		if err := config.Validate(cfg); err != nil {
			return &SetupError{Message: err.Error()}
		}
		if jsonOut && prettyJSONOut {
			return &SetupError{Message: "--json and --pretty-json are mutually exclusive"}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(args, os.Stdout)
	},
}

func init() {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("crusty %s\n", version)
			fmt.Printf("Commit: %s\n", commit)
			fmt.Printf("Built: %s\n", buildTime)
		},
	}
	rootCmd.AddCommand(versionCmd)

	f := rootCmd.Flags()
	f.StringVar(&hosts, "hosts", "", "Comma-separated list of host[:port] targets")
	f.StringVar(&inventoryFile, "inventory", "", "Inventory file (text, or .yml/.yaml/.json Ansible format)")
	f.StringVarP(&user, "user", "u", "root", "Remote user")
	f.StringVarP(&privateKey, "private-key", "k", "", "Private key file (first auth candidate)")
	f.StringVarP(&password, "password", "p", "", "Password auth candidate (tried last)")
	f.BoolVar(&askPass, "ask-pass", false, "Prompt for the SSH password")
	f.UintVarP(&concurrency, "concurrency", "c", 10, "Maximum simultaneous target executions")
	f.DurationVar(&connectTimeout, "connect-timeout", 10*time.Second, "Connection establishment budget per attempt")
	f.DurationVar(&ioTimeout, "timeout", 30*time.Second, "Idle timeout during command execution")
	f.UintVar(&retries, "retries", 0, "Retry budget per target for transient failures")
	f.BoolVar(&jsonOut, "json", false, "Stream one JSON record per result (NDJSON)")
	f.BoolVar(&prettyJSONOut, "pretty-json", false, "Buffer results and print one indented JSON collection")
	f.StringVar(&fieldsSpec, "fields", "", "Restrict emitted record fields (e.g. hostname,exit_code)")
	f.BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error log output")
	f.BoolVarP(&verbose, "verbose", "v", false, "Log resolved targets and command")
	f.BoolVar(&dryRun, "dry-run", false, "Print the execution plan without connecting")
	f.StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
}

// applyFlagOverrides layers explicitly set CLI flags over the loaded
// configuration.
func applyFlagOverrides(cmd *cobra.Command) {
	fl := cmd.Flags()
	if fl.Changed("hosts") {
		cfg.Hosts = hosts
	}
	if fl.Changed("inventory") {
		cfg.Inventory = inventoryFile
	}
	if fl.Changed("user") {
		cfg.User = user
	}
	if fl.Changed("private-key") {
		cfg.PrivateKey = privateKey
	}
	if fl.Changed("password") {
		cfg.Password = password
	}
	if fl.Changed("ask-pass") {
		cfg.AskPass = askPass
	}
	if fl.Changed("concurrency") {
		cfg.Concurrency = concurrency
	}
	if fl.Changed("connect-timeout") {
		cfg.ConnectTimeout = connectTimeout
	}
	if fl.Changed("timeout") {
		cfg.Timeout = ioTimeout
	}
	if fl.Changed("retries") {
		cfg.Retries = retries
	}
	if jsonOut {
		cfg.Output = string(output.JSONStreamMode)
	}
	if prettyJSONOut {
		cfg.Output = string(output.JSONPrettyMode)
	}
	if fl.Changed("fields") {
		cfg.Fields = fieldsSpec
	}
	if fl.Changed("quiet") {
		cfg.Quiet = quiet
	}
	if fl.Changed("verbose") {
		cfg.Verbose = verbose
	}
	if fl.Changed("dry-run") {
		cfg.DryRun = dryRun
	}
	if fl.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
}

func run(args []string, w io.Writer) error {
	logger := logging.New(logging.Config{
		Format:  logging.Format(cfg.LogFormat),
		Quiet:   cfg.Quiet,
		Verbose: cfg.Verbose,
	})

	command, err := module.Resolve(args)
	if err != nil {
		return &SetupError{Message: err.Error()}
	}

	targets, err := inventory.Resolve(cfg.Hosts, cfg.Inventory)
	if err != nil {
		return &SetupError{Message: err.Error()}
	}

	if cfg.Verbose {
		for _, t := range targets {
			logger.Debug("resolved target", "host", t.Host, "port", t.Port)
		}
		logger.Debug("resolved command", "command", command)
	}

	fields, err := output.ParseFieldFilter(cfg.Fields)
	if err != nil {
		return &SetupError{Message: err.Error()}
	}

	if cfg.DryRun {
		return printPlan(w, targets, command)
	}

	pw := cfg.Password
	if cfg.AskPass && pw == "" {
		pw, err = creds.PromptPassword("SSH password: ")
		if err != nil {
			return &SetupError{Message: err.Error()}
		}
	}

	credentials, err := creds.New(cfg.User, cfg.PrivateKey, pw)
	if err != nil {
		return &SetupError{Message: err.Error()}
	}

	formatter, err := output.NewFormatter(output.Mode(cfg.Output), w, targets, fields)
	if err != nil {
		return &SetupError{Message: err.Error()}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	establisher := sshx.NewEstablisher(credentials, cfg.ConnectTimeout, logger)
	attempt := dispatch.SSHAttempt(establisher, command, cfg.Timeout)
	policy := &retry.Policy{MaxRetries: cfg.Retries, Logger: logger}
	dispatcher := dispatch.New(int(cfg.Concurrency), policy, attempt, logger)

	results := dispatcher.Run(ctx, targets)
	summary := output.NewAggregator(formatter, logger).Consume(results)

	logger.Info("run completed",
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
	)

	if !summary.AllSucceeded() {
		return &ExecutionError{
			Message: fmt.Sprintf("%d/%d hosts failed", summary.Failed, summary.Total),
		}
	}
	return nil
}

// printPlan shows what a run would do without opening any connections.
func printPlan(w io.Writer, targets []target.Target, command string) error {
	fmt.Fprintln(w, "crusty dry run - no connections will be made")
	fmt.Fprintf(w, "Command: %s\n", command)
	fmt.Fprintf(w, "Concurrency: %d, retries: %d, connect timeout: %v, io timeout: %v\n",
		cfg.Concurrency, cfg.Retries, cfg.ConnectTimeout, cfg.Timeout)
	fmt.Fprintf(w, "Targets (%d):\n", len(targets))
	for i, t := range targets {
		fmt.Fprintf(w, "  %d. %s\n", i+1, t.Key())
	}
	return nil
}

// ExecutionError reports that one or more targets failed (exit code 1).
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string { return e.Message }

// SetupError reports a configuration problem before dispatch (exit code 2).
type SetupError struct {
	Message string
}

func (e *SetupError) Error() string { return e.Message }

// getExitCode maps an error to the process exit status:
//   - 0: all targets succeeded
//   - 1: one or more targets failed
//   - 2: configuration error (bad flags, no hosts resolved)
func getExitCode(err error) int {
	switch err.(type) {
	case nil:
		return 0
	case *ExecutionError:
		return 1
	default:
		return 2
	}
}
