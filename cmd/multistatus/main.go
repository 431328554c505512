package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"multistatus/internal/channel"
	"multistatus/internal/config"
	"multistatus/internal/metrics"
	"multistatus/internal/orchestrator"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	configPath    string
	fifoPath      string
	logLevel      string
	metricsListen string

	priority     int
	timeout      float64
	startupDelay float64
	queueSize    int
	execCommand  string
)

var rootCmd = &cobra.Command{
	Use:   "multistatus",
	Short: "multistatus - Merge several i3bar status streams into one",
	Long: `multistatus merges the output of several i3bar status programs into one stream.

Producers read a status program's output, cut it into status lines and send each
line, tagged with a priority, through a named pipe. One consumer reads the pipe
and prints the merged stream for i3bar: the line of the highest priority wins,
unless it has not been updated for longer than the timeout.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var producerCmd = &cobra.Command{
	Use:     "producer [priority]",
	Aliases: []string{"reader"},
	Short:   "Send status lines read from stdin to the consumer",
	Long: `Read an i3bar status stream from stdin, or from the program given with --exec,
and send each status line to the consumer with the given priority (default 0).

Status lines are dropped while no consumer is running.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, args, "priority")
		if err != nil {
			return err
		}
		return run(cmd.Context(), orchestrator.ModeProducer, cfg)
	},
}

var consumerCmd = &cobra.Command{
	Use:     "consumer [timeout]",
	Aliases: []string{"receiver", "reciever"},
	Short:   "Print the merged status stream",
	Long: `Create the channel if needed, read status lines from all producers and print the
merged i3bar stream to stdout.

A status line of lower priority replaces the current one only after the current one
has not been updated for timeout seconds (default 2).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, args, "timeout")
		if err != nil {
			return err
		}
		return run(cmd.Context(), orchestrator.ModeConsumer, cfg)
	},
}

var bothCmd = &cobra.Command{
	Use:   "both [priority] [timeout]",
	Short: "Run consumer and producer in one process",
	Long: `Run the consumer and, after a short delay, a producer reading stdin in the same
process. The process exits when either of them stops.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, args, "priority", "timeout")
		if err != nil {
			return err
		}
		return run(cmd.Context(), orchestrator.ModeBoth, cfg)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the channel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, args)
		if err != nil {
			return err
		}
		return printStatus(cmd.OutOrStdout(), cfg.FIFO)
	},
}

// loadConfig layers defaults, config file, environment, positional arguments and flags.
// names lists the settings the positional arguments stand for, in order.
func loadConfig(cmd *cobra.Command, args []string, names ...string) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	cfg.ApplyEnv()

	for i, arg := range args {
		switch names[i] {
		case "priority":
			p, err := strconv.Atoi(arg)
			if err != nil {
				return config.Config{}, fmt.Errorf("invalid priority %q: must be an integer", arg)
			}
			cfg.Priority = p
		case "timeout":
			d, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return config.Config{}, fmt.Errorf("invalid timeout %q: must be a number of seconds", arg)
			}
			cfg.Timeout = d
		}
	}

	flags := cmd.Flags()
	if flags.Changed("fifo") {
		cfg.FIFO = fifoPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("metrics-listen") {
		cfg.MetricsListen = metricsListen
	}
	if flags.Changed("priority") {
		cfg.Priority = priority
	}
	if flags.Changed("timeout") {
		cfg.Timeout = timeout
	}
	if flags.Changed("startup-delay") {
		cfg.StartupDelay = startupDelay
	}
	if flags.Changed("queue-size") {
		cfg.QueueSize = queueSize
	}
	if flags.Changed("exec") {
		cfg.Exec = execCommand
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := setupLogger(cfg.LogLevel); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// setupLogger sends logs to stderr; stdout carries the merged stream
func setupLogger(level string) error {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return err
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler).With("run_id", uuid.NewString()))
	return nil
}

func run(ctx context.Context, mode orchestrator.Mode, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	// A second signal during shutdown kills the process
	context.AfterFunc(ctx, stop)

	if cfg.MetricsListen != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsListen); err != nil {
				slog.Error("Metrics server stopped", "error", err)
			}
		}()
	}

	if mode != orchestrator.ModeConsumer && cfg.Exec == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		slog.Warn("Reading status lines from a terminal, pipe a status program into stdin or use --exec")
	}

	o := &orchestrator.Orchestrator{
		Producer:     orchestrator.ProducerRole(cfg.FIFO, cfg.Priority, cfg.QueueSize, cfg.Exec, os.Stdin),
		Consumer:     orchestrator.ConsumerRole(cfg.FIFO, cfg.TimeoutDuration(), os.Stdout),
		StartupDelay: cfg.StartupDelayDuration(),
	}

	err := o.Run(ctx, mode)
	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		slog.Info("Interrupted, exiting")
		return nil
	}
	return err
}

func printStatus(w io.Writer, path string) error {
	info, err := channel.Stat(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "channel: %s\n", info.Path)
	if !info.Exists {
		fmt.Fprintln(w, "state:   missing (a consumer creates it on start)")
		return nil
	}
	if !info.IsFIFO {
		fmt.Fprintf(w, "state:   not a named pipe (mode %s)\n", info.Mode)
		return nil
	}
	if info.HasReader {
		fmt.Fprintln(w, "state:   consumer attached")
	} else {
		fmt.Fprintln(w, "state:   no consumer attached")
	}

	holders, err := channel.Holders(path)
	if err != nil {
		return err
	}
	if len(holders) == 0 {
		fmt.Fprintln(w, "holders: none visible")
		return nil
	}
	fmt.Fprintln(w, "holders:")
	for _, h := range holders {
		fmt.Fprintf(w, "  %d\t%s\t%s\n", h.PID, h.Name, h.Cmdline)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (.toml or .yaml)")
	rootCmd.PersistentFlags().StringVar(&fifoPath, "fifo", channel.DefaultPath(), "Channel path (default: $"+config.EnvFIFO+" or the temporary directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address, e.g. 127.0.0.1:9310")

	for _, cmd := range []*cobra.Command{producerCmd, bothCmd} {
		cmd.Flags().IntVarP(&priority, "priority", "p", 0, "Priority of this producer's status lines")
		cmd.Flags().IntVar(&queueSize, "queue-size", 16, "Status lines buffered while the channel is slow")
		cmd.Flags().StringVar(&execCommand, "exec", "", "Run this status command instead of reading stdin")
	}
	for _, cmd := range []*cobra.Command{consumerCmd, bothCmd} {
		cmd.Flags().Float64VarP(&timeout, "timeout", "t", 2.0, "Seconds before a lower priority may replace the current status line")
	}
	bothCmd.Flags().Float64Var(&startupDelay, "startup-delay", 1.0, "Seconds the producer waits for the consumer to attach")

	rootCmd.AddCommand(producerCmd)
	rootCmd.AddCommand(consumerCmd)
	rootCmd.AddCommand(bothCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
