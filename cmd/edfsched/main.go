// edfsched runs the earliest-deadline-first interception scheduler against
// the built-in simulated world.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"edfsched/internal/logx"
	"edfsched/internal/sched"
	"edfsched/internal/sim"
)

const version = "0.3.0"

var (
	configPath string
	logLevel   string
	logFormat  string
	csvPath    string
	seed       uint64
	maxTargets int
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "edfsched:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "edfsched",
		Short:   "EDF scheduler for a single shared cannon",
		Version: version,
		Long: `edfsched spawns one interception task per incoming target and grants
the single cannon to the task whose target will land soonest.

The first interrupt stops new arrivals, the second (or SIGTERM) shuts down.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yml", "YAML config file (missing file means defaults)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.Flags().StringVar(&logFormat, "log-format", "", "Log format: console or json (overrides config)")
	rootCmd.Flags().StringVar(&csvPath, "csv", "", "Write the event trace to this CSV file (overrides config)")
	rootCmd.Flags().Uint64Var(&seed, "seed", 0, "Simulation seed (overrides config)")
	rootCmd.Flags().IntVar(&maxTargets, "targets", -1, "Stop the bomber after this many targets, 0 for no limit (overrides config)")

	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the edfsched version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "edfsched %s\n", version)
		},
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := sched.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, &cfg)

	log := logx.New(cfg.LogFormat, cfg.LogLevel)
	w := sim.New(sim.Config{
		Width:      cfg.Sim.Width,
		Height:     cfg.Sim.Height,
		MinSpeed:   cfg.Sim.MinSpeed,
		MaxSpeed:   cfg.Sim.MaxSpeed,
		Rate:       cfg.Sim.Rate,
		Burst:      cfg.Sim.Burst,
		Tolerance:  cfg.Sim.Tolerance,
		Seed:       cfg.Sim.Seed,
		MaxTargets: cfg.Sim.MaxTargets,
	}, nil)

	sup := sched.New(w, cfg, sched.WithLogger(log))
	if err := sup.Start(context.Background()); err != nil {
		return err
	}

	// Signal handling only flips supervisor state; teardown runs on the
	// supervisor's own goroutine.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		interrupts := 0
		for {
			select {
			case sig := <-sigCh:
				interrupts++
				if sig == syscall.SIGTERM || interrupts > 1 {
					log.Info("shutdown requested", logx.String("signal", sig.String()))
					sup.RequestShutdown()
					return
				}
				log.Info("stopping arrivals, interrupt again to finish")
				sup.StopArrivals()
			case <-sup.Done():
				return
			}
		}
	}()

	err = sup.Wait()
	st := w.Stats()
	log.Info("run summary",
		logx.Int("targets", st.Spawned),
		logx.Int("shots", st.Shots),
		logx.Int("intercepted", st.Hits),
		logx.Int("impacted", st.Impacts))
	return err
}

func applyFlags(cmd *cobra.Command, cfg *sched.Config) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
	if flags.Changed("csv") {
		cfg.CSVPath = csvPath
	}
	if flags.Changed("seed") {
		cfg.Sim.Seed = seed
	}
	if flags.Changed("targets") && maxTargets >= 0 {
		cfg.Sim.MaxTargets = maxTargets
	}
}
