package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/loykin/fsproxy/internal/config"
	"github.com/loykin/fsproxy/internal/metrics"
	"github.com/loykin/fsproxy/internal/pidfile"
	"github.com/loykin/fsproxy/internal/proc"
	"github.com/loykin/fsproxy/internal/server"
	"github.com/loykin/fsproxy/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// GlobalFlags holds the persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// command binds the flag state to the cobra handlers.
type command struct {
	gf *GlobalFlags
}

func buildRoot() *cobra.Command {
	gf := &GlobalFlags{}
	c := &command{gf: gf}
	root := &cobra.Command{
		Use:           "fsproxy",
		Short:         "HTTP server with a single-instance, cross-platform supervisor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&gf.ConfigPath, "config", "",
		"path to fsproxy.toml (default: beside the executable, then the current directory)")
	root.AddCommand(c.startCmd(), c.stopCmd(), c.restartCmd(), c.statusCmd(), c.killCmd())
	return root
}

// setup loads configuration and wires the supervisor for one operation.
func (c *command) setup() (*supervisor.Supervisor, config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.gf.ConfigPath)
	if err != nil {
		return nil, cfg, nil, err
	}
	log := cfg.Log.New()
	_ = metrics.Register(prometheus.DefaultRegisterer)
	sup := supervisor.New(proc.Adapter{}, pidfile.Store{Path: cfg.PIDFile}, supervisor.Options{
		StopPollInterval: cfg.StopPollInterval,
		StopPollBudget:   cfg.StopPollBudget,
		RestartSettle:    cfg.RestartSettle,
		RespawnArgs:      respawnArgs(c.gf),
	}, log)
	return sup, cfg, log, nil
}

// respawnArgs maps the invocation's persistent flags onto the argv a
// relaunched instance needs to run under the same configuration.
func respawnArgs(gf *GlobalFlags) []string {
	if gf.ConfigPath == "" {
		return nil
	}
	return []string{"--config", gf.ConfigPath}
}

func (c *command) startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Launch the server unless an instance is already running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sup, cfg, log, err := c.setup()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return sup.Start(ctx, server.New(cfg.Listen, log))
		},
	}
}

func (c *command) stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the recorded instance (graceful, then forced)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sup, _, _, err := c.setup()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := sup.Stop(ctx); err != nil {
				return err
			}
			fmt.Println("stopped")
			return nil
		},
	}
}

func (c *command) restartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Stop the recorded instance and relaunch the server detached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sup, _, _, err := c.setup()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := sup.Restart(ctx); err != nil {
				return err
			}
			fmt.Println("restarted")
			return nil
		},
	}
}

func (c *command) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether an instance is running",
		Args:  cobra.NoArgs,
		// Status is informational and always exits zero.
		RunE: func(_ *cobra.Command, _ []string) error {
			sup, _, _, err := c.setup()
			if err != nil {
				_, _ = fmt.Fprintln(os.Stderr, "error:", err)
				return nil
			}
			st := sup.CurrentStatus()
			if !st.Running {
				fmt.Println("not running")
				return nil
			}
			fmt.Printf("running (pid %d)\n", st.PID)
			if st.Info != "" {
				fmt.Println(st.Info)
			}
			return nil
		},
	}
}

func (c *command) killCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <pid>",
		Short: "Force-terminate an explicit pid, bypassing the graceful phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			pid, err := strconv.Atoi(args[0])
			if err != nil || pid <= 0 {
				return fmt.Errorf("invalid pid %q", args[0])
			}
			sup, _, _, err := c.setup()
			if err != nil {
				return err
			}
			if err := sup.Kill(pid); err != nil {
				return err
			}
			fmt.Printf("killed pid %d\n", pid)
			return nil
		},
	}
}
