// Package main implements the titan CLI - the control surface for TITAN's
// local-first autonomous agent runtime.
//
// This file is the entry point and command registration hub; each command
// group lives in its own cmd_*.go file (grounded on the teacher's
// cmd/nerd/main.go's file-per-command-group convention).
//
// # File Index
//
//   - main.go           - entry point, rootCmd, global flags, runtime bootstrap
//   - cmd_goal.go       - goal submit/show/cancel
//   - cmd_approval.go   - approval list/show/approve/deny/wait
//   - cmd_tool.go       - tool run
//   - cmd_skill.go      - skill search/install/list/inspect/update/remove/run/doctor/validate
//   - cmd_job.go        - job add/list/show/pause/resume/run-now/remove
//   - cmd_connector.go  - connector list/add/configure/test/remove
//   - cmd_secrets.go    - secrets status/unlock/lock
//   - cmd_model.go      - model show/set/list-local
//   - cmd_comm.go       - comm list/status/send
//   - cmd_doctor.go     - doctor, onboard
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Djtony707/TITAN/internal/apperr"
	"github.com/Djtony707/TITAN/internal/approval"
	"github.com/Djtony707/TITAN/internal/broker"
	"github.com/Djtony707/TITAN/internal/config"
	"github.com/Djtony707/TITAN/internal/connector"
	"github.com/Djtony707/TITAN/internal/executor"
	"github.com/Djtony707/TITAN/internal/gateway"
	"github.com/Djtony707/TITAN/internal/httpapi"
	"github.com/Djtony707/TITAN/internal/llm"
	"github.com/Djtony707/TITAN/internal/logging"
	"github.com/Djtony707/TITAN/internal/planner"
	"github.com/Djtony707/TITAN/internal/policy"
	"github.com/Djtony707/TITAN/internal/scheduler"
	"github.com/Djtony707/TITAN/internal/secrets"
	"github.com/Djtony707/TITAN/internal/skills"
	"github.com/Djtony707/TITAN/internal/store"
	"github.com/Djtony707/TITAN/internal/tools"
	"github.com/Djtony707/TITAN/internal/workspace"
)

var (
	cfgPath    string
	wsOverride string
	verbose    bool

	// cmdOut is every subcommand's structured-output writer, swapped out by
	// tests that need to capture it.
	cmdOut io.Writer = os.Stdout
)

// rootCmd is titan's base command.
var rootCmd = &cobra.Command{
	Use:   "titan",
	Short: "TITAN - a local-first autonomous agent runtime",
	Long: `TITAN plans and executes multi-step goals against a local workspace,
gated by policy and human approval, with skills, scheduled jobs, and
connectors to external systems as first-class citizens.

Run "titan run" to start the runtime (Gateway, Scheduler, HTTP surface).`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		return logging.Init(level, cfg.Logging.Format)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func loadConfig() (*config.Config, error) {
	path := cfgPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if wsOverride != "" {
		abs, err := filepath.Abs(wsOverride)
		if err != nil {
			return nil, err
		}
		cfg.Workspace.Root = abs
	}
	if cfg.Workspace.Root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		cfg.Workspace.Root = cwd
	}
	return cfg, nil
}

// runtime bundles every boot-constructed component a command needs. Built
// once per CLI invocation from the layered config (spec §2's component
// graph); `titan run` keeps it alive for the process lifetime, every other
// command builds it, performs one operation, and exits.
type runtime struct {
	cfg       *config.Config
	st        *store.Store
	guard     *workspace.Guard
	approvals *approval.Queue
	reg       *tools.Registry
	broker    *broker.Broker
	planner   *planner.Planner
	executor  *executor.Executor
	gateway   *gateway.Gateway
	scheduler *scheduler.Scheduler
	installer *skills.Installer
	skillrt   *skills.Runtime
	mediator  *connector.Mediator
}

// bootstrap constructs every core component from cfg, wires the Tool
// Broker's built-in catalogue and any registered connectors, and rehydrates
// in-flight approvals and goals left over from a prior process (spec §4.8:
// "a restart continues from the last completed step using the persisted
// plan/results").
func bootstrap(ctx context.Context, cfg *config.Config) (*runtime, error) {
	guard, err := workspace.New(cfg.Workspace.Root)
	if err != nil {
		return nil, fmt.Errorf("workspace guard: %w", err)
	}

	dbPath := cfg.Store.Path
	if dbPath == "" {
		home, _ := os.UserHomeDir()
		dbPath = filepath.Join(home, ".titan", "titan.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	reg := tools.NewRegistry()
	tools.RegisterBuiltins(reg, cfg.Broker.AllowedExecBinaries, cfg.Broker.AllowedNetHosts)

	sec := secrets.Chain{secrets.EnvSecrets{Prefix: "TITAN_SECRET_"}}
	typeReg := connector.NewTypeRegistry()
	typeReg.Register(connector.RESTTypeDef())
	mediator := connector.NewMediator(st, typeReg, sec)
	if err := mediator.RegisterTools(ctx, reg); err != nil {
		return nil, fmt.Errorf("register connector tools: %w", err)
	}

	q := approval.New(st)
	if err := q.Rehydrate(ctx); err != nil {
		return nil, fmt.Errorf("rehydrate approvals: %w", err)
	}

	pol := policy.New()
	br := broker.New(reg, guard, pol, q, st, cfg.Broker.MaxConcurrentPerCapClass)
	pl := planner.New(reg, st, planner.Weights{})

	mode := policy.AutonomyMode(cfg.Autonomy.Mode)
	risk := policy.RiskMode(cfg.Autonomy.RiskMode)
	ex := executor.New(st, pl, br, q, mode, risk, executor.DefaultLimits)
	if approvalTTL, err := time.ParseDuration(cfg.Approval.DefaultTTL); err == nil {
		ex.SetApprovalTTL(approvalTTL)
	}

	gw := gateway.New(st, ex, q)
	tick, err := time.ParseDuration(cfg.Scheduler.TickInterval)
	if err != nil {
		tick = 0 // scheduler.New falls back to its own default
	}
	sched := scheduler.New(st, gw, cfg.Scheduler.MaxConcurrency, tick)

	reviewer, err := llm.New(cfg.LLM.Provider, cfg.LLM.Model)
	if err != nil {
		logging.Boot("llm provider unavailable, skill installs proceed without a review note: %v", err)
		reviewer = nil
	}
	installer := skills.NewInstaller(guard, q, st, skills.MapTrustStore{}, reviewer)
	skillrt := skills.NewRuntime(st, guard, br)

	// Resume every non-terminal goal left over from a prior process.
	// Executor.Submit re-derives a resumed goal's remaining steps from its
	// persisted plan, so resubmitting is the resume path, not a duplicate run.
	if err := ex.Resume(ctx); err != nil {
		return nil, err
	}

	return &runtime{
		cfg:       cfg,
		st:        st,
		guard:     guard,
		approvals: q,
		reg:       reg,
		broker:    br,
		planner:   pl,
		executor:  ex,
		gateway:   gw,
		scheduler: sched,
		installer: installer,
		skillrt:   skillrt,
		mediator:  mediator,
	}, nil
}

func (rt *runtime) Close() {
	rt.approvals.Close()
	rt.gateway.Stop()
	rt.st.Close()
}

// runCmd starts the long-running TITAN process: the Scheduler's poll loop
// and the loopback HTTP surface, until interrupted.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the TITAN runtime (scheduler + HTTP surface)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		rt, err := bootstrap(ctx, cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		rt.scheduler.Start(ctx)
		defer rt.scheduler.Stop()

		srv, err := httpapi.New(cfg.HTTP.Addr, rt.st, rt.gateway, rt.scheduler)
		if err != nil {
			return err
		}
		if err := srv.Start(); err != nil {
			return err
		}
		defer srv.Stop(context.Background())

		logging.Boot("titan runtime started: workspace=%s http=%s", cfg.Workspace.Root, cfg.HTTP.Addr)
		<-ctx.Done()
		logging.Boot("titan runtime shutting down")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config.toml (default ~/.titan/config.toml)")
	rootCmd.PersistentFlags().StringVar(&wsOverride, "workspace", "", "workspace root override")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug-level logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(goalCmd)
	rootCmd.AddCommand(approvalCmd)
	rootCmd.AddCommand(toolCmd)
	rootCmd.AddCommand(skillCmd)
	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(connectorCmd)
	rootCmd.AddCommand(secretsCmd)
	rootCmd.AddCommand(modelCmd)
	rootCmd.AddCommand(commCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(yoloCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(apperr.ExitCode(err))
	}
}
