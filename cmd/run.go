// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/console"
	"github.com/xkilldash9x/webpilot/internal/llmclient"
	"github.com/xkilldash9x/webpilot/internal/observability"
	"github.com/xkilldash9x/webpilot/internal/policy"

	auditpkg "github.com/xkilldash9x/webpilot/internal/audit"
	configpkg "github.com/xkilldash9x/webpilot/internal/config"
)

const shutdownTimeout = 20 * time.Second

var planOnly bool

var runCmd = &cobra.Command{
	Use:   `run "instruction"`,
	Short: "Execute a natural language browsing instruction",
	Long: `Runs the agent against a live browser. By default the iterative
observe-decide-act loop is used; --plan-only executes the one-shot plan and
stops.`,
	Args: cobra.ExactArgs(1),
	RunE: runAgent,
}

func init() {
	runCmd.Flags().BoolVar(&planOnly, "plan-only", false, "execute the one-shot plan without the iterative loop")
	runCmd.Flags().Bool("headless", true, "run the browser without a visible window")
	runCmd.Flags().Int("max-steps", 0, "override the real-step budget for this run")
	_ = viper.BindPFlag("browser.headless", runCmd.Flags().Lookup("headless"))
	_ = viper.BindPFlag("agent.max_steps", runCmd.Flags().Lookup("max-steps"))

	rootCmd.AddCommand(runCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	instruction := args[0]
	logger := observability.GetLogger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := browser.NewManager(cfg.Browser, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Browser shutdown failed", zap.Error(err))
		}
	}()

	backend, err := manager.NewBackend()
	if err != nil {
		return fmt.Errorf("could not attach a browser page: %w", err)
	}
	defer backend.Close()

	llm, err := llmclient.NewClient(cfg.Agent.LLM, logger)
	if err != nil {
		return fmt.Errorf("could not build the LLM client: %w", err)
	}

	auditLog, closeAudit, err := newAuditLog(ctx, logger, cfg.Audit)
	if err != nil {
		return err
	}
	defer closeAudit()

	ag := agent.New(logger, cfg.Agent, agent.Deps{
		LLM:       llm,
		Backend:   backend,
		Snapshots: backend,
		Gate:      policy.NewGate(logger, cfg.Policy),
		Audit:     auditLog,
		Prompter:  console.New(logger),
	})
	session := agent.NewSession()

	var run *schemas.AgentRun
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var runErr error
		if planOnly {
			run, runErr = ag.PlanAndRun(gctx, session, instruction)
		} else {
			run, runErr = ag.RunLoop(gctx, session, instruction)
		}
		return runErr
	})
	runErr := g.Wait()

	if run != nil {
		printTimeline(cmd.OutOrStdout(), run.Snapshot())
	}
	return runErr
}

// newAuditLog builds the configured audit sink and its closer.
func newAuditLog(ctx context.Context, logger *zap.Logger, cfg configpkg.AuditConfig) (schemas.AuditLog, func(), error) {
	switch cfg.Backend {
	case "none":
		return auditpkg.NopLog{}, func() {}, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("could not connect the postgres audit sink: %w", err)
		}
		log := auditpkg.NewPostgresLog(logger, pool)
		if err := log.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return log, pool.Close, nil

	default: // "file"
		log, err := auditpkg.NewFileLog(logger, cfg.FilePath)
		if err != nil {
			return nil, nil, err
		}
		return log, func() { _ = log.Close() }, nil
	}
}

// printTimeline renders the run timeline for the terminal.
func printTimeline(w io.Writer, snap schemas.RunSnapshot) {
	fmt.Fprintf(w, "\nRun %s\n", snap.ID)
	for i, step := range snap.Steps {
		fmt.Fprintf(w, "%3d. %s %s", i+1, stepGlyph(step.State), step.Action.String())
		if step.Message != "" {
			fmt.Fprintf(w, " | %s", step.Message)
		}
		fmt.Fprintln(w)
	}
	if snap.FinishedAt != nil {
		fmt.Fprintf(w, "Finished in %s\n", snap.FinishedAt.Sub(snap.StartedAt).Round(time.Millisecond))
	}
}

func stepGlyph(state schemas.StepState) string {
	switch state {
	case schemas.StepSuccess:
		return "ok "
	case schemas.StepFailure:
		return "ERR"
	case schemas.StepRunning:
		return "..."
	default:
		return "  -"
	}
}
