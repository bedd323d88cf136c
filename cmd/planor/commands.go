// Copyright 2025 The Planor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/planor-ai/planor/pkg/agent"
	"github.com/planor-ai/planor/pkg/checkpoint"
	"github.com/planor-ai/planor/pkg/config"
	"github.com/planor-ai/planor/pkg/executor"
	"github.com/planor-ai/planor/pkg/llms"
	"github.com/planor-ai/planor/pkg/logger"
	"github.com/planor-ai/planor/pkg/observability"
	"github.com/planor-ai/planor/pkg/plan"
	"github.com/planor-ai/planor/pkg/planner"
	"github.com/planor-ai/planor/pkg/session"
	"github.com/planor-ai/planor/pkg/tokens"
)

// PlanCmd generates a plan and prints it without executing anything.
type PlanCmd struct {
	Goal string `arg:"" help:"Natural-language goal to plan for."`
}

func (c *PlanCmd) Run(cli *CLI) error {
	rt, err := buildRuntime(cli)
	if err != nil {
		return err
	}
	defer rt.close()

	gen := planner.New(rt.completions, rt.rules)
	p, err := gen.Generate(context.Background(), c.Goal)
	if err != nil {
		return err
	}
	rt.metrics.PlanGenerated()

	printPlan(p)
	return nil
}

// RunCmd generates a plan, confirms it and executes every step.
type RunCmd struct {
	Goal        string `arg:"" help:"Natural-language goal to plan and execute."`
	Session     string `help:"Session ID to execute under (generated when empty)."`
	NoAutoStart bool   `name:"no-auto-start" help:"Queue the first task as pending instead of starting it."`
	MetricsPort int    `name:"metrics-port" help:"Serve Prometheus metrics on this port (0 = disabled)."`
}

func (c *RunCmd) Run(cli *CLI) error {
	rt, err := buildRuntime(cli)
	if err != nil {
		return err
	}
	defer rt.close()

	if c.MetricsPort > 0 {
		go serveMetrics(rt.metrics, c.MetricsPort)
	}

	ctx, cancel := signalContext()
	defer cancel()

	ctrl, err := rt.newController()
	if err != nil {
		return err
	}
	sess, err := ctrl.Initialize(ctx, c.Session)
	if err != nil {
		return err
	}
	fmt.Printf("Session: %s\n", sess.ID)

	gen := planner.New(rt.completions, rt.rules)
	p, err := gen.Generate(ctx, c.Goal)
	if err != nil {
		return err
	}
	rt.metrics.PlanGenerated()
	printPlan(p)

	if err := ctrl.SubmitPlan(p); err != nil {
		return err
	}
	if _, err := ctrl.ConfirmPlan(&agent.ConfirmOptions{AutoStart: !c.NoAutoStart}); err != nil {
		return err
	}

	if err := ctrl.ExecutePlan(ctx); err != nil {
		return err
	}
	printOutcome(p)
	return nil
}

// ResumeCmd loads the latest checkpoint of a session and continues the plan.
type ResumeCmd struct {
	Session string `arg:"" help:"Session ID to resume."`
}

func (c *ResumeCmd) Run(cli *CLI) error {
	rt, err := buildRuntime(cli)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := signalContext()
	defer cancel()

	cps, err := rt.store.List(ctx, c.Session)
	if err != nil {
		return err
	}
	if len(cps) == 0 {
		return fmt.Errorf("no checkpoints for session %s", c.Session)
	}
	cp := cps[len(cps)-1]
	if cp.StepIndex == checkpoint.CompleteStepIndex {
		fmt.Println("Plan already complete, nothing to resume.")
		return nil
	}

	ctrl, err := rt.newController()
	if err != nil {
		return err
	}
	if _, err := ctrl.Initialize(ctx, c.Session); err != nil {
		return err
	}

	restored := cp.Snapshot.Clone()
	fmt.Printf("Resuming %q at step %d/%d\n", restored.Name, cp.StepIndex+1, len(restored.Todos))

	if err := ctrl.ResumePlan(ctx, restored, cp.StepIndex); err != nil {
		return err
	}
	printOutcome(restored)
	return nil
}

// runtime holds the wired collaborators shared by the commands.
type runtime struct {
	cfg         *config.Config
	completions llms.CompletionService
	store       checkpoint.Store
	rules       func() string
	metrics     *observability.Metrics
	counter     *tokens.Counter
	watcherStop context.CancelFunc
}

func buildRuntime(cli *CLI) (*runtime, error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, err
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Log.Format = cli.LogFormat
	}
	logger.Init(logger.ParseLevel(cfg.Log.Level), os.Stderr, cfg.Log.Format)

	completions, err := llms.NewFromConfig(&cfg.LLM)
	if err != nil {
		return nil, err
	}

	var store checkpoint.Store
	switch cfg.Checkpoints.Store {
	case "sqlite":
		store, err = checkpoint.NewSQLiteStore(cfg.Checkpoints.Path)
		if err != nil {
			return nil, err
		}
	default:
		store = checkpoint.NewMemoryStore()
	}

	rt := &runtime{
		cfg:         cfg,
		completions: completions,
		store:       store,
		metrics:     observability.NewMetrics(),
	}

	// A rules file gets live reload; inline rules stay static.
	if cfg.Rules.File != "" {
		watchCtx, stop := context.WithCancel(context.Background())
		watcher, err := config.NewRulesWatcher(watchCtx, cfg.Rules.File)
		if err != nil {
			stop()
			slog.Warn("Rules file watch failed, using static rules", "error", err)
			rt.rules = cfg.RulesText
		} else {
			rt.watcherStop = stop
			rt.rules = watcher.Text
		}
	} else {
		rt.rules = cfg.RulesText
	}

	if counter, err := tokens.NewCounter(cfg.LLM.Model); err == nil {
		rt.counter = counter
	}
	return rt, nil
}

// newController wires a per-session controller with the runtime's
// collaborators and a completion-backed summarizer.
func (rt *runtime) newController() (*agent.Controller, error) {
	cfg := agent.Config{
		AppName:     rt.cfg.Session.AppName,
		UserID:      rt.cfg.Session.UserID,
		Completions: rt.completions,
		Checkpoints: rt.store,
		Sessions:    session.NewInMemoryService(),
		Rules:       rt.rules,
		Stats:       rt.metrics,
		Metrics:     rt.metrics,
		Summarizer:  rt.summarize,
	}
	if rt.counter != nil {
		cfg.Counter = rt.counter
	}
	return agent.New(cfg)
}

// summarize compresses an oversized step result with one completion call.
func (rt *runtime) summarize(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize the following step result in under %d characters, keeping concrete outcomes:\n\n%s",
		executor.MaxSummaryLen, text)
	return rt.completions.Ask(ctx, prompt)
}

func (rt *runtime) close() {
	if rt.watcherStop != nil {
		rt.watcherStop()
	}
	if err := rt.store.Close(); err != nil {
		slog.Warn("Failed to close checkpoint store", "error", err)
	}
	if err := rt.completions.Close(); err != nil {
		slog.Warn("Failed to close completion service", "error", err)
	}
}

// signalContext cancels on SIGINT/SIGTERM for a cooperative soft stop at
// the next step boundary.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Stopping after the current step...")
		cancel()
	}()
	return ctx, cancel
}

func serveMetrics(m *observability.Metrics, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	addr := fmt.Sprintf(":%d", port)
	slog.Info("Serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Warn("Metrics server stopped", "error", err)
	}
}

func printPlan(p *plan.Plan) {
	fmt.Printf("\nPlan: %s\n%s\n\n", p.Name, p.Description)
	for i, step := range p.Todos {
		fmt.Printf("  %d. [%s] %s (~%dmin)\n", i+1, step.Priority, step.Title, step.EstimatedTime)
	}
	fmt.Println()
}

func printOutcome(p *plan.Plan) {
	switch p.Status {
	case plan.StatusDone:
		fmt.Println("Plan complete.")
	case plan.StatusReady:
		fmt.Println("Stopped; resume later with `planor resume`.")
	default:
		fmt.Printf("Plan status: %s\n", p.Status)
	}
	for i, step := range p.Todos {
		fmt.Printf("  %d. [%s] %s\n", i+1, step.Status, step.Title)
		if step.ResultSummary != "" {
			fmt.Printf("     %s\n", step.ResultSummary)
		}
	}
}
