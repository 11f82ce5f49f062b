package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"agent-workspace/llm"
	"agent-workspace/logging"
	"agent-workspace/plan"
	"agent-workspace/store"
	"agent-workspace/workspace"
)

type options struct {
	logLevel    string
	model       string
	promptsPath string
	stepDelay   time.Duration
	jsonOut     bool
	session     string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "agentctl",
		Short: "Drive the agent workspace pipeline from a terminal",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(opts.logLevel, "console", cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.model, "model", "", "Model id (defaults to OPENROUTER_MODEL)")
	root.PersistentFlags().StringVar(&opts.promptsPath, "prompts", "", "YAML file with role prompt overrides")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "Print JSON instead of text")
	root.PersistentFlags().StringVar(&opts.session, "session", "cli", "Session id")

	root.AddCommand(newPlanCmd(opts), newRunCmd(opts))
	return root
}

func newPlanCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <request>",
		Short: "Decompose a request into a draft plan",
		Long: `Decompose a request into a draft plan and print it.

Without OPENROUTER_API_KEY the planner works from simulated completions and
produces the fallback four-step plan.

Examples:
  agentctl plan "Build a login form"
  agentctl plan --json "Add rate limiting to the API"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := newWorkspace(cmd, opts)
			if err != nil {
				return err
			}
			p, msg, err := ws.CreatePlan(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, p)
			}
			fmt.Fprintln(out, msg.Content)
			return nil
		},
	}
}

func newRunCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <request>",
		Short: "Plan, confirm and execute a request",
		Long: `Plan a request, confirm the plan and execute every step, printing each
agent's message as the run completes.

Examples:
  agentctl run "Build a login form"
  agentctl run --step-delay 0 --json "Write a CSV parser"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := newWorkspace(cmd, opts)
			if err != nil {
				return err
			}
			p, _, err := ws.CreatePlan(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if _, err := ws.ConfirmPlan(ctx); err != nil {
				return err
			}
			msgs, err := ws.ExecutePlan(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, map[string]any{
					"plan":     ws.Snapshot().CurrentPlan,
					"messages": msgs,
				})
			}
			fmt.Fprintf(out, "Plan: %s\n\n", p.Title)
			for i, m := range msgs {
				fmt.Fprintf(out, "[%d/%d] %s\n%s\n\n", i+1, len(msgs), m.AgentType, m.Content)
			}
			fmt.Fprintf(out, "Status: %s\n", ws.Snapshot().CurrentPlan.Status)
			return nil
		},
	}
	cmd.Flags().DurationVar(&opts.stepDelay, "step-delay", plan.DefaultStepDelay, "Pause between steps")
	return cmd
}

func newWorkspace(cmd *cobra.Command, opts *options) (*workspace.Workspace, error) {
	templates, err := plan.LoadRoleTemplates(opts.promptsPath)
	if err != nil {
		return nil, err
	}
	cfg := llm.ConfigFromEnv()
	if opts.model != "" {
		cfg.Model = opts.model
	}
	return workspace.New(cmd.Context(), workspace.Config{
		Session:   opts.session,
		Completer: llm.NewClient(cfg),
		Store:     store.NewMemoryStore(),
		StepDelay: opts.stepDelay,
		Templates: templates,
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
