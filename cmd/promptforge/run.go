package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Jinrix-labs/prompt-forge-sub000/internal/engine"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/workflows"
	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

// errRunFailed signals a completed run whose result was already printed.
var errRunFailed = errors.New("workflow run failed")

type runOptions struct {
	file   string
	inputs []string
	user   string
	keep   bool
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	ro := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run --file <workflow.yaml|json>",
		Short: "Run a workflow file once and print the result as JSON",
		Example: `  # Run a YAML definition with two inputs
  promptforge run --file summarize.yaml --input topic=tides --input audience=kids

  # Keep the workflow and its execution record in the store
  promptforge run --file summarize.yaml --input topic=tides --keep`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runFile(ctx, cfg, ro, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&ro.file, "file", "f", "", "workflow definition file (YAML or JSON)")
	cmd.Flags().StringArrayVarP(&ro.inputs, "input", "i", nil, "workflow input as key=value (repeatable)")
	cmd.Flags().StringVar(&ro.user, "user", "cli", "user identity the run is recorded under")
	cmd.Flags().BoolVar(&ro.keep, "keep", false, "keep the workflow and execution record after the run")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runFile(ctx context.Context, cfg *Config, ro *runOptions, out io.Writer) error {
	data, err := os.ReadFile(ro.file)
	if err != nil {
		return fmt.Errorf("read workflow file: %w", err)
	}
	doc, err := schema.ParseDocument(data)
	if err != nil {
		return err
	}
	inputs, err := parseInputs(ro.inputs)
	if err != nil {
		return err
	}

	logger := textLogger(cfg)
	a, err := newApp(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.Close()

	name := doc.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(ro.file), filepath.Ext(ro.file))
	}
	wf, err := a.svc.Create(ctx, ro.user, workflows.NewWorkflow{
		Name:               name,
		Description:        doc.Description,
		WorkflowDefinition: doc.WorkflowDefinition,
	})
	if err != nil {
		return err
	}
	if !ro.keep {
		defer func() {
			if err := a.svc.Delete(context.WithoutCancel(ctx), ro.user, wf.ID); err != nil {
				logger.Warn("remove temporary workflow", slog.String("workflow_id", wf.ID), slog.String("error", err.Error()))
			}
		}()
	}

	res, err := a.svc.Execute(ctx, ro.user, wf.ID, inputs)
	if err != nil {
		return err
	}
	if err := printResult(out, res); err != nil {
		return err
	}
	if !res.Success {
		return errRunFailed
	}
	return nil
}

// parseInputs turns key=value pairs into an input map. Later pairs win.
func parseInputs(pairs []string) (map[string]any, error) {
	inputs := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid input %q: expected key=value", p)
		}
		inputs[key] = value
	}
	return inputs, nil
}

func printResult(w io.Writer, res *engine.ExecutionResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
