package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yanqian/formfiller/internal/domain/autofill"
	"github.com/yanqian/formfiller/internal/domain/form"
	"github.com/yanqian/formfiller/internal/infra/config"
	"github.com/yanqian/formfiller/pkg/logger"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "formfiller",
		Short:         "Fill public Google Forms with answers from Groq or Gemini",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newServeCmd(),
		newParseCmd(),
		newFillCmd(),
		newHistoryCmd(),
		newModelsCmd(),
		newSchemaCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			app, cleanup, err := initializeApp(cfg, logger.New())
			if err != nil {
				return fmt.Errorf("wire application: %w", err)
			}
			defer cleanup()
			return app.Run(ctx)
		},
	}
}

func newParseCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "parse URL",
		Short: "Parse a form and print its questions as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc autofill.Service) error {
				parsed, err := svc.Parse(ctx, args[0])
				if err != nil {
					return err
				}
				if out == "" {
					return writeJSON(cmd.OutOrStdout(), parsed)
				}
				data, err := json.MarshalIndent(parsed, "", "  ")
				if err != nil {
					return err
				}
				if err := renameio.WriteFile(out, append(data, '\n'), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", out, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %d questions to %s\n", parsed.QuestionsCount, out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the parsed form to this file instead of stdout")
	return cmd
}

func newFillCmd() *cobra.Command {
	var (
		provider string
		model    string
		submit   bool
	)
	cmd := &cobra.Command{
		Use:   "fill URL",
		Short: "Answer every question of a form and optionally submit it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc autofill.Service) error {
				req := autofill.Request{URL: args[0], Provider: provider, Model: model}
				if cmd.Flags().Changed("submit") {
					req.Submit = &submit
				}
				report, err := svc.Fill(ctx, req)
				if report.Run.ID != uuid.Nil {
					if writeErr := writeJSON(cmd.OutOrStdout(), report); writeErr != nil && err == nil {
						err = writeErr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&provider, "provider", "p", "", "llm provider (groq or gemini); defaults to LLM_PROVIDER")
	cmd.Flags().StringVarP(&model, "model", "m", "", "model id; defaults to the provider's configured model")
	cmd.Flags().BoolVar(&submit, "submit", false, "submit the filled form")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var clearAll bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show or clear the retained question/answer history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, func(ctx context.Context, svc autofill.Service) error {
				if clearAll {
					if err := svc.ClearHistory(ctx); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
					return nil
				}
				return writeJSON(cmd.OutOrStdout(), svc.History(ctx))
			})
		},
	}
	cmd.Flags().BoolVar(&clearAll, "clear", false, "drop every retained pair")
	return cmd
}

func newModelsCmd() *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models a provider serves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, func(ctx context.Context, svc autofill.Service) error {
				models, err := svc.Models(ctx, provider)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), models)
			})
		},
	}
	cmd.Flags().StringVarP(&provider, "provider", "p", "", "llm provider (groq or gemini); defaults to LLM_PROVIDER")
	return cmd
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of a parsed form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeJSON(cmd.OutOrStdout(), form.Schema())
		},
	}
}

// withService loads configuration, builds the service with logs on stderr and
// runs fn until it returns or the process is interrupted.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc autofill.Service) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	svc, cleanup, err := initializeService(cfg, logger.NewWithWriter(cmd.ErrOrStderr(), os.Getenv("LOG_LEVEL")))
	if err != nil {
		return fmt.Errorf("wire service: %w", err)
	}
	defer cleanup()
	return fn(ctx, svc)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
