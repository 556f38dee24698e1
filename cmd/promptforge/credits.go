package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Jinrix-labs/prompt-forge-sub000/internal/store"
	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

func newCreditsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and top up per-user run credits",
		Long: `Runs beyond the monthly allowance are paid from a user's credit balance.
Billing lives outside promptforge; use these commands to apply purchases
and to inspect a user's counters.`,
	}

	var user string
	var amount int
	add := &cobra.Command{
		Use:   "add --user <id> --amount <n>",
		Short: "Add credits to a user's balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return addCredits(commandContext(cmd), cfg, user, amount, cmd.OutOrStdout())
		},
	}
	add.Flags().StringVar(&user, "user", "", "user identity")
	add.Flags().IntVar(&amount, "amount", 0, "number of credits to add")
	_ = add.MarkFlagRequired("user")
	_ = add.MarkFlagRequired("amount")

	var showUser string
	show := &cobra.Command{
		Use:   "show --user <id>",
		Short: "Print a user's usage counters for the current month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return showUsage(commandContext(cmd), cfg, showUser, cmd.OutOrStdout())
		},
	}
	show.Flags().StringVar(&showUser, "user", "", "user identity")
	_ = show.MarkFlagRequired("user")

	cmd.AddCommand(add, show)
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func addCredits(ctx context.Context, cfg *Config, userID string, amount int, out io.Writer) error {
	if userID == "" {
		return schema.NewError(schema.ErrCodeValidation, "user is required")
	}
	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.AddCredits(ctx, userID, amount); err != nil {
		return err
	}
	return printUsage(ctx, s, userID, out)
}

func showUsage(ctx context.Context, cfg *Config, userID string, out io.Writer) error {
	if userID == "" {
		return schema.NewError(schema.ErrCodeValidation, "user is required")
	}
	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return printUsage(ctx, s, userID, out)
}

func printUsage(ctx context.Context, s store.Store, userID string, out io.Writer) error {
	u, err := s.GetUsage(ctx, userID, store.Period(time.Now().UTC()))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(u); err != nil {
		return fmt.Errorf("write usage: %w", err)
	}
	return nil
}
