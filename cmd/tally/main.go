package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	cl "tally/internal/cli"
	"tally/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()

	root := &cobra.Command{
		Use:          "tally",
		Short:        "Operator CLI for the tally ledger service",
		SilenceUsage: true,
	}

	root.AddCommand(
		newBalanceCmd(cfg),
		newAdjustCmd(cfg),
		newLeaderboardCmd(cfg),
		newGamesCmd(cfg),
		newGamesTopCmd(cfg),
		newExcessCmd(cfg),
		newSplitCmd(cfg),
		newHistoryCmd(cfg),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(cfg config.CLIConfig) *cl.Client {
	return cl.NewClient(cfg.APIBaseURL, cfg.APIToken)
}

func cmdContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func parseUserArg(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", arg)
	}
	return id, nil
}

func parseUserArgs(args []string) ([]int64, error) {
	out := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := parseUserArg(a)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func newBalanceCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <user>",
		Short: "Show a user's current balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserArg(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			row, err := newClient(cfg).Balance(ctx, userID)
			if err != nil {
				return err
			}
			printBalance(row.UserID, row.Balance)
			return nil
		},
	}
}

func newAdjustCmd(cfg config.CLIConfig) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "adjust <user> <delta>",
		Short: "Apply a balance delta with an audit-log entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserArg(args[0])
			if err != nil {
				return err
			}
			delta, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid delta %q", args[1])
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			client := newClient(cfg)
			if err := client.EnsureUser(ctx, userID); err != nil {
				return err
			}
			row, err := client.Adjust(ctx, userID, delta, reason, uuid.NewString())
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("adjusted user %d by %+.2f", userID, delta))
			printBalance(row.UserID, row.Balance)
			return nil
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "audit-log reason for the change")
	return cmd
}

func newLeaderboardCmd(cfg config.CLIConfig) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Top users by balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			rows, err := newClient(cfg).Leaderboard(ctx, limit)
			if err != nil {
				return err
			}
			printBalanceLeaderboard(rows)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of rows")
	return cmd
}

func newGamesCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "games <user>",
		Short: "Distinct game sessions recorded for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserArg(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			row, err := newClient(cfg).GameCount(ctx, userID)
			if err != nil {
				return err
			}
			printNeutral(fmt.Sprintf("user %d: %d game session(s)", row.UserID, row.Games))
			return nil
		},
	}
}

func newGamesTopCmd(cfg config.CLIConfig) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "games-top",
		Short: "Top users by distinct game sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			rows, err := newClient(cfg).GamesLeaderboard(ctx, limit)
			if err != nil {
				return err
			}
			printGamesLeaderboard(rows)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of rows")
	return cmd
}

func newExcessCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "excess",
		Short: "Show the global balance discrepancy",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			total, err := newClient(cfg).Excess(ctx)
			if err != nil {
				return err
			}
			printExcess(total)
			return nil
		},
	}
}

func newSplitCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "split [user...]",
		Short: "Split the excess across users (all users when none given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := parseUserArgs(args)
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			result, err := newClient(cfg).SplitExcess(ctx, targets)
			if err != nil {
				return err
			}
			if result.NothingToRedistribute {
				printWarn("nothing to redistribute, balances already sum to zero")
				return nil
			}
			printSuccess(fmt.Sprintf("split %s across %d user(s), %s each",
				money(result.Total), len(result.Adjusted), money(result.Share)))
			return nil
		},
	}
}

func newHistoryCmd(cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "history <user...>",
		Short: "Balance-over-time series for one or more users",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userIDs, err := parseUserArgs(args)
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			users, err := newClient(cfg).History(ctx, userIDs)
			if err != nil {
				return err
			}
			printHistory(users)
			return nil
		},
	}
}
