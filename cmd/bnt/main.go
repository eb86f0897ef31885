package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	cl "bananatrade/internal/cli"
	"bananatrade/internal/config"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "bnt",
		Short:        "Bananatrade session CLI",
		SilenceUsage: true,
	}

	root.AddCommand(
		newWhoamiCmd(),
		newCreateCmd(&apiBase),
		newJoinCmd(&apiBase),
		newStartCmd(&apiBase),
		newEndCmd(&apiBase),
		newShowCmd(&apiBase),
		newTradeCmd(&apiBase),
		newTxnsCmd(&apiBase),
		newStatsCmd(&apiBase),
		newBoardCmd(&apiBase),
		newBotCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func cmdContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// sessionArg resolves the session ID from args or the stored profile.
func sessionArg(args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0]), nil
	}
	p, err := cl.LoadProfile()
	if err != nil {
		return "", err
	}
	if p.LastSessionID == "" {
		return "", fmt.Errorf("no session id given and none remembered")
	}
	return p.LastSessionID, nil
}

func rememberSession(sessionID string) {
	p, err := cl.LoadProfile()
	if err != nil {
		return
	}
	p.LastSessionID = sessionID
	_ = cl.SaveProfile(p)
}

func newWhoamiCmd() *cobra.Command {
	var setID, setName string
	var clear bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show or set the local player identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clear {
				if err := cl.ClearProfile(); err != nil {
					return err
				}
				fmt.Println("profile cleared")
				return nil
			}
			if setID != "" {
				p := cl.Profile{PlayerID: setID, DisplayName: setName}
				if err := cl.SaveProfile(p); err != nil {
					return err
				}
				return printJSON(p)
			}
			p, err := cl.LoadProfile()
			if err != nil {
				return err
			}
			return printJSON(p)
		},
	}
	cmd.Flags().StringVar(&setID, "set", "", "player id to store")
	cmd.Flags().StringVar(&setName, "name", "", "display name to store")
	cmd.Flags().BoolVar(&clear, "clear", false, "forget the stored profile")
	return cmd
}

func newCreateCmd(apiBase *string) *cobra.Command {
	var maxPlayers int
	var durationSeconds int64
	var startingUSD float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a trading session",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cl.LoadProfile()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).CreateSession(ctx, p.PlayerID, p.DisplayName, maxPlayers, durationSeconds, startingUSD)
			if err != nil {
				return err
			}
			if id, ok := out["id"].(string); ok {
				rememberSession(id)
			}
			return printJSON(out)
		},
	}
	cmd.Flags().IntVar(&maxPlayers, "max-players", 8, "maximum player count")
	cmd.Flags().Int64Var(&durationSeconds, "duration", 300, "session duration in seconds")
	cmd.Flags().Float64Var(&startingUSD, "stake", 0, "starting USD per player (0 uses the server default)")
	return cmd
}

func newJoinCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "join <session-id>",
		Short: "Join an open session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cl.LoadProfile()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Join(ctx, args[0], p.PlayerID, p.DisplayName)
			if err != nil {
				return err
			}
			rememberSession(args[0])
			return printJSON(out)
		},
	}
}

func newStartCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start [session-id]",
		Short: "Start a session you created",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cl.LoadProfile()
			if err != nil {
				return err
			}
			sessionID, err := sessionArg(args)
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Start(ctx, sessionID, p.PlayerID)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newEndCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "end [session-id]",
		Short: "End a running session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := sessionArg(args)
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).End(ctx, sessionID)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newShowCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show [session-id]",
		Short: "Show a session snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := sessionArg(args)
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).GetSession(ctx, sessionID)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newTradeCmd(apiBase *string) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "trade <buy|sell> <quantity>",
		Short: "Buy or sell coins",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cl.LoadProfile()
			if err != nil {
				return err
			}
			sid := sessionID
			if sid == "" {
				sid, err = sessionArg(nil)
				if err != nil {
					return err
				}
			}
			var qty float64
			if _, err := fmt.Sscanf(args[1], "%f", &qty); err != nil {
				return fmt.Errorf("quantity must be a number: %w", err)
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Trade(ctx, sid, p.PlayerID, args[0], qty)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (defaults to the remembered one)")
	return cmd
}

func newTxnsCmd(apiBase *string) *cobra.Command {
	var actorID string
	var offset, limit int64
	cmd := &cobra.Command{
		Use:   "txns [session-id]",
		Short: "List session transactions, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := sessionArg(args)
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Transactions(ctx, sessionID, actorID, offset, limit)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "filter by actor id")
	cmd.Flags().Int64Var(&offset, "offset", 0, "page offset")
	cmd.Flags().Int64Var(&limit, "limit", 50, "page size")
	return cmd
}

func newStatsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [session-id]",
		Short: "Show transaction statistics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := sessionArg(args)
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).TransactionStats(ctx, sessionID)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newBoardCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "board [session-id]",
		Short: "Show the wealth leaderboard",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := sessionArg(args)
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Leaderboard(ctx, sessionID)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newBotCmd(apiBase *string) *cobra.Command {
	bot := &cobra.Command{
		Use:   "bot",
		Short: "Manage trading bots",
	}

	var kind, name, sessionID string
	buy := &cobra.Command{
		Use:   "buy",
		Short: "Purchase a bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cl.LoadProfile()
			if err != nil {
				return err
			}
			sid := sessionID
			if sid == "" {
				sid, err = sessionArg(nil)
				if err != nil {
					return err
				}
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).PurchaseBot(ctx, sid, p.PlayerID, kind, name)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	buy.Flags().StringVar(&kind, "kind", "random", "strategy kind")
	buy.Flags().StringVar(&name, "name", "", "bot display name")
	buy.Flags().StringVar(&sessionID, "session", "", "session id")

	list := &cobra.Command{
		Use:   "list [session-id]",
		Short: "List your bots",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cl.LoadProfile()
			if err != nil {
				return err
			}
			sid, err := sessionArg(args)
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).ListBots(ctx, sid, p.PlayerID)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	toggle := &cobra.Command{
		Use:   "toggle <bot-id>",
		Short: "Pause or resume a bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cl.LoadProfile()
			if err != nil {
				return err
			}
			sid, err := sessionArg(nil)
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).ToggleBot(ctx, sid, p.PlayerID, args[0])
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	bot.AddCommand(buy, list, toggle)
	return bot
}
