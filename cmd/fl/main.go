package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	cl "firmledger/internal/cli"
	"firmledger/internal/config"
	"firmledger/internal/game"
	"firmledger/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL
	adminToken := cfg.AdminToken

	root := &cobra.Command{
		Use:          "fl",
		Short:        "Firm ledger game client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")
	root.PersistentFlags().StringVar(&adminToken, "admin-token", adminToken, "admin bearer token")

	newClient := func() *cl.Client {
		return cl.NewClient(strings.TrimSpace(apiBase), adminToken)
	}

	root.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newMonthCmd(newClient),
		newCyclesCmd(newClient),
		newPlayersCmd(newClient),
		newLeaderboardCmd(newClient),
		newBalanceCmd(newClient),
		newHistoryCmd(newClient),
		newFirmTypesCmd(newClient),
		newFirmsCmd(newClient),
		newFirmCmd(newClient),
		newTransferCmd(newClient),
		newSyncCmd(newClient),
		newAdminCmd(newClient),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type clientFactory func() *cl.Client

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <player-id>",
		Short: "Save a player's password for signing requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := parseID(args[0], "player id")
			if err != nil {
				return err
			}
			password, err := promptPassword(fmt.Sprintf("Password for player %d", playerID))
			if err != nil {
				return err
			}
			keyring, err := cl.LoadKeyring()
			if err != nil {
				return err
			}
			keyring.Set(playerID, password)
			if err := keyring.Save(); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Saved password for player %d.", playerID))
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout <player-id>",
		Short: "Forget a saved player password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := parseID(args[0], "player id")
			if err != nil {
				return err
			}
			keyring, err := cl.LoadKeyring()
			if err != nil {
				return err
			}
			if !keyring.Remove(playerID) {
				printWarn(fmt.Sprintf("No saved password for player %d.", playerID))
				return nil
			}
			if err := keyring.Save(); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Forgot player %d.", playerID))
			return nil
		},
	}
}

func newMonthCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "month",
		Short: "Show the current game month",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient().Month(ctx)
			if err != nil {
				return err
			}
			month, err := decodeInto[monthPayload](out)
			if err != nil {
				return err
			}
			accent.Printf("Month %d\n", month.Month)
			return nil
		},
	}
}

func newCyclesCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "cycles <month>",
		Short: "Show the production cycles and failed firms of a month",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			month, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil || month < 0 {
				return fmt.Errorf("invalid month %q", args[0])
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient().MonthCycles(ctx, month)
			if err != nil {
				return err
			}
			cycles, err := decodeInto[game.MonthCycles](out)
			if err != nil {
				return err
			}
			renderMonthCycles(cycles)
			return nil
		},
	}
}

func newPlayersCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "players",
		Short: "List players with their balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient().ListPlayers(ctx)
			if err != nil {
				return err
			}
			payload, err := decodeInto[playersPayload](out)
			if err != nil {
				return err
			}
			renderPlayers("PLAYERS", payload.Players)
			return nil
		},
	}
}

func newLeaderboardCmd(newClient clientFactory) *cobra.Command {
	var by string
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank players by one asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			asset, err := game.ParseAsset(by)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient().ListPlayers(ctx)
			if err != nil {
				return err
			}
			payload, err := decodeInto[playersPayload](out)
			if err != nil {
				return err
			}
			sort.SliceStable(payload.Players, func(i, j int) bool {
				return payload.Players[i].Balance.Get(asset) > payload.Players[j].Balance.Get(asset)
			})
			renderPlayers("LEADERBOARD BY "+asset.Title(), payload.Players)
			return nil
		},
	}
	cmd.Flags().StringVar(&by, "by", game.Coin.String(), "asset to rank by (coin/food/lumber/iron)")
	return cmd
}

func newBalanceCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <player-id>",
		Short: "Show a player's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := parseID(args[0], "player id")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient().PlayerBalance(ctx, playerID)
			if err != nil {
				return err
			}
			payload, err := decodeInto[balancePayload](out)
			if err != nil {
				return err
			}
			accent.Printf("\n== PLAYER %d ==\n", payload.PlayerID)
			renderAmounts(payload.Balance)
			fmt.Println()
			return nil
		},
	}
}

func newHistoryCmd(newClient clientFactory) *cobra.Command {
	var month int64
	cmd := &cobra.Command{
		Use:   "history <player-id>",
		Short: "Show the exchanges a player took part in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := parseID(args[0], "player id")
			if err != nil {
				return err
			}
			var filter *int64
			if cmd.Flags().Changed("month") {
				filter = &month
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient().PlayerExchanges(ctx, playerID, filter)
			if err != nil {
				return err
			}
			payload, err := decodeInto[exchangesPayload](out)
			if err != nil {
				return err
			}
			renderExchanges(playerID, payload.Exchanges)
			return nil
		},
	}
	cmd.Flags().Int64Var(&month, "month", 0, "only show exchanges of this month")
	return cmd
}

func newFirmTypesCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "firm-types",
		Short: "List firm types",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient().ListFirmTypes(ctx)
			if err != nil {
				return err
			}
			payload, err := decodeInto[firmTypesPayload](out)
			if err != nil {
				return err
			}
			renderFirmTypes(payload.FirmTypes)
			return nil
		},
	}
}

func newFirmsCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "firms",
		Short: "List firms with their upgrade chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient().ListFirms(ctx)
			if err != nil {
				return err
			}
			payload, err := decodeInto[firmsPayload](out)
			if err != nil {
				return err
			}
			renderFirms(payload.Firms)
			return nil
		},
	}
}

func newFirmCmd(newClient clientFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "firm",
		Short: "Build and upgrade firms",
	}
	cmd.AddCommand(newFirmCreateCmd(newClient), newFirmUpgradeCmd(newClient))
	return cmd
}

func newFirmCreateCmd(newClient clientFactory) *cobra.Command {
	var typeID int64
	var owners []int64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Build a level 0 firm",
		RunE: func(cmd *cobra.Command, args []string) error {
			if typeID <= 0 {
				v, err := promptInt64("Firm type ID", 1)
				if err != nil {
					return err
				}
				typeID = v
			}
			if len(owners) == 0 {
				return errors.New("at least one --owner is required")
			}
			ownerships := make([]cl.Ownership, 0, len(owners))
			for _, playerID := range owners {
				accent.Printf("Owner %d\n", playerID)
				perc, err := promptFloat("  Ownership %", 0)
				if err != nil {
					return err
				}
				o, err := promptOwnershipCosts(playerID)
				if err != nil {
					return err
				}
				o.OwnershipPerc = &perc
				ownerships = append(ownerships, o)
			}
			auths, err := credentialsFor(owners)
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient().CreateFirm(ctx, auths, typeID, ownerships, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method: http.MethodPost,
					Path:   "/v1/firms",
					Body: map[string]any{
						"auth": auths,
						"data": map[string]any{"type_id": typeID, "ownerships": ownerships},
					},
					IdempotencyKey: idem,
				})
			}
			return renderFirmResult(out, "Firm built")
		},
	}
	cmd.Flags().Int64Var(&typeID, "type", 0, "firm type id")
	cmd.Flags().Int64SliceVar(&owners, "owner", nil, "owning player id (repeatable)")
	return cmd
}

func newFirmUpgradeCmd(newClient clientFactory) *cobra.Command {
	var owners []int64
	cmd := &cobra.Command{
		Use:   "upgrade <firm-id>",
		Short: "Upgrade a firm to the next level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			firmID, err := parseID(args[0], "firm id")
			if err != nil {
				return err
			}
			if len(owners) == 0 {
				return errors.New("every current owner must be passed with --owner")
			}
			ownerships := make([]cl.Ownership, 0, len(owners))
			for _, playerID := range owners {
				accent.Printf("Owner %d\n", playerID)
				o, err := promptOwnershipCosts(playerID)
				if err != nil {
					return err
				}
				ownerships = append(ownerships, o)
			}
			auths, err := credentialsFor(owners)
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient().UpgradeFirm(ctx, auths, firmID, ownerships, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method: http.MethodPost,
					Path:   "/v1/firms/upgrade",
					Body: map[string]any{
						"auth": auths,
						"data": map[string]any{"firm_id": firmID, "ownerships": ownerships},
					},
					IdempotencyKey: idem,
				})
			}
			return renderFirmResult(out, "Firm upgraded")
		},
	}
	cmd.Flags().Int64SliceVar(&owners, "owner", nil, "owning player id (repeatable)")
	return cmd
}

func newTransferCmd(newClient clientFactory) *cobra.Command {
	var from, to int64
	var units cl.Units
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Move assets between two players",
		RunE: func(cmd *cobra.Command, args []string) error {
			if from <= 0 || to <= 0 {
				return errors.New("--from and --to are required")
			}
			auths, err := credentialsFor([]int64{from, to})
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient().Transfer(ctx, auths, from, to, units, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method: http.MethodPost,
					Path:   "/v1/exchanges/transfer",
					Body: map[string]any{
						"auth": auths,
						"data": map[string]any{"sender_id": from, "receiver_id": to, "received": units},
					},
					IdempotencyKey: idem,
				})
			}
			payload, err := decodeInto[exchangePayload](out)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Transfer #%d recorded in month %d.", payload.Exchange.ID, payload.Exchange.Month))
			renderAmounts(payload.Exchange.Received)
			return nil
		},
	}
	cmd.Flags().Int64Var(&from, "from", 0, "sending player id")
	cmd.Flags().Int64Var(&to, "to", 0, "receiving player id")
	cmd.Flags().Int64Var(&units.Coin, "coin", 0, "coin to send")
	cmd.Flags().Int64Var(&units.Food, "food", 0, "food to send")
	cmd.Flags().Int64Var(&units.Lumber, "lumber", 0, "lumber to send")
	cmd.Flags().Int64Var(&units.Iron, "iron", 0, "iron to send")
	return cmd
}

func newSyncCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay requests queued while the API was unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := syncq.Default()
			if err != nil {
				return err
			}
			pending, err := queue.Load()
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client := newClient()
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			remaining := make([]syncq.Command, 0, len(pending))
			replayed, dropped := 0, 0
			for _, q := range pending {
				_, err := client.Do(ctx, q.Method, q.Path, q.Body, q.IdempotencyKey)
				var apiErr *cl.APIError
				switch {
				case err == nil:
					replayed++
				case errors.As(err, &apiErr) && apiErr.Message == game.ErrDuplicateIdempotency.Error():
					printInfo(fmt.Sprintf("Already applied: %s %s", q.Method, q.Path))
					replayed++
				case errors.As(err, &apiErr):
					printError(fmt.Sprintf("Rejected %s %s: %s", q.Method, q.Path, apiErr.Message))
					dropped++
				default:
					printError(fmt.Sprintf("Sync failed for %s %s: %v", q.Method, q.Path, err))
					remaining = append(remaining, q)
				}
			}
			if err := queue.Save(remaining); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d rejected=%d remaining=%d", replayed, dropped, len(remaining)))
			return nil
		},
	}
}

func newAdminCmd(newClient clientFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Game administration",
	}
	cmd.AddCommand(
		newAdminInitCmd(newClient),
		newAdminInitialExchangeCmd(newClient),
		newAdminNextMonthCmd(newClient),
		newAdminAddPlayerCmd(newClient),
		newAdminConfigCmd(newClient),
	)
	return cmd
}

func newAdminInitCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Seed firm types and env config from the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient().AdminInit(ctx)
			if err != nil {
				return err
			}
			report, err := decodeInto[game.InitReport](out)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Init complete: firm types=%d config keys=%d", report.FirmTypesCreated, report.ConfigKeysSet))
			return nil
		},
	}
}

func newAdminInitialExchangeCmd(newClient clientFactory) *cobra.Command {
	var units cl.Units
	cmd := &cobra.Command{
		Use:   "initial-exchange",
		Short: "Credit the starting balance to players that have none",
		RunE: func(cmd *cobra.Command, args []string) error {
			var balance *cl.Units
			if cmd.Flags().Changed("coin") || cmd.Flags().Changed("food") || cmd.Flags().Changed("lumber") || cmd.Flags().Changed("iron") {
				balance = &units
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient().AdminInitialExchange(ctx, balance)
			if err != nil {
				return err
			}
			payload, err := decodeInto[initialExchangePayload](out)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Credited %d players.", payload.PlayersCredited))
			renderAmounts(payload.Balance)
			return nil
		},
	}
	cmd.Flags().Int64Var(&units.Coin, "coin", 0, "starting coin (default from catalog)")
	cmd.Flags().Int64Var(&units.Food, "food", 0, "starting food")
	cmd.Flags().Int64Var(&units.Lumber, "lumber", 0, "starting lumber")
	cmd.Flags().Int64Var(&units.Iron, "iron", 0, "starting iron")
	return cmd
}

func newAdminNextMonthCmd(newClient clientFactory) *cobra.Command {
	var expect int64
	cmd := &cobra.Command{
		Use:   "next-month",
		Short: "Settle the month and advance the clock",
		RunE: func(cmd *cobra.Command, args []string) error {
			var expected *int64
			if cmd.Flags().Changed("expect") {
				expected = &expect
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			out, err := newClient().AdminNextMonth(ctx, expected)
			if err != nil {
				return err
			}
			report, err := decodeInto[game.MonthReport](out)
			if err != nil {
				return err
			}
			renderMonthReport(report)
			return nil
		},
	}
	cmd.Flags().Int64Var(&expect, "expect", 0, "refuse to run unless the current month is this value")
	return cmd
}

func newAdminAddPlayerCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "add-player [name]",
		Short: "Register a player",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) > 0 {
				name = strings.TrimSpace(args[0])
			} else {
				v, err := promptRequired("Name")
				if err != nil {
					return err
				}
				name = v
			}
			password, err := promptPassword("Password (6 characters)")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient().AdminCreatePlayer(ctx, name, password)
			if err != nil {
				return err
			}
			payload, err := decodeInto[playerPayload](out)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Player #%d %s created.", payload.Player.ID, payload.Player.Name))
			return nil
		},
	}
}

func newAdminConfigCmd(newClient clientFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the latest env config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient().AdminEnvConfig(ctx)
			if err != nil {
				return err
			}
			payload, err := decodeInto[envConfigPayload](out)
			if err != nil {
				return err
			}
			renderEnvConfig(payload.EnvConfig)
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Append a new value for an env config key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient().AdminSetEnvConfig(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			payload, err := decodeInto[envConfigSetPayload](out)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("%s = %s", payload.EnvConfig.Key, payload.EnvConfig.Value))
			return nil
		},
	})
	return cmd
}

func promptOwnershipCosts(playerID int64) (cl.Ownership, error) {
	o := cl.Ownership{PlayerID: playerID}
	for _, asset := range game.Assets {
		v, err := promptInt64(fmt.Sprintf("  Monthly %s cost", asset), 0)
		if err != nil {
			return o, err
		}
		setUnits(&o.MonthlyCost, asset, v)
	}
	for _, asset := range game.Assets {
		v, err := promptInt64(fmt.Sprintf("  %s paid now", asset.Title()), 0)
		if err != nil {
			return o, err
		}
		setUnits(&o.Payed, asset, v)
	}
	return o, nil
}

func setUnits(u *cl.Units, asset game.Asset, v int64) {
	switch asset {
	case game.Coin:
		u.Coin = v
	case game.Food:
		u.Food = v
	case game.Lumber:
		u.Lumber = v
	case game.Iron:
		u.Iron = v
	}
}

// credentialsFor returns one credential per affected id, repeats included,
// since the server compares the two lists as multisets.
func credentialsFor(ids []int64) ([]cl.Credential, error) {
	keyring, err := cl.LoadKeyring()
	if err != nil {
		return nil, err
	}
	return keyring.Credentials(ids...)
}

// queueOnNetworkError stores the request for `fl sync` when the API could
// not be reached. Errors the API answered are returned as-is.
func queueOnNetworkError(err error, command syncq.Command) error {
	if err == nil {
		return nil
	}
	var apiErr *cl.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	queue, qerr := syncq.Default()
	if qerr != nil {
		return fmt.Errorf("request failed: %w (queue unavailable: %v)", err, qerr)
	}
	if qerr := queue.Push(command); qerr != nil {
		return fmt.Errorf("request failed: %w (queue write failed: %v)", err, qerr)
	}
	printWarn(fmt.Sprintf("API unreachable (%v). Queued; run `fl sync` later.", err))
	return nil
}

func parseID(raw, label string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s %q", label, raw)
	}
	return v, nil
}
