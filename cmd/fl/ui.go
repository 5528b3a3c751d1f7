package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"firmledger/internal/game"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

type monthPayload struct {
	Month int64 `json:"month"`
}

type playersPayload struct {
	Players []game.PlayerBalance `json:"players"`
}

type playerPayload struct {
	Player game.Player `json:"player"`
}

type balancePayload struct {
	PlayerID int64        `json:"player_id"`
	Balance  game.Amounts `json:"balance_micros"`
}

type exchangesPayload struct {
	Exchanges []game.Exchange `json:"exchanges"`
}

type exchangePayload struct {
	Exchange game.Exchange `json:"exchange"`
}

type firmTypesPayload struct {
	FirmTypes []game.FirmType `json:"firm_types"`
}

type firmsPayload struct {
	Firms []game.FirmChain `json:"firms"`
}

type firmPayload struct {
	Firm game.Firm `json:"firm"`
}

type initialExchangePayload struct {
	PlayersCredited int          `json:"players_credited"`
	Balance         game.Amounts `json:"balance_micros"`
}

type envConfigPayload struct {
	EnvConfig map[string]string `json:"env_config"`
}

type envConfigSetPayload struct {
	EnvConfig game.EnvConfig `json:"env_config"`
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

// promptPassword reads without echo when stdin is a terminal and falls back
// to a plain line read for piped input.
func promptPassword(label string) (string, error) {
	for {
		var text string
		fd := int(os.Stdin.Fd())
		if term.IsTerminal(fd) {
			fmt.Printf("%s: ", label)
			raw, err := term.ReadPassword(fd)
			fmt.Println()
			if err != nil {
				return "", err
			}
			text = string(raw)
		} else {
			v, err := promptRequired(label)
			if err != nil {
				return "", err
			}
			text = v
		}
		text = strings.TrimSpace(text)
		if utf8.RuneCountInString(text) == game.PasswordLength {
			return text, nil
		}
		printWarn(fmt.Sprintf("Password must be exactly %d characters.", game.PasswordLength))
	}
}

func promptFloat(label string, min float64) (float64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			printWarn("Enter a valid number.")
			continue
		}
		if v <= min {
			printWarn(fmt.Sprintf("Value must be > %.2f", min))
			continue
		}
		return v, nil
	}
}

func promptInt64(label string, min int64) (int64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < min {
			printWarn(fmt.Sprintf("Value must be >= %d", min))
			continue
		}
		return v, nil
	}
}

func renderPlayers(title string, players []game.PlayerBalance) {
	accent.Printf("\n== %s ==\n", title)
	if len(players) == 0 {
		printInfo("No players yet.")
		return
	}
	fmt.Printf("%-6s %-20s %14s %14s %14s %14s\n", "ID", "NAME", "COIN", "FOOD", "LUMBER", "IRON")
	for _, p := range players {
		fmt.Printf("%-6d %-20s %14s %14s %14s %14s\n",
			p.ID,
			truncate(p.Name, 20),
			formatMicros(p.Balance.Get(game.Coin)),
			formatMicros(p.Balance.Get(game.Food)),
			formatMicros(p.Balance.Get(game.Lumber)),
			formatMicros(p.Balance.Get(game.Iron)),
		)
	}
	fmt.Println()
}

func renderAmounts(a game.Amounts) {
	for _, asset := range game.Assets {
		fmt.Printf("%-8s %14s\n", asset.Title()+":", colorizeMicros(a.Get(asset)))
	}
}

func renderExchanges(playerID int64, exchanges []game.Exchange) {
	accent.Printf("\n== HISTORY OF PLAYER %d ==\n", playerID)
	if len(exchanges) == 0 {
		printInfo("No exchanges.")
		return
	}
	fmt.Printf("%-6s %-6s %-15s %-8s %-8s %12s %12s %12s %12s\n", "ID", "MONTH", "ACTION", "FROM", "TO", "COIN", "FOOD", "LUMBER", "IRON")
	for _, e := range exchanges {
		delta := e.Received
		if e.SenderID != nil && *e.SenderID == playerID && (e.ReceiverID == nil || *e.ReceiverID != playerID) {
			delta = delta.Neg()
		}
		fmt.Printf("%-6d %-6d %-15s %-8s %-8s %12s %12s %12s %12s\n",
			e.ID,
			e.Month,
			e.Action,
			partyLabel(e.SenderID),
			partyLabel(e.ReceiverID),
			colorizeMicros(delta.Get(game.Coin)),
			colorizeMicros(delta.Get(game.Food)),
			colorizeMicros(delta.Get(game.Lumber)),
			colorizeMicros(delta.Get(game.Iron)),
		)
	}
	fmt.Println()
}

func partyLabel(id *int64) string {
	if id == nil {
		return "system"
	}
	return "#" + strconv.FormatInt(*id, 10)
}

func renderFirmTypes(types []game.FirmType) {
	accent.Println("\n== FIRM TYPES ==")
	if len(types) == 0 {
		printInfo("No firm types. Run `fl admin init`.")
		return
	}
	for _, ft := range types {
		accent.Printf("#%d %s (build %d months)\n", ft.ID, ft.Name, ft.BuildTimeMonths)
		fmt.Printf("  %-12s %s\n", "cost", amountsInline(ft.Cost))
		fmt.Printf("  %-12s %s\n", "monthly", amountsInline(ft.MonthlyCost))
		fmt.Printf("  %-12s %s\n", "production", ratesInline(ft.ProductionMean, ft.ProductionStdDevPerc))
	}
	fmt.Println()
}

func renderFirms(chains []game.FirmChain) {
	accent.Println("\n== FIRMS ==")
	if len(chains) == 0 {
		printInfo("No firms built yet.")
		return
	}
	fmt.Printf("%-6s %-6s %-6s %-8s %-8s %s\n", "ID", "TYPE", "LEVEL", "BUILT", "ACTIVE", "OWNERS")
	for _, chain := range chains {
		renderFirmRow(chain.FirmView)
		for _, next := range chain.NextLevels {
			renderFirmRow(next)
		}
	}
	fmt.Println()
}

func renderFirmRow(v game.FirmView) {
	owners := make([]string, 0, len(v.Ownerships))
	for _, o := range v.Ownerships {
		owners = append(owners, fmt.Sprintf("#%d %.1f%%", o.PlayerID, o.OwnershipPerc))
	}
	fmt.Printf("%-6d %-6d %-6d %-8d %-8d %s\n", v.ID, v.TypeID, v.Level, v.BuiltAtMonth, v.ActiveFromMonth, strings.Join(owners, ", "))
}

func renderFirmResult(raw map[string]any, verb string) error {
	out, err := decodeInto[firmPayload](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("%s: #%d level %d, active from month %d.", verb, out.Firm.ID, out.Firm.Level, out.Firm.ActiveFromMonth))
	return nil
}

func renderMonthReport(r game.MonthReport) {
	accent.Printf("\n== MONTH %d SETTLED ==\n", r.Month)
	fmt.Printf("Players:    %d\n", r.Players)
	fmt.Printf("Eaten:      %s food each\n", formatMicros(r.EatAmount))
	fmt.Printf("Producing:  %d firms\n", len(r.ProducingFirmIDs))
	if len(r.FailedFirmIDs) > 0 {
		warn.Printf("Failed:     %d firms %v\n", len(r.FailedFirmIDs), r.FailedFirmIDs)
	}
	fmt.Printf("Tax pool:   %s\n", amountsInline(r.TaxCollected))
	fmt.Printf("Tax share:  %s\n", amountsInline(r.TaxPerPlayer))
	fmt.Printf("Inflation:  %s (%s)\n", amountsInline(r.Inflation), r.InflationMode)
	if len(r.Cycles) > 0 {
		fmt.Println()
		accent.Println("Cycles")
		fmt.Printf("%-6s %-6s %s\n", "ID", "TYPE", "PRODUCTION")
		for _, c := range r.Cycles {
			fmt.Printf("%-6d %-6d %s\n", c.ID, c.FirmTypeID, amountsInline(c.Production))
		}
	}
	fmt.Println()
}

func renderMonthCycles(mc game.MonthCycles) {
	accent.Printf("\n== CYCLES OF MONTH %d ==\n", mc.Month)
	if len(mc.Cycles) == 0 {
		printInfo("Month not settled yet.")
		return
	}
	failed := make(map[int64][]string, len(mc.Fails))
	for _, f := range mc.Fails {
		failed[f.FirmCycleID] = append(failed[f.FirmCycleID], "#"+strconv.FormatInt(f.FirmID, 10))
	}
	fmt.Printf("%-6s %-6s %-48s %s\n", "ID", "TYPE", "PRODUCTION", "FAILED FIRMS")
	for _, c := range mc.Cycles {
		fails := "-"
		if ids := failed[c.ID]; len(ids) > 0 {
			fails = danger.Sprint(strings.Join(ids, ", "))
		}
		fmt.Printf("%-6d %-6d %-48s %s\n", c.ID, c.FirmTypeID, amountsInline(c.Production), fails)
	}
	fmt.Println()
}

func renderEnvConfig(values map[string]string) {
	accent.Println("\n== ENV CONFIG ==")
	if len(values) == 0 {
		printInfo("No env config set.")
		return
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-24s %s\n", k, values[k])
	}
	fmt.Println()
}

func amountsInline(a game.Amounts) string {
	parts := make([]string, 0, game.NumAssets)
	for _, asset := range game.Assets {
		parts = append(parts, fmt.Sprintf("%s=%s", asset, formatMicros(a.Get(asset))))
	}
	return strings.Join(parts, " ")
}

func ratesInline(mean, stdDev game.Rates) string {
	parts := make([]string, 0, game.NumAssets)
	for _, asset := range game.Assets {
		if mean[asset] == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%g±%g%%", asset, mean[asset], stdDev[asset]))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func colorizeMicros(v int64) string {
	text := formatMicros(v)
	switch {
	case v > 0:
		return success.Sprint("+" + text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

// formatMicros renders whole units with thousands separators and up to two
// decimals.
func formatMicros(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := v / game.MicrosPerUnit
	frac := (v % game.MicrosPerUnit) / 10_000
	if whole == 0 && frac == 0 {
		return "0"
	}
	if frac == 0 {
		return sign + comma(whole)
	}
	return fmt.Sprintf("%s%s.%02d", sign, comma(whole), frac)
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		b.WriteByte(',')
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
