package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/ports"
)

// Console implements ports.Notifier and ports.SignalSink with plain-text tables.
type Console struct {
	out io.Writer
	now func() time.Time
}

var (
	_ ports.Notifier   = (*Console)(nil)
	_ ports.SignalSink = (*Console)(nil)
)

// NewConsole creates a notifier that writes to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout, now: time.Now}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, now: time.Now}
}

// Notify prints the ranked opportunities grouped by category. Groups follow the
// rank of their best market; ranking inside a group is preserved.
func (c *Console) Notify(_ context.Context, opportunities []domain.Opportunity) error {
	ts := c.now().Format("15:04:05")
	if len(opportunities) == 0 {
		fmt.Fprintf(c.out, "[%s] no opportunities found\n", ts)
		return nil
	}

	fmt.Fprintf(c.out, "\n[%s] %d opportunities\n", ts, len(opportunities))

	var order []domain.Category
	groups := make(map[domain.Category][]int)
	for i, o := range opportunities {
		cat := o.Market.Category
		if _, ok := groups[cat]; !ok {
			order = append(order, cat)
		}
		groups[cat] = append(groups[cat], i)
	}

	for _, cat := range order {
		idx := groups[cat]
		fmt.Fprintf(c.out, "\n── %s (%d) ──\n", strings.ToUpper(string(cat)), len(idx))

		table := tablewriter.NewWriter(c.out)
		table.Header("#", "Score", "Market", "YES", "Vol 24h", "Liquidity", "Ends", "U/V/L/A/T")
		for _, i := range idx {
			o := opportunities[i]
			m := o.Market
			s := o.Subscores
			table.Append(
				fmt.Sprintf("%d", i+1),
				fmt.Sprintf("%d", o.Score),
				domain.TruncateQuestion(m.Question, m.ID, 50),
				fmt.Sprintf("%.1f¢", m.PriceYes*100),
				formatUSD(m.Volume24hUSD),
				formatUSD(m.LiquidityUSD),
				c.endLabel(m),
				fmt.Sprintf("%.0f/%.0f/%.0f/%.0f/%.0f", s.Uncertainty, s.Volume, s.Liquidity, s.Activity, s.Timing),
			)
		}
		table.Render()
	}
	fmt.Fprintln(c.out, "  U/V/L/A/T = uncertainty/volume/liquidity/activity/timing sub-scores")
	return nil
}

// NotifySignals prints monitor signals, one line each.
func (c *Console) NotifySignals(_ context.Context, signals []domain.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	fmt.Fprintf(c.out, "\n── SIGNALS (%d) ──\n", len(signals))
	for _, s := range signals {
		fmt.Fprintf(c.out, "  !! %s\n", s)
	}
	return nil
}

// PrintMarkets lists markets returned by a discovery command.
func (c *Console) PrintMarkets(title string, markets []domain.Market) {
	fmt.Fprintf(c.out, "\n── %s (%d) ──\n", title, len(markets))
	if len(markets) == 0 {
		fmt.Fprintln(c.out, "  (none)")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Market", "Cat", "YES", "NO", "Vol 24h", "Volume", "Liquidity", "Ends")
	for i, m := range markets {
		table.Append(
			fmt.Sprintf("%d", i+1),
			domain.TruncateQuestion(m.Question, m.ID, 50),
			string(m.Category),
			fmt.Sprintf("%.1f¢", m.PriceYes*100),
			fmt.Sprintf("%.1f¢", m.PriceNo()*100),
			formatUSD(m.Volume24hUSD),
			formatUSD(m.VolumeTotalUSD),
			formatUSD(m.LiquidityUSD),
			c.endLabel(m),
		)
	}
	table.Render()
}

// PrintMarketDetail prints everything needed to place a trade on each market.
func (c *Console) PrintMarketDetail(markets []domain.Market) {
	for _, m := range markets {
		fmt.Fprintf(c.out, "\n%s\n", m.Question)
		if m.EventTitle != "" && m.EventTitle != m.Question {
			fmt.Fprintf(c.out, "  Event:     %s\n", m.EventTitle)
		}
		fmt.Fprintf(c.out, "  URL:       %s\n", m.URL())
		fmt.Fprintf(c.out, "  Market:    %s\n", m.ID)
		fmt.Fprintf(c.out, "  Category:  %s\n", m.Category)
		fmt.Fprintf(c.out, "  YES:       %.1f¢  token %s\n", m.PriceYes*100, m.TokenIDYes)
		fmt.Fprintf(c.out, "  NO:        %.1f¢  token %s\n", m.PriceNo()*100, m.TokenIDNo)
		fmt.Fprintf(c.out, "  Volume:    %s total, %s 24h\n", formatUSD(m.VolumeTotalUSD), formatUSD(m.Volume24hUSD))
		fmt.Fprintf(c.out, "  Liquidity: %s\n", formatUSD(m.LiquidityUSD))
		fmt.Fprintf(c.out, "  Ends:      %s\n", c.endLabel(m))
		if m.NegRisk {
			fmt.Fprintln(c.out, "  Neg-risk:  yes")
		}
	}
}

// PrintOrder prints the outcome of a single submission.
func (c *Console) PrintOrder(o domain.Order) {
	fmt.Fprintf(c.out, "%s %s %s $%.2f @ %.2f [%s] %s\n",
		o.Action, o.Side, o.Kind, o.SizeUSD, o.PriceUSD, o.Status,
		domain.TruncateQuestion(o.Question, o.MarketID, 50))
	if o.VenueOrderID != "" {
		fmt.Fprintf(c.out, "  venue order: %s\n", o.VenueOrderID)
	}
	if o.Reason != "" {
		fmt.Fprintf(c.out, "  reason: %s\n", o.Reason)
	}
}

// PrintOrders lists locally tracked orders.
func (c *Console) PrintOrders(orders []domain.Order) {
	fmt.Fprintf(c.out, "\n── ORDERS (%d) ──\n", len(orders))
	if len(orders) == 0 {
		fmt.Fprintln(c.out, "  (none)")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Status", "Side", "Kind", "Price", "Size$", "Filled$", "Market", "Updated")
	for _, o := range orders {
		table.Append(
			shortID(o.ID),
			string(o.Status),
			fmt.Sprintf("%s %s", o.Action, o.Side),
			string(o.Kind),
			fmt.Sprintf("%.2f", o.PriceUSD),
			fmt.Sprintf("%.2f", o.SizeUSD),
			fmt.Sprintf("%.2f", o.FilledUSD),
			domain.TruncateQuestion(o.Question, o.MarketID, 40),
			o.UpdatedAt.Local().Format("01-02 15:04"),
		)
	}
	table.Render()
}

// PrintVenueOrders lists the account's live orders as the venue reports them.
func (c *Console) PrintVenueOrders(orders []domain.VenueOrder) {
	fmt.Fprintf(c.out, "\n── OPEN ORDERS (%d) ──\n", len(orders))
	if len(orders) == 0 {
		fmt.Fprintln(c.out, "  (none)")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Order", "Status", "Side", "Price", "Shares", "Filled", "Token")
	for _, o := range orders {
		table.Append(
			shortID(o.VenueOrderID),
			string(o.Status),
			fmt.Sprintf("%s %s", o.Action, o.Side),
			fmt.Sprintf("%.2f", o.PriceUSD),
			fmt.Sprintf("%.2f", o.SizeShares),
			fmt.Sprintf("%.2f", o.FilledShares),
			shortID(o.TokenID),
		)
	}
	table.Render()
}

// PrintPositions lists the engine's open positions.
func (c *Console) PrintPositions(positions []domain.Position) {
	fmt.Fprintf(c.out, "\n── POSITIONS (%d) ──\n", len(positions))
	if len(positions) == 0 {
		fmt.Fprintln(c.out, "  (none)")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Side", "Market", "Entry", "Current", "Shares", "Cost$", "Value$", "P&L", "Ends")
	var cost, value float64
	for _, p := range positions {
		cost += p.SizeUSD
		value += p.ValueUSD()
		table.Append(
			string(p.Side),
			domain.TruncateQuestion(p.Question, p.MarketID, 40),
			fmt.Sprintf("%.2f", p.EntryPriceUSD),
			fmt.Sprintf("%.2f", p.CurrentPriceUSD),
			fmt.Sprintf("%.2f", p.Shares),
			fmt.Sprintf("%.2f", p.SizeUSD),
			fmt.Sprintf("%.2f", p.ValueUSD()),
			fmt.Sprintf("%+.1f%%", p.UnrealizedPnLPct*100),
			c.timeLeft(p.ResolvesAt),
		)
	}
	table.Render()
	fmt.Fprintf(c.out, "  Cost $%.2f | Value $%.2f | P&L $%+.2f\n", cost, value, value-cost)
}

// PrintAccount prints addresses, balance, venue positions, open orders and recent trades.
func (c *Console) PrintAccount(s domain.AccountSummary) {
	fmt.Fprintf(c.out, "\n── ACCOUNT ──\n")
	fmt.Fprintf(c.out, "  Signer:    %s\n", s.SignerAddress)
	if s.FunderAddress != "" && !strings.EqualFold(s.FunderAddress, s.SignerAddress) {
		fmt.Fprintf(c.out, "  Funder:    %s\n", s.FunderAddress)
	}
	fmt.Fprintf(c.out, "  Signature: %s\n", s.SignatureType)
	fmt.Fprintf(c.out, "  USDC.e:    $%.2f\n", s.BalanceUSD)

	fmt.Fprintf(c.out, "\n── VENUE POSITIONS (%d) ──\n", len(s.Positions))
	if len(s.Positions) == 0 {
		fmt.Fprintln(c.out, "  (none)")
	} else {
		table := tablewriter.NewWriter(c.out)
		table.Header("Outcome", "Market", "Shares", "Avg", "Current", "Value$", "P&L$")
		var value, pnl float64
		for _, p := range s.Positions {
			value += p.ValueUSD()
			pnl += p.PnLUSD()
			table.Append(
				p.Outcome,
				domain.TruncateQuestion(p.Title, p.MarketID, 40),
				fmt.Sprintf("%.2f", p.Size),
				fmt.Sprintf("%.2f", p.AvgPrice),
				fmt.Sprintf("%.2f", p.CurrentPrice),
				fmt.Sprintf("%.2f", p.ValueUSD()),
				fmt.Sprintf("%+.2f", p.PnLUSD()),
			)
		}
		table.Render()
		fmt.Fprintf(c.out, "  Value $%.2f | P&L $%+.2f\n", value, pnl)
	}

	c.PrintVenueOrders(s.OpenOrders)

	fmt.Fprintf(c.out, "\n── RECENT TRADES (%d) ──\n", len(s.RecentTrades))
	if len(s.RecentTrades) == 0 {
		fmt.Fprintln(c.out, "  (none)")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Side", "Outcome", "Market", "Price", "Shares", "USD")
	for _, t := range s.RecentTrades {
		table.Append(
			t.Timestamp.Local().Format("01-02 15:04"),
			t.Side,
			t.Outcome,
			domain.TruncateQuestion(t.Title, t.MarketID, 40),
			fmt.Sprintf("%.2f", t.Price),
			fmt.Sprintf("%.2f", t.Size),
			fmt.Sprintf("%.2f", t.NotionalUSD()),
		)
	}
	table.Render()
}

// PrintLedger prints the persisted daily risk state.
func (c *Console) PrintLedger(s domain.LedgerState) {
	fmt.Fprintf(c.out, "\n── LEDGER %s ──\n", s.Day)
	fmt.Fprintf(c.out, "  Budget:       $%s (max/trade $%s, min $%s)\n",
		s.TotalBudgetUSD.StringFixed(2), s.MaxPerTradeUSD.StringFixed(2), s.MinPositionUSD.StringFixed(2))
	fmt.Fprintf(c.out, "  Spent today:  $%s (remaining $%s)\n",
		s.SpentTodayUSD.StringFixed(2), s.RemainingBudgetUSD().StringFixed(2))
	fmt.Fprintf(c.out, "  Realized P&L: $%s (loss limit $%s)\n",
		s.RealizedPnLTodayUSD.StringFixed(2), s.DailyLossLimitUSD.StringFixed(2))
	if s.Halted {
		fmt.Fprintf(c.out, "  Status:       HALTED (%s)\n", s.HaltReason)
	} else {
		fmt.Fprintf(c.out, "  Status:       OK\n")
	}

	if len(s.Reservations) == 0 {
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Reservation", "Day", "Amount$", "Remaining$", "Created")
	for _, r := range s.Reservations {
		table.Append(
			shortID(r.ID),
			r.Day,
			r.AmountUSD.StringFixed(2),
			r.RemainingUSD.StringFixed(2),
			r.CreatedAt.Local().Format("01-02 15:04"),
		)
	}
	table.Render()
}

// CycleReport bundles what PrintCycle needs.
type CycleReport struct {
	Scanned    int
	Skipped    int
	Candidates int
	Verdicts   []domain.EdgeVerdict
	Orders     []domain.Order
	Denied     []string
	Signals    []domain.Signal
	Errors     []string
	Ledger     domain.LedgerState
}

// PrintCycle prints a compact summary of one pipeline cycle.
func (c *Console) PrintCycle(r CycleReport) {
	approved := 0
	for _, v := range r.Verdicts {
		if v.TradeApproved {
			approved++
		}
	}

	fmt.Fprintf(c.out, "[%s][CYCLE] %d mkts (%d skipped) | %d candidates | %d verdicts (%d approved) | %d orders | %d signals | spent $%s/$%s",
		c.now().Format("15:04:05"), r.Scanned, r.Skipped, r.Candidates,
		len(r.Verdicts), approved, len(r.Orders), len(r.Signals),
		r.Ledger.SpentTodayUSD.StringFixed(2), r.Ledger.TotalBudgetUSD.StringFixed(2))
	if r.Ledger.Halted {
		fmt.Fprint(c.out, " | HALTED")
	}
	fmt.Fprintln(c.out)

	for _, v := range r.Verdicts {
		if !v.TradeApproved {
			continue
		}
		fmt.Fprintf(c.out, "  >> edge %+.3f %s @ %.2f (p=%.2f conf=%.2f) %s\n",
			v.Edge, v.Side, v.EntryPrice, v.Probability, v.Confidence, shortID(v.MarketID))
	}
	for _, o := range r.Orders {
		fmt.Fprint(c.out, "  ")
		c.PrintOrder(o)
	}
	for _, d := range r.Denied {
		fmt.Fprintf(c.out, "  -- %s\n", d)
	}
	for _, s := range r.Signals {
		fmt.Fprintf(c.out, "  !! %s\n", s)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(c.out, "  xx %s\n", e)
	}
}

// --- helpers ---

func (c *Console) endLabel(m domain.Market) string {
	if m.EndDate.IsZero() {
		return "-"
	}
	hours := m.HoursToResolution(c.now())
	if hours < 48 {
		return fmt.Sprintf("%s (!%.0fh)", m.EndDate.Format("01-02"), hours)
	}
	return m.EndDate.Format("2006-01-02")
}

func (c *Console) timeLeft(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := t.Sub(c.now())
	switch {
	case d <= 0:
		return "ended"
	case d < 48*time.Hour:
		return fmt.Sprintf("%.0fh", d.Hours())
	default:
		return fmt.Sprintf("%.0fd", d.Hours()/24)
	}
}

func formatUSD(v float64) string {
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("$%.1fM", v/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("$%.1fk", v/1_000)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:10] + ".."
	}
	return id
}
