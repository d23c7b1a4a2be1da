package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/teatimedev/polymarket-trader/internal/application/orders"
	"github.com/teatimedev/polymarket-trader/internal/domain"
)

// cmdTrade places one manual order through the same ledger, signer and
// submitter the cycle uses.
func (a *app) cmdTrade(ctx context.Context, args []string) error {
	fs := newFlagSet("trade")
	price := fs.Float64("price", 0, "limit price (0.01-0.99)")
	size := fs.Float64("size", 0, "size in USDC")
	market := fs.Bool("market", false, "market order at the worst acceptable price")
	side := fs.String("side", "YES", "outcome held by the token: YES or NO")
	marketID := fs.String("market-id", "", "condition id, used to price the position from scans")
	dryRun := fs.Bool("dry-run", false, "show the order without placing it")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	pos, err := parseInterleaved(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 2 {
		return fmt.Errorf("trade: want buy|sell <token_id>: %w", errUsage)
	}

	var action domain.OrderAction
	switch strings.ToLower(pos[0]) {
	case "buy":
		action = domain.ActionBuy
	case "sell":
		action = domain.ActionSell
	default:
		return fmt.Errorf("trade: unknown action %q: %w", pos[0], errUsage)
	}
	kind := domain.OrderLimit
	if *market {
		kind = domain.OrderMarket
	} else if *price < 0.01 || *price > 0.99 {
		return fmt.Errorf("trade: -price must be between 0.01 and 0.99 (or use -market): %w", domain.ErrValidation)
	}
	if *size <= 0 {
		return fmt.Errorf("trade: -size is required: %w", domain.ErrValidation)
	}

	intent := orders.Intent{
		MarketID: *marketID,
		TokenID:  pos[1],
		Side:     domain.ParseSide(*side),
		Action:   action,
		Kind:     kind,
		PriceUSD: *price,
		SizeUSD:  *size,
	}
	// Validate before touching keys so a bad token id fails fast.
	preview, err := orders.NewBuilder(orders.BuilderConfig{
		Tick:       a.cfg.Orders.Tick,
		MinSizeUSD: a.cfg.Budget.MinPositionUSD,
	}, domain.SignatureType(a.cfg.Account.SignatureType)).Build(intent)
	if err != nil {
		return err
	}

	fmt.Println("=== Order Details ===")
	fmt.Printf("Action:   %s %s\n", preview.Action, preview.Side)
	fmt.Printf("Token ID: %s\n", preview.TokenID)
	fmt.Printf("Price:    $%.2f\n", preview.PriceUSD)
	fmt.Printf("Size:     $%.2f USDC\n", preview.SizeUSD)
	fmt.Printf("Type:     %s\n\n", preview.Kind)

	if *dryRun {
		fmt.Println("(dry run, order not placed)")
		return nil
	}
	if !*yes && !confirm("Place order?") {
		fmt.Println("Order cancelled")
		return nil
	}

	ts, err := a.openTrading(ctx)
	if err != nil {
		return err
	}
	o, err := ts.builder.Build(intent)
	if err != nil {
		return err
	}
	o, err = ts.submitter.Submit(ctx, o)
	if o.ID != "" {
		a.console.PrintOrder(o)
	}
	return err
}

// cmdOrders lists, cancels or cancels all orders.
func (a *app) cmdOrders(ctx context.Context, args []string) error {
	fs := newFlagSet("orders")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	limit := fs.Int("limit", 50, "max local orders to list")
	venue := fs.Bool("venue", false, "also list open orders as the venue reports them")
	sync := fs.Bool("sync", false, "reconcile with the venue before listing")
	pos, err := parseInterleaved(fs, args)
	if err != nil {
		return err
	}
	if len(pos) == 0 {
		pos = []string{"list"}
	}

	switch pos[0] {
	case "list":
		store, err := a.storage()
		if err != nil {
			return err
		}
		if *sync || *venue {
			ts, err := a.openTrading(ctx)
			if err != nil {
				return err
			}
			if *sync {
				if _, err := ts.reconciler.Reconcile(ctx); err != nil {
					return err
				}
			}
			if *venue {
				open, err := ts.venue.OpenOrders(ctx)
				if err != nil {
					return err
				}
				a.console.PrintVenueOrders(open)
			}
		}
		list, err := store.ListRecentOrders(ctx, *limit)
		if err != nil {
			return err
		}
		a.console.PrintOrders(list)
		return nil

	case "cancel":
		if len(pos) != 2 {
			return fmt.Errorf("orders cancel: order id required: %w", errUsage)
		}
		ts, err := a.openTrading(ctx)
		if err != nil {
			return err
		}
		o, err := ts.reconciler.Cancel(ctx, pos[1])
		if o.ID != "" {
			a.console.PrintOrder(o)
		}
		return err

	case "cancel-all":
		if !*yes && !confirm("Cancel ALL open orders?") {
			fmt.Println("Aborted")
			return nil
		}
		ts, err := a.openTrading(ctx)
		if err != nil {
			return err
		}
		res, err := ts.reconciler.CancelAll(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Cancelled: %d orders closed, %d checked\n", res.Closed, res.Checked)
		return nil

	default:
		return fmt.Errorf("orders: unknown action %q: %w", pos[0], errUsage)
	}
}
