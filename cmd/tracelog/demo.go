package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/tracelog/internal/services"
	"github.com/fyrsmithlabs/tracelog/pkg/ambient"
	"github.com/fyrsmithlabs/tracelog/pkg/record"
	"github.com/fyrsmithlabs/tracelog/pkg/sensitivity"
	"github.com/fyrsmithlabs/tracelog/pkg/tracker"
)

// Item is a stock-keeping unit in the demo inventory.
type Item struct {
	SKU      string
	Name     string
	Quantity int
	Price    float64
}

// Account pays for restocks.
type Account struct {
	ID       string
	Card     string `log:"mask,last=4"`
	Password string
}

var errInsufficientStock = errors.New("insufficient stock")

// inventory is the instrumented demo service.
type inventory struct {
	a *record.Assembler
}

func (inv *inventory) Restock(ctx context.Context, item *Item, qty int) (*Item, error) {
	attr := record.DefaultAttribute()
	attr.TrackChanges = &record.TrackChanges{OperationType: "Restock"}
	return record.Invoke(ctx, inv.a, record.Call{
		Type:   "Inventory",
		Method: "Restock",
		Attr:   &attr,
		Params: []record.Param{
			{Name: "item", Value: item, Before: true},
			{Name: "qty", Value: qty},
		},
	}, func(context.Context) (*Item, error) {
		item.Quantity += qty
		return item, nil
	})
}

func (inv *inventory) Reserve(ctx context.Context, item *Item, qty int) error {
	return record.InvokeVoid(ctx, inv.a, record.Call{
		Type:   "Inventory",
		Method: "Reserve",
		Params: []record.Param{{Name: "sku", Value: item.SKU}, {Name: "qty", Value: qty}},
	}, func(context.Context) error {
		if qty > item.Quantity {
			return fmt.Errorf("reserve %d of %s: %w", qty, item.SKU, errInsufficientStock)
		}
		item.Quantity -= qty
		return nil
	})
}

func (inv *inventory) Charge(ctx context.Context, acct Account, amount float64) (string, error) {
	return record.Invoke(ctx, inv.a, record.Call{
		Type:   "Billing",
		Method: "Charge",
		Params: []record.Param{
			{Name: "account", Value: acct},
			{Name: "amount", Value: amount},
			{Name: "cvv", Value: "123", Directive: sensitivity.Exclude()},
		},
	}, func(context.Context) (string, error) {
		return "txn-" + acct.ID, nil
	})
}

// Reprice updates a price outside an instrumented call and emits the
// changes as a standalone record.
func (inv *inventory) Reprice(ctx context.Context, item *Item, price float64) error {
	t, err := tracker.New(item, tracker.WithOperation("Reprice"), tracker.WithEmitter(inv.a))
	if err != nil {
		return err
	}
	t.WithContext("reason", "seasonal")
	item.Price = price
	_, err = t.Finalize(ctx, item, record.DefaultAttribute().Level)
	return err
}

type demoFlags struct {
	iterations int
}

func newDemoCmd(g *globalFlags) *cobra.Command {
	f := &demoFlags{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a sample workload through the configured pipeline",
		Long: `Run a small inventory workload through a pipeline built from the loaded
configuration, printing its records to stdout and a per-method timing
summary to stderr.

Examples:
  tracelog demo
  tracelog --config tracelog.yaml demo --iterations 5
  TRACELOG_OUTPUT_FORMAT=text tracelog demo`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd, g, f)
		},
	}
	cmd.Flags().IntVarP(&f.iterations, "iterations", "n", 1, "number of times to run the workload")
	return cmd
}

func runDemo(cmd *cobra.Command, g *globalFlags, f *demoFlags) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := services.Build(ctx, cfg, services.Env{Stdout: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	inv := &inventory{a: rt.Assembler()}
	item := &Item{SKU: "SKU-1001", Name: "Widget", Quantity: 2, Price: 9.99}
	acct := Account{ID: "acct-7", Card: "4111111111111111", Password: "hunter2"}

	for i := 0; i < f.iterations; i++ {
		runCtx := ambient.WithNewCorrelationID(ctx)
		runCtx = ambient.WithTaskID(runCtx, fmt.Sprintf("demo-%d", i+1))
		runCtx = ambient.WithValues(runCtx, map[string]any{"user": acct.ID, "api_token": "tok-secret"})

		if _, err := inv.Restock(runCtx, item, 10); err != nil {
			return err
		}
		if _, err := inv.Charge(runCtx, acct, 99.90); err != nil {
			return err
		}
		if err := inv.Reserve(runCtx, item, 1000); !errors.Is(err, errInsufficientStock) {
			return fmt.Errorf("expected insufficient stock, got %v", err)
		}
		if err := inv.Reprice(runCtx, item, item.Price+1); err != nil {
			return err
		}
	}

	if c := rt.Stats(); c != nil {
		w := tabwriter.NewWriter(cmd.ErrOrStderr(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "METHOD\tCALLS\tFAILURES\tMEAN\tMAX")
		for _, m := range c.Snapshot() {
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", m.Method, m.Calls, m.Failures, m.Window.Mean, m.Window.Max)
		}
		return w.Flush()
	}
	return nil
}
