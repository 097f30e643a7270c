// Command cartctl drives one cart from the terminal. The cart identifier is
// remembered in a JSON state file so later invocations resume the same cart.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storefront-cart/internal/config"
	"storefront-cart/internal/domain"
	"storefront-cart/internal/importer"
	"storefront-cart/internal/logging"
	"storefront-cart/internal/repository/identity"
	cartsvc "storefront-cart/internal/service/cart"
	"storefront-cart/internal/storefront"
)

type app struct {
	statePath string
	asJSON    bool
	timeout   time.Duration
	out       io.Writer

	logger *zap.Logger
	sync   *cartsvc.Synchronizer
}

func main() {
	a := &app{out: os.Stdout}
	if err := a.rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func defaultStatePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "storefront-cart", "cart.json")
	}
	return "cart.json"
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cartctl",
		Short:         "Inspect and edit a storefront cart",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.statePath, "state", defaultStatePath(), "file remembering the cart id")
	root.PersistentFlags().BoolVar(&a.asJSON, "json", false, "print the cart as JSON")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", time.Minute, "overall command timeout")

	root.AddCommand(
		a.showCmd(),
		a.createCmd(),
		a.fetchCmd(),
		a.addCmd(),
		a.removeCmd(),
		a.updateCmd(),
		a.importCmd(),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.logger, err = logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return err
	}
	client, err := storefront.NewClient(cfg.Storefront, a.logger.Named("storefront"))
	if err != nil {
		return err
	}
	a.sync = cartsvc.New(client, identity.NewFile(a.statePath),
		cartsvc.WithCallTimeout(cfg.Storefront.Timeout),
		cartsvc.WithLogger(a.logger.Named("cart")),
	)
	return nil
}

// run executes fn under the command timeout and prints the resulting cart.
// resume loads the remembered cart first.
func (a *app) run(cmd *cobra.Command, resume bool, fn func(ctx context.Context) (domain.Cart, error)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
	defer cancel()
	if resume {
		if err := a.sync.Start(ctx); err != nil {
			return err
		}
	}
	cart, err := fn(ctx)
	if err != nil {
		return err
	}
	return a.print(cart)
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Resume the remembered cart (creating one if needed) and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, true, func(context.Context) (domain.Cart, error) {
				cart, _ := a.sync.Snapshot()
				return cart, nil
			})
		},
	}
}

func (a *app) createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Start a new empty cart and remember it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, false, a.sync.Create)
		},
	}
}

func (a *app) fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <cartId>",
		Short: "Load an existing cart by id and remember it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, false, func(ctx context.Context) (domain.Cart, error) {
				return a.sync.Fetch(ctx, args[0])
			})
		},
	}
}

func (a *app) addCmd() *cobra.Command {
	var quantity int
	cmd := &cobra.Command{
		Use:   "add <variantId>",
		Short: "Add a product variant to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, true, func(ctx context.Context) (domain.Cart, error) {
				return a.sync.AddLine(ctx, args[0], quantity)
			})
		},
	}
	cmd.Flags().IntVarP(&quantity, "quantity", "q", 1, "quantity to add")
	return cmd
}

func (a *app) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <lineId>",
		Short: "Remove a line from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, true, func(ctx context.Context) (domain.Cart, error) {
				return a.sync.RemoveLine(ctx, args[0])
			})
		},
	}
}

func (a *app) updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <lineId> <quantity>",
		Short: "Set the quantity of a line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity must be a number: %w", err)
			}
			return a.run(cmd, true, func(ctx context.Context) (domain.Cart, error) {
				return a.sync.UpdateLineQuantity(ctx, args[0], qty)
			})
		},
	}
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Add every variantId,quantity row of a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open file: %w", err)
			}
			defer f.Close()

			return a.run(cmd, true, func(ctx context.Context) (domain.Cart, error) {
				start := time.Now()
				count, err := importer.NewCSVImporter(f, a.sync).Run(ctx)
				a.logger.Info("import finished",
					zap.Int("rows", count),
					zap.Duration("took", time.Since(start).Truncate(time.Millisecond)),
				)
				if err != nil {
					return domain.Cart{}, fmt.Errorf("imported %d rows before failing: %w", count, err)
				}
				cart, _ := a.sync.Snapshot()
				return cart, nil
			})
		},
	}
}

func (a *app) print(cart domain.Cart) error {
	if a.asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(cart)
	}
	return writeCart(a.out, cart)
}

func writeCart(out io.Writer, cart domain.Cart) error {
	fmt.Fprintf(out, "Cart:     %s\n", cart.ID)
	fmt.Fprintf(out, "Checkout: %s\n", cart.CheckoutURL)
	fmt.Fprintf(out, "Items:    %d\n", cart.TotalQuantity)
	if len(cart.Lines) == 0 {
		fmt.Fprintln(out, "\n(empty)")
		return nil
	}
	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tPRODUCT\tQTY\tUNIT\tTOTAL")
	for _, l := range cart.Lines {
		name := l.Merchandise.ProductTitle
		if t := l.Merchandise.Title; t != "" && t != "Default Title" {
			name = strings.TrimSpace(name + " / " + t)
		}
		total := l.Total()
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s %s\t%s %s\n",
			l.ID, name, l.Quantity,
			l.Merchandise.UnitPrice.AmountString(), l.Merchandise.UnitPrice.CurrencyCode,
			total.AmountString(), total.CurrencyCode,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, m := range cart.Subtotal() {
		fmt.Fprintf(out, "Subtotal: %s %s\n", m.AmountString(), m.CurrencyCode)
	}
	return nil
}
