package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mintflip/internal/cart"
)

func newCartCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Manage the connected wallet's cart",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show cart contents and totals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printCart(cmd.OutOrStdout(), a.ledger(cmd.Context()))
		},
	}

	add := &cobra.Command{
		Use:   "add ID",
		Short: "Add one copy of a track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if a.wallet == "" {
				return fmt.Errorf("--wallet is required to keep a cart")
			}
			t, err := a.catalog.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			l := a.ledger(cmd.Context())
			if err := l.AddToCart(cmd.Context(), t); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %q. Cart has %d item(s).\n", t.Title, l.ItemCount())
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove ID",
		Short: "Remove a track line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.ledger(cmd.Context()).RemoveFromCart(cmd.Context(), id)
		},
	}

	qty := &cobra.Command{
		Use:   "qty ID N",
		Short: "Set the quantity of a line (0 removes it)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			return a.ledger(cmd.Context()).UpdateQuantity(cmd.Context(), id, n)
		},
	}

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.ledger(cmd.Context()).ClearCart(cmd.Context())
		},
	}

	cmd.AddCommand(show, add, remove, qty, clear)
	return cmd
}

func printCart(out io.Writer, l *cart.Ledger) error {
	items := l.Items()
	if len(items) == 0 {
		fmt.Fprintln(out, "Your cart is empty.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tQTY\tUNIT\tLINE")
	for _, item := range items {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n",
			item.Track.ID, item.Track.Title, item.Quantity,
			item.Track.Price.Display(4), item.Track.Price.Mul(item.Quantity).Display(4))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	s := l.Totals(cart.DefaultFeeBps)
	fmt.Fprintf(out, "\nItems:        %d\n", s.Items)
	fmt.Fprintf(out, "Subtotal:     %s\n", s.Subtotal.Display(4))
	fmt.Fprintf(out, "Service fee:  %s\n", s.Fee.Display(4))
	fmt.Fprintf(out, "Total:        %s\n", s.Total.Display(4))
	return nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid track id %q", raw)
	}
	return id, nil
}
