package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"mintflip/internal/cart"
	"mintflip/internal/checkout"
)

func newCheckoutCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Buy every track in the cart on chain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if a.wallet == "" {
				return checkout.ErrWalletDisconnected
			}
			buyer, err := a.chainClient()
			if err != nil {
				return err
			}

			ledger := a.ledger(ctx)
			flow := checkout.New(ledger, buyer, checkout.WithFeeBps(cart.DefaultFeeBps))
			if err := flow.Begin(); err != nil {
				return err
			}

			if err := printCart(out, ledger); err != nil {
				return err
			}
			if !yes && !confirm(cmd.InOrStdin(), out, "\nConfirm purchase?") {
				fmt.Fprintln(out, "Checkout cancelled.")
				return flow.Back()
			}

			receipts, err := flow.Confirm(ctx)
			if err != nil {
				return errors.New(checkout.Describe(err))
			}

			fmt.Fprintln(out, "\nPurchase complete:")
			for _, r := range receipts {
				fmt.Fprintf(out, "  %s (token %d) for %s  tx %s\n", r.Title, r.TokenID, r.Price.Display(4), r.TxHash)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
