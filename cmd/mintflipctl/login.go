package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mintflip/internal/auth"
)

func newLoginCmd(a *app) *cobra.Command {
	var signature string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange a signed login message for an API token",
		Long: "Without --signature, prints the message the wallet must sign.\n" +
			"With it, logs in and saves the token for later commands.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.wallet == "" {
				return errors.New("--wallet is required")
			}
			message := auth.LoginMessage(a.wallet)
			if signature == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Sign this message with %s and rerun with --signature:\n%s\n", a.wallet, message)
				return nil
			}

			token, err := a.catalog.Authenticate(cmd.Context(), a.wallet, message, signature)
			if err != nil {
				return err
			}
			if err := a.storage.Set(cmd.Context(), tokenKey, []byte(token)); err != nil {
				return fmt.Errorf("save token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged in as", a.wallet)
			return nil
		},
	}
	cmd.Flags().StringVar(&signature, "signature", "", "hex personal_sign signature of the login message")
	return cmd
}
