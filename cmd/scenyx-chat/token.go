package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Vasu1712/scenyx-chat/internal/flags"
)

// NewTokenCommand mints a token for local testing. Production tokens come
// from the marketplace's auth service, signed with the same secret.
func NewTokenCommand() *cobra.Command {
	f := flags.NewAuthFlags()
	var role string

	cmd := &cobra.Command{
		Use:   "token USER_ID",
		Short: "Mint a signed token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, err := f.GetResolver()
			if err != nil {
				return err
			}
			token, err := resolver.Issue(args[0], role)
			if err != nil {
				return errors.WithMessage(err, "could not sign token")
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	cmd.Flags().StringVar(&role, "role", "", "Marketplace role claim (buyer, seller)")
	return cmd
}
