package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/service"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a TOTP secret for auth.totp_secret",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := service.NewAuthService(zap.NewNop(), "").GenerateSecret()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), secret)
		return nil
	},
}
