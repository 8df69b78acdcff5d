package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ticketgate/gateway/internal/service"
)

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage staff accounts",
	}
	cmd.AddCommand(adminCreateCmd(), adminResetPasswordCmd(), adminSetActiveCmd(false), adminSetActiveCmd(true))
	return cmd
}

// adminCreateCmd creates a staff account even when self-registration is
// switched off on the API.
func adminCreateCmd() *cobra.Command {
	var input service.RegisterInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a staff account",
		Example: `  ticketctl admin create --username mona --email mona@example.com \
    --password s3cret! --full-name "Mona Adel"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			admin, err := e.svc.Admins.CreateAdmin(cmd.Context(), input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (referral code %s)\n", admin.Username, admin.ReferralCode)
			return nil
		},
	}
	cmd.Flags().StringVar(&input.Username, "username", "", "login name")
	cmd.Flags().StringVar(&input.Email, "email", "", "email address")
	cmd.Flags().StringVar(&input.Password, "password", "", "password, at least 6 characters")
	cmd.Flags().StringVar(&input.FullName, "full-name", "", "display name")
	for _, f := range []string{"username", "email", "password", "full-name"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func adminResetPasswordCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "reset-password <username>",
		Short: "Set a new password for a staff account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.svc.Admins.ResetPassword(cmd.Context(), args[0], password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "new password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func adminSetActiveCmd(active bool) *cobra.Command {
	use, short := "disable <username>", "Block a staff account from logging in"
	if active {
		use, short = "enable <username>", "Allow a staff account to log in again"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.svc.Admins.SetActive(cmd.Context(), args[0], active); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s active=%t\n", args[0], active)
			return nil
		},
	}
}
