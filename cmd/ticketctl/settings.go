package main

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/ticketgate/gateway/internal/service"
)

const cliActor = "ticketctl"

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the registration settings",
	}
	cmd.AddCommand(settingsShowCmd(), settingsSetCmd())
	return cmd
}

func settingsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current settings as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			s, err := e.svc.Settings.Get(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		},
	}
}

func settingsSetCmd() *cobra.Command {
	var (
		price  string
		active bool
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change the base price or switch registrations on and off",
		Example: `  ticketctl settings set --price 350
  ticketctl settings set --active=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd service.SettingsUpdate
			if cmd.Flags().Changed("price") {
				d, err := decimal.NewFromString(price)
				if err != nil {
					return fmt.Errorf("price must be a number: %w", err)
				}
				upd.Price = &d
			}
			if cmd.Flags().Changed("active") {
				upd.Active = &active
			}
			if upd.Price == nil && upd.Active == nil {
				return fmt.Errorf("nothing to change; pass --price or --active")
			}

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			s, err := e.svc.Settings.Update(cmd.Context(), upd, cliActor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "price=%s active=%t\n", s.Price.StringFixed(2), s.Active)
			return nil
		},
	}
	cmd.Flags().StringVar(&price, "price", "", "base ticket price")
	cmd.Flags().BoolVar(&active, "active", true, "accept new registrations")
	return cmd
}
