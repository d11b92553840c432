package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"marketplace-service/internal/config"
	"marketplace-service/internal/domain"
	"marketplace-service/internal/infra/database"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(config.Load(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := database.Migrate(a.db); err != nil {
				return fmt.Errorf("db: migrate: %w", err)
			}
			log.Println("schema up to date")
			return nil
		},
	}
}

func createAdminCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an approved administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(config.Load(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.users.CreateAdmin(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			log.Printf("admin %d created for %s", u.ID, u.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password (min 8 characters)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// paymentStatusCmd reconciles one transaction against the gateway, for payments whose
// notification never arrived.
func paymentStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "payment-status [transaction-id]",
		Short: "Query the gateway for a transaction and apply a final answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(config.Load(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			view, err := a.payments.CheckStatus(cmd.Context(), 0, domain.RoleAdmin, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		},
	}
}
