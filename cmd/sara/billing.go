package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/billing"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/logging"
)

var (
	billingCustomer     string
	billingSubscription string
)

var billingCmd = &cobra.Command{
	Use:   "billing",
	Short: "Read or change a user's subscription status",
}

var billingGetCmd = &cobra.Command{
	Use:   "get <line-user-id>",
	Short: "Show the stored subscription row",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openBilling()
		if err != nil {
			return err
		}
		defer store.Close()
		u, err := store.GetUser(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user=%s status=%s paid=%t customer=%s subscription=%s updated=%s\n",
			u.LineUserID, u.Status, u.Status.Paid(), u.CustomerID.String, u.SubscriptionID.String, u.UpdatedAt)
		return nil
	},
}

var billingSetCmd = &cobra.Command{
	Use:   "set <line-user-id> <status>",
	Short: "Set the subscription status (inactive|active|trialing|past_due|canceled)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status := billing.Status(args[1])
		if !status.Valid() {
			return fmt.Errorf("unknown status %q", args[1])
		}
		store, err := openBilling()
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.SetStatus(cmd.Context(), args[0], status, billingCustomer, billingSubscription); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], status)
		return nil
	},
}

func init() {
	billingSetCmd.Flags().StringVar(&billingCustomer, "customer", "", "payment provider customer id")
	billingSetCmd.Flags().StringVar(&billingSubscription, "subscription", "", "payment provider subscription id")
	billingCmd.AddCommand(billingGetCmd, billingSetCmd)
}

func openBilling() (*billing.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return billing.Open(cfg.BillingDriver, cfg.BillingDSN, logging.New(cfg.Logging()))
}
