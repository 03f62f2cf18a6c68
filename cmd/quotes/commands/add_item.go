package commands

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/procural/quotes-go/core/quotation"
)

func addItemCmd() *cobra.Command {
	var (
		remarks  string
		currency string
		quantity int
	)

	cmd := &cobra.Command{
		Use:   "add-item <quotation-number> <unit-price>",
		Short: "Add a line item to a draft quotation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			unitPrice, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid unit price %q: %w", args[1], err)
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *quotation.Service) error {
				if err := svc.AddLineItem(ctx, args[0], remarks, unitPrice, currency, quantity); err != nil {
					return err
				}
				fmt.Printf("added line item to quotation %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&remarks, "remarks", "", "free-text remarks")
	cmd.Flags().StringVar(&currency, "currency", "USD", "ISO currency code")
	cmd.Flags().IntVar(&quantity, "quantity", 1, "quantity")
	return cmd
}
