package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/procural/quotes-go/core/quotation"
)

func createCmd() *cobra.Command {
	var subcontractor string

	cmd := &cobra.Command{
		Use:   "create <quotation-number>",
		Short: "Start a new quotation in draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *quotation.Service) error {
				aggID, err := svc.CreateQuotation(ctx, args[0], subcontractor)
				if err != nil {
					return err
				}
				fmt.Printf("created quotation %s (%s)\n", args[0], aggID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subcontractor, "subcontractor", "", "subcontractor reference")
	_ = cmd.MarkFlagRequired("subcontractor")
	return cmd
}
