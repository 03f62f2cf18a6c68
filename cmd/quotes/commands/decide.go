package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/procural/quotes-go/core/quotation"
)

func sendCmd() *cobra.Command {
	return transitionCmd(
		"send <quotation-number>",
		"Send a draft quotation to its subcontractor",
		"sent",
		(*quotation.Service).SendToSubcontractor,
	)
}

func rejectCmd() *cobra.Command {
	return transitionCmd(
		"reject <quotation-number>",
		"Record the subcontractor's rejection",
		"rejected",
		(*quotation.Service).Reject,
	)
}

func approveCmd() *cobra.Command {
	return transitionCmd(
		"approve <quotation-number>",
		"Record the subcontractor's approval",
		"approved",
		(*quotation.Service).Approve,
	)
}

func transitionCmd(use, short, past string, fn func(*quotation.Service, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *quotation.Service) error {
				if err := fn(svc, ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("quotation %s %s\n", args[0], past)
				return nil
			})
		},
	}
}
