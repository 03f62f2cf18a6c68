package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/procural/quotes-go/core/quotation"
)

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <quotation-number>",
		Short: "Show a quotation's current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *quotation.Service) error {
				q, err := svc.Get(ctx, args[0])
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(q, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			})
		},
	}
}
