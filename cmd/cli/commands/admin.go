package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	adminCmd.AddCommand(failAllCmd)
	adminCmd.AddCommand(pendingAllCmd)

	pendingAllCmd.Flags().String("language", "", "Only reset jobs with this target language")
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Operator recovery sweeps",
}

var failAllCmd = &cobra.Command{
	Use:   "fail-all",
	Short: "Force every active job to failed and reconcile its batch",
	RunE: func(_ *cobra.Command, _ []string) error {
		affected, err := apiClient.FailAllBatches(context.Background())
		if err != nil {
			return fmt.Errorf("error running fail-all: %w", err)
		}
		fmt.Printf("affected %d jobs\n", affected)
		return nil
	},
}

var pendingAllCmd = &cobra.Command{
	Use:   "pending-all",
	Short: "Reset every job to pending and reconcile its batch",
	RunE: func(cmd *cobra.Command, _ []string) error {
		language, _ := cmd.Flags().GetString("language")
		affected, err := apiClient.PendingAllBatches(context.Background(), language)
		if err != nil {
			return fmt.Errorf("error running pending-all: %w", err)
		}
		fmt.Printf("affected %d jobs\n", affected)
		return nil
	},
}
