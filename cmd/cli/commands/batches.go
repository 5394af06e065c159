package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tracklab/relay/internal/db/models"
)

// batchOutput represents the filtered output for a batch
type batchOutput struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
	IsActive  bool   `json:"is_active"`
}

func init() {
	batchesCmd.AddCommand(listBatchesCmd)
	batchesCmd.AddCommand(getBatchCmd)
	batchesCmd.AddCommand(restartBatchCmd)
	batchesCmd.AddCommand(archiveBatchCmd)
	batchesCmd.AddCommand(toggleBatchCmd)

	listBatchesCmd.Flags().IntP("limit", "l", 0, "Limit the number of batches returned")
	listBatchesCmd.Flags().String("status", "", "Filter batches by status")
}

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "Manage batches",
}

var listBatchesCmd = &cobra.Command{
	Use:   "list",
	Short: "List batches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		status, _ := cmd.Flags().GetString("status")

		batches, err := apiClient.ListBatches(context.Background(), &models.ListOptions{
			Limit:  limit,
			Status: status,
		})
		if err != nil {
			return fmt.Errorf("error fetching batches: %w", err)
		}

		output := make([]batchOutput, 0, len(batches))
		for _, b := range batches {
			output = append(output, batchOutput{
				ID:        b.ID,
				Name:      b.Name,
				Status:    b.Status.String(),
				Total:     b.TotalJobs,
				Completed: b.CompletedJobs,
				Failed:    b.FailedJobs,
				IsActive:  b.IsActive,
			})
		}
		return printJSON(output)
	},
}

var getBatchCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Fetch one batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		batch, err := apiClient.GetBatch(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("error fetching batch: %w", err)
		}
		return printJSON(batch)
	},
}

var restartBatchCmd = &cobra.Command{
	Use:   "restart <id>",
	Short: "Reset every member job of a batch to pending",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if err := apiClient.RestartBatch(context.Background(), args[0]); err != nil {
			return fmt.Errorf("error restarting batch: %w", err)
		}
		fmt.Println("restarted")
		return nil
	},
}

var archiveBatchCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Hide a batch from default listings",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if err := apiClient.ArchiveBatch(context.Background(), args[0]); err != nil {
			return fmt.Errorf("error archiving batch: %w", err)
		}
		fmt.Println("archived")
		return nil
	},
}

var toggleBatchCmd = &cobra.Command{
	Use:   "toggle-active <id>",
	Short: "Flip a batch's UI-focus bit",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if err := apiClient.ToggleBatchActive(context.Background(), args[0]); err != nil {
			return fmt.Errorf("error toggling batch: %w", err)
		}
		fmt.Println("toggled")
		return nil
	},
}
