package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tracklab/relay/internal/db/models"
)

// jobOutput represents the filtered output for a job
type jobOutput struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Batch  string `json:"batch,omitempty"`
}

func init() {
	jobsCmd.AddCommand(listJobsCmd)
	jobsCmd.AddCommand(getJobCmd)
	jobsCmd.AddCommand(restartJobCmd)
	jobsCmd.AddCommand(cancelJobCmd)
	jobsCmd.AddCommand(deleteJobCmd)

	listJobsCmd.Flags().IntP("limit", "l", 0, "Limit the number of jobs returned")
	listJobsCmd.Flags().String("status", "", "Filter jobs by status")
	listJobsCmd.Flags().String("batch", "", "Filter jobs by batch id")
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage jobs",
}

var listJobsCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		status, _ := cmd.Flags().GetString("status")
		batch, _ := cmd.Flags().GetString("batch")

		jobs, err := apiClient.ListJobs(context.Background(), &models.ListOptions{
			Limit:   limit,
			Status:  status,
			BatchID: batch,
		})
		if err != nil {
			return fmt.Errorf("error fetching jobs: %w", err)
		}

		output := make([]jobOutput, 0, len(jobs))
		for _, job := range jobs {
			output = append(output, jobOutput{
				ID:     job.ID,
				Name:   job.Name,
				Status: job.Status.String(),
				Batch:  job.BatchID,
			})
		}
		return printJSON(output)
	},
}

var getJobCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Fetch one job",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		job, err := apiClient.GetJob(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("error fetching job: %w", err)
		}
		return printJSON(job)
	},
}

var restartJobCmd = &cobra.Command{
	Use:   "restart <id>",
	Short: "Reset a job to pending",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if err := apiClient.RestartJob(context.Background(), args[0]); err != nil {
			return fmt.Errorf("error restarting job: %w", err)
		}
		fmt.Println("restarted")
		return nil
	},
}

var cancelJobCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if err := apiClient.CancelJob(context.Background(), args[0]); err != nil {
			return fmt.Errorf("error cancelling job: %w", err)
		}
		fmt.Println("cancelled")
		return nil
	},
}

var deleteJobCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Hard-delete a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if err := apiClient.DeleteJob(context.Background(), args[0]); err != nil {
			return fmt.Errorf("error deleting job: %w", err)
		}
		fmt.Println("deleted")
		return nil
	},
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
