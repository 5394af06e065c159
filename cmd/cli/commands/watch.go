package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracklab/relay/internal/api/v1/client"
	"github.com/tracklab/relay/internal/db/models"
)

func init() {
	watchCmd.Flags().String("batch", "", "Only watch jobs of this batch")
	watchCmd.Flags().Duration("interval", 2*time.Second, "How often to redraw the view")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow live job status from the event stream",
	RunE: func(cmd *cobra.Command, _ []string) error {
		batch, _ := cmd.Flags().GetString("batch")
		interval, _ := cmd.Flags().GetDuration("interval")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go func() {
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			cancel()
		}()

		observer := client.NewObserver(apiClient, client.ObserverOptions{
			ListOptions: &models.ListOptions{BatchID: batch},
			OnAnalysis: func(jobID string) {
				fmt.Printf("job %s ready for downstream analysis\n", jobID)
			},
		})

		// Seed the view before the stream starts delivering deltas
		jobs, err := apiClient.ListJobs(ctx, &models.ListOptions{BatchID: batch})
		if err != nil {
			return fmt.Errorf("error fetching initial view: %w", err)
		}
		observer.Tracker().Reset(jobs)

		go observer.Run(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				printView(observer.Tracker().Snapshot())
			}
		}
	},
}

func printView(views map[string]client.JobView) {
	ids := make([]string, 0, len(views))
	for id := range views {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Printf("--- %s ---\n", time.Now().Format("15:04:05"))
	for _, id := range ids {
		fmt.Printf("%s  %s\n", id, views[id])
	}
}
