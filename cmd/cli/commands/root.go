package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tracklab/relay/internal/api/v1/client"
	"github.com/tracklab/relay/internal/api/v1/routes"
)

// flag names
const (
	flagServerAddress = "server-address"
)

// environment variable names
const (
	envServerAddress = "RELAY_SERVER_ADDRESS"
)

var (
	// apiClient is the shared API client instance
	apiClient *client.APIClient
	// serverAddress holds the target API server address. Flag parsing sets this.
	serverAddress string
)

// initClient initializes the API client
func initClient() error {
	opts := client.DefaultOptions()
	opts.BaseURL = serverAddress

	var err error
	apiClient, err = client.NewClient(opts)
	return err
}

func init() {
	RootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		if env := os.Getenv(envServerAddress); env != "" && !RootCmd.PersistentFlags().Changed(flagServerAddress) {
			serverAddress = env
		}
		return initClient()
	}

	RootCmd.PersistentFlags().StringVarP(&serverAddress, flagServerAddress, "s",
		routes.DefaultBaseURL, "Address of the relay API server (env: RELAY_SERVER_ADDRESS)")

	RootCmd.AddCommand(jobsCmd)
	RootCmd.AddCommand(batchesCmd)
	RootCmd.AddCommand(adminCmd)
	RootCmd.AddCommand(watchCmd)
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay CLI - manage transformation jobs and batches",
	Long:  `Relay CLI is a command line tool for managing transformation jobs and batches and for watching their live progress.`,
}
