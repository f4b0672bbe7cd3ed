package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/techie-mohit/videoCalling/internal/callerr"
	"github.com/techie-mohit/videoCalling/internal/signalclient"
	"github.com/techie-mohit/videoCalling/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show occupied rooms on the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(flags)
		if err != nil {
			return err
		}

		stopSpinner := ui.RunSpinner("Fetching server stats...")
		stats, err := signalclient.NewAPI(cfg.HTTPURL, cfg.Token).Stats(cmd.Context())
		stopSpinner()
		if err != nil {
			return callerr.New("fetch stats", err)
		}

		fmt.Println(ui.StatsView(stats))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
