package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/iqfetch/internal/config"
	"github.com/xkilldash9x/iqfetch/internal/fetcher"
	"github.com/xkilldash9x/iqfetch/internal/iqserver"
	"github.com/xkilldash9x/iqfetch/internal/observability"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch every application's latest report and consolidate into one CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		logger := observability.GetLogger()

		client := iqserver.NewClient(cfg.Server.URL, cfg.Server.Username, cfg.Server.Password, logger)
		f := fetcher.New(client, fetcher.Options{
			OutputDir:      cfg.Fetch.OutputDir,
			OrganizationID: cfg.Server.OrganizationID,
			Workers:        cfg.Fetch.Workers,
		}, logger)

		return f.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}
