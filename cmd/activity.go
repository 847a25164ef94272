package cmd

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/truemediaorg/postrelay/instagram"
)

var (
	activityLimit  int
	activityRelays bool
)

func init() {
	activityCmd.Flags().IntVar(&activityLimit, "limit", 20, "number of entries to list")
	activityCmd.Flags().BoolVar(&activityRelays, "relays", false, "list streamed downloads instead of resolutions")
	rootCmd.AddCommand(activityCmd)
}

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Lists the most recent resolutions or streamed downloads from the activity log",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		ctx := context.Background()

		if !cfg.ActivityLogEnabled() {
			log.Fatal("no activity log configured; set POSTGRES_URL or POSTGRES_SECRETS_PATH")
		}
		database := connectDatabase(ctx, cfg, newSecretsClient(ctx, cfg))
		defer database.Disconnect()

		if activityRelays {
			relays, err := database.GetRecentRelays(ctx, activityLimit)
			if err != nil {
				log.Fatalf("error reading activity log: %v", err)
			}
			for _, r := range relays {
				fmt.Printf("%s  %-7s written=%d omitted=%d bytes=%d  %s  %s\n",
					r.Relayed.Local().Format(time.DateTime),
					r.Mode,
					r.EntriesWritten,
					r.EntriesOmitted,
					r.Bytes,
					r.Outcome,
					r.Filename,
				)
			}
			return
		}

		activities, err := database.GetRecentResolutions(ctx, activityLimit)
		if err != nil {
			log.Fatalf("error reading activity log: %v", err)
		}
		for _, a := range activities {
			fmt.Printf("%s  %-3s %-14s assets=%d  %-17s %s\n",
				a.Resolved.Local().Format(time.DateTime),
				a.Selection.Mode,
				a.Selection.Preference,
				a.AssetCount,
				a.Outcome,
				instagram.ConstructPostURL(a.Identifier),
			)
		}
	},
}
