package cmd

import (
	"context"
	"encoding/json"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/truemediaorg/postrelay/model"
)

var (
	resolvePrefer string
	resolveAll    bool
)

func init() {
	resolveCmd.Flags().StringVar(&resolvePrefer, "prefer", "", "carousel item preference: any, image or video")
	resolveCmd.Flags().BoolVar(&resolveAll, "all", false, "return every carousel item")
	rootCmd.AddCommand(resolveCmd)
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <url>",
	Short: "Resolves an Instagram post URL and prints its downloadable assets",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		ctx := context.Background()

		preference, err := model.ParsePreference(resolvePrefer)
		if err != nil {
			log.Fatal(err)
		}
		selection := model.SelectOne(preference)
		if resolveAll {
			selection = model.SelectAll()
		}

		// One-off lookups don't need pacing
		cfg.Instagram.PacingInterval = 0
		c := buildComponents(ctx, cfg)

		result, err := c.resolver.Resolve(ctx, args[0], selection)
		if err != nil {
			log.Fatalf("%s: %s", model.ClassOf(err), err)
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(result); err != nil {
			log.Fatal(err)
		}
	},
}
