package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/truemediaorg/postrelay/service"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func init() {
	rootCmd.AddCommand(serverCmd)
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Runs the postrelay HTTP API",
	Long:  `Runs the postrelay HTTP API: post resolution, media streaming and zip bundling`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		/*
			Graceful shutdown is possible with errgroup + signal.NotifyContext
			NotifyContext returns a context that will close on OS signals to terminate the process
			errgroup uses that context, and also closes it in case a goroutine errors out
		*/
		ctx, done := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer done()
		g, gCtx := errgroup.WithContext(ctx)

		c := buildComponents(gCtx, cfg)

		var activity service.ActivityRecorder = service.NoopActivity{}
		if database := connectDatabase(gCtx, cfg, c.secrets); database != nil {
			defer database.Disconnect()
			activity = database
			log.Info("activity log enabled")
		}

		api := service.NewAPI(c.resolver, c.relay, activity)
		server := &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", cfg.ServerPort),
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			log.Infof("listening on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		// ...and shut down the server once we are told to terminate. In-flight streams get
		// shutdownTimeout to finish.
		g.Go(func() error {
			<-gCtx.Done()
			defer log.Info("exiting server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})

		if err := g.Wait(); err != nil {
			log.Errorf("caught error: %v", err)
		}
		// let pending activity writes land before the database is closed
		api.Wait()
	},
}
