package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/e7canasta/vantage-xr/compositor"
	"github.com/e7canasta/vantage-xr/display"
	"github.com/e7canasta/vantage-xr/frametiming"
)

var serveViper = viper.New()

// serveCmd is the `vantaged serve` command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the compositor render loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return serve(cmd.Context())
	},
}

func serve(parent context.Context) error {
	log := logrus.StandardLogger()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := display.New(display.Config{
		RefreshHz: serveViper.GetFloat64("refresh-hz"),
		Adaptive:  serveViper.GetString("timing") == "display",
		Logger:    log,
		OnFrameComplete: func(r frametiming.FrameReport) {
			if r.Missed {
				log.WithFields(logrus.Fields{
					"frame_id": r.FrameID,
					"late_ms":  float64(r.ActualPresentTimeNs-r.DesiredPresentTimeNs) / 1e6,
				}).Warn("frame missed")
			}
		},
	})
	if err != nil {
		return err
	}

	sys := compositor.NewSystem(log, nil)
	loop := compositor.NewLoop(sys, backend)

	exitOnDisconnect := serveViper.GetBool("exit-on-disconnect")
	statsEvery := serveViper.GetDuration("stats-interval")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := loop.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		ticker := time.NewTicker(statsEvery)
		defer ticker.Stop()

		sawClients := false
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}

			st := sys.Stats()
			ls := loop.Stats()
			log.WithFields(logrus.Fields{
				"clients":   st.Clients,
				"frames":    ls.FramesComposited,
				"layers":    ls.LayersSubmitted,
				"skipped":   ls.LayersSkipped,
				"abandoned": ls.FramesAbandoned,
			}).Info("compositor stats")

			if st.Clients > 0 {
				sawClients = true
			}
			if exitOnDisconnect && sawClients && st.Clients == 0 {
				log.Info("last client disconnected, exiting")
				stop()
				return nil
			}
		}
	})

	log.Info("vantaged serving")
	return g.Wait()
}

func init() {
	serveCmd.Flags().Float64("refresh-hz", 60, "simulated display refresh rate")
	serveCmd.Flags().String("timing", "display", "timing mode: display (adaptive) or fake")
	serveCmd.Flags().Duration("stats-interval", 5*time.Second, "how often to log compositor stats")
	serveCmd.Flags().Bool("exit-on-disconnect", false, "exit when the last client disconnects")

	serveViper.SetEnvPrefix("vantaged")
	serveViper.AutomaticEnv()
	if err := serveViper.BindPFlags(serveCmd.Flags()); err != nil {
		logrus.WithError(err).Fatal("failed to set up serve flags")
	}

	rootCmd.AddCommand(serveCmd)
}
