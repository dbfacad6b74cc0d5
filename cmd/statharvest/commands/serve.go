package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"statharvest/internal/web"
	"statharvest/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the stored documents over HTTP.",
	Run: func(cmd *cobra.Command, args []string) {
		listen := env.cfg.Listen
		if cmd.Flags().Changed("listen") {
			listen, _ = cmd.Flags().GetString("listen")
		}

		store := openStore(cmd)
		defer store.Close()

		server := &http.Server{
			Addr:              listen,
			Handler:           web.NewHandler(store, env.tel).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-cmd.Context().Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := server.Shutdown(ctx)
			if err != nil {
				slog.Warn("failed to shut down server", "err", err)
			}
		}()

		slog.Info("listening", "addr", listen)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serviceutil.Fatal("failed to serve", err)
		}
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "Address to listen on.")
	serveCmd.Flags().StringVar(&storeFlag, "store", "", "sqlite file to use instead of the configured store.")
	rootCmd.AddCommand(serveCmd)
}
