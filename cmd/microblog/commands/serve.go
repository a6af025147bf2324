package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/d60-Lab/microblog/pkg/database"
	"github.com/d60-Lab/microblog/pkg/logger"
)

func NewServeCommand() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, cleanup, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if migrate {
				if err := database.Migrate(a.DB); err != nil {
					return err
				}
			}
			gin.SetMode(a.Config.Server.Mode)
			srv := &http.Server{
				Addr:              a.Config.Server.Port,
				Handler:           a.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", zap.String("addr", srv.Addr), zap.Bool("search", a.Search.Enabled()))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Auto-migrate tables before serving")
	return cmd
}
