package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	api "github.com/lmvdz/solana-pay/http"
	"github.com/lmvdz/solana-pay/mechanisms/candymachine"
	"github.com/lmvdz/solana-pay/merchant"
	"github.com/lmvdz/solana-pay/payurl"
	"github.com/lmvdz/solana-pay/pkg/config"
	"github.com/lmvdz/solana-pay/pkg/metrics"
)

const shutdownTimeout = 30 * time.Second

func createServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the checkout API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	return cmd
}

// newMerchant wires the checkout service from configuration.
func newMerchant(cfg *config.Config, ledger Ledger, opts ...merchant.Option) (*merchant.Service, error) {
	recipient, err := payurl.ParseAccount(cfg.Merchant.Recipient)
	if err != nil {
		return nil, fmt.Errorf("invalid merchant recipient: %w", err)
	}
	opts = append([]merchant.Option{merchant.WithInventoryProgram(candymachine.New(ledger))}, opts...)
	return merchant.New(ledger, merchant.Config{
		Recipient:    recipient,
		Label:        cfg.Merchant.Label,
		Commitment:   cfg.Commitment(),
		PollInterval: cfg.Merchant.PollInterval,
		PollTimeout:  cfg.Merchant.PollTimeout,
		ReceiptTTL:   cfg.Merchant.ReceiptTTL,
	}, opts...), nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := cfg.Logging.NewLogger(os.Stderr)
	logger.Info("starting solanapay server", "cluster", cfg.Ledger.Cluster, "commitment", cfg.Ledger.Commitment)

	metrics.Init(cfg.Metrics.Enabled, "solanapay")

	ledger, err := newLedger(cfg)
	if err != nil {
		return fmt.Errorf("connecting to ledger: %w", err)
	}
	svc, err := newMerchant(cfg, ledger, merchant.WithLogger(logger))
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      api.NewServer(svc, api.WithLogger(logger)).Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for interrupt signal
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
