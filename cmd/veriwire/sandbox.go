package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-go-golems/veriwire/pkg/bank/sandbox"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newSandboxCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "bank-sandbox",
		Short: "Serve an in-memory banking API seeded with demo payments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHTTP(cmd.Context(), newSandboxServer(addr))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8000", "listen address")
	return cmd
}

func newSandboxServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           sandbox.NewHandler(sandbox.NewSeededLedger(time.Now())),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func runHTTP(ctx context.Context, srv *http.Server) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("bank sandbox listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}
