package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/recurpay/internal/auth"
	"github.com/frahmantamala/recurpay/internal/billing"
	"github.com/frahmantamala/recurpay/internal/revenue"
	"github.com/frahmantamala/recurpay/internal/session"
	"github.com/frahmantamala/recurpay/internal/subscription"
	"github.com/frahmantamala/recurpay/internal/transport"
	"github.com/frahmantamala/recurpay/internal/transport/middleware"
	"github.com/frahmantamala/recurpay/internal/transport/rest"
	"github.com/frahmantamala/recurpay/internal/webhook"
	"github.com/frahmantamala/recurpay/pkg/logger"
)

var withWorker bool

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle merchant API requests and scheduler triggers`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

func init() {
	httpServerCmd.Flags().BoolVar(&withWorker, "with-worker", false, "also run the in-process cron worker")
}

func startHTTPServer() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	router, err := setupRoutes(ctx, deps)
	if err != nil {
		deps.Logger.Error("failed to set up routes", "error", err)
		os.Exit(1)
	}

	if withWorker {
		runner, err := newCronRunner(deps)
		if err != nil {
			deps.Logger.Error("failed to schedule worker", "error", err)
			os.Exit(1)
		}
		runner.Start()
		defer func() { <-runner.Stop().Done() }()
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		deps.Logger.Info("Received signal, shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("Server failed to start", "error", err)
			return
		}
	}

	deps.Logger.Info("Server stopped")
}

func setupRoutes(ctx context.Context, deps *Dependencies) (*chi.Mux, error) {
	base := transport.NewBaseHandler(logger.Component("http"))

	routeDeps := rest.RouteDependencies{
		Health:        rest.NewHealthHandler(deps.DB, deps.Redis),
		MerchantAuth:  auth.NewAPIKeyAuthenticator(deps.Organizations, base, deps.Logger).Middleware,
		TriggerAuth:   auth.NewTriggerAuthenticator(deps.Config.Security.CronSecret, base, deps.Logger).Middleware,
		Subscriptions: subscription.NewHandler(base, deps.Subscriptions),
		Sessions:      session.NewHandler(base, deps.Sessions),
		Webhooks:      webhook.NewHandler(base, deps.Webhooks),
		Billing:       billing.NewHandler(base, deps.Billing),
		Revenue:       revenue.NewHandler(base, deps.Revenue),
		Logger:        deps.Logger,
	}

	if path := deps.Config.Server.OpenAPIPath; path != "" {
		doc, err := middleware.LoadOpenAPI(ctx, path)
		if err != nil {
			return nil, err
		}
		validator, err := middleware.OpenAPIValidator(doc, base)
		if err != nil {
			return nil, err
		}
		routeDeps.OpenAPIPath = path
		routeDeps.OpenAPI = validator
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, routeDeps)
	return router, nil
}
