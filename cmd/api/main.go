package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"Lee_Social/internal/handler"
	"Lee_Social/internal/middleware"
	"Lee_Social/internal/pkg"
	"Lee_Social/internal/repository/redis"
	"Lee_Social/internal/router"
	"Lee_Social/internal/service"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "social",
		Short:         "Social graph, feed and notification service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newReconcileCommand(), newTokenCommand())
	return root
}

func setup() (*app, error) {
	cfg := pkg.ConfigFromEnv()
	log, err := pkg.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	a, err := newApp(cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return a, nil
}

func newServeCommand() *cobra.Command {
	var withReconciler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()
			defer a.log.Sync()
			if err := a.cfg.Validate(); err != nil {
				a.log.Error("refusing to serve", zap.Error(err))
				return err
			}
			if a.cfg.JWTSecret == pkg.DefaultJWTSecret {
				a.log.Warn("using the default JWT secret, dev mode only")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a.runChangeFeed(ctx)
			if withReconciler {
				rec := service.NewGraphReconciler(a.store, a.services.Users, a.log, a.cfg.ReconcileInterval, a.cfg.ReconcileRPS)
				go rec.Run(ctx)
			}

			var sessions middleware.SessionChecker
			if s := a.sessions(); s != nil {
				sessions = s
			}
			r := router.InitRouter(a.services, pkg.NewTokenVerifier(a.cfg.JWTSecret), sessions, handler.NewLiveHandler(a.log))
			srv := &http.Server{Addr: a.cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

			errCh := make(chan error, 1)
			go func() {
				a.log.Info("http server listening", zap.String("addr", a.cfg.HTTPAddr), zap.String("store", a.cfg.StoreBackend))
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
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a.log.Info("shutting down")
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&withReconciler, "reconcile", false, "run the follow graph reconciler on an interval")
	return cmd
}

func newReconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one follow graph reconciliation sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()
			defer a.log.Sync()

			rec := service.NewGraphReconciler(a.store, a.services.Users, a.log, a.cfg.ReconcileInterval, a.cfg.ReconcileRPS)
			repairs, err := rec.ReconcileOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "repaired %d users\n", len(repairs))
			return nil
		},
	}
}

func newTokenCommand() *cobra.Command {
	var (
		ttl    time.Duration
		revoke bool
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a development access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := pkg.ConfigFromEnv()
			userID := args[0]

			// 开启会话校验时 token 需要登记到 redis 才能通过鉴权
			var sessions *redis.SessionRepository
			if cfg.SessionCheck && cfg.RedisAddr != "" {
				rdb, err := redis.Init(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
				if err != nil {
					return fmt.Errorf("connect redis: %w", err)
				}
				defer rdb.Close()
				sessions = redis.NewSessionRepository(rdb)
			}

			if revoke {
				if sessions == nil {
					return errors.New("session check is disabled, nothing to revoke")
				}
				return sessions.Delete(cmd.Context(), userID)
			}

			tok, err := pkg.NewTokenVerifier(cfg.JWTSecret).Issue(userID, ttl)
			if err != nil {
				return err
			}
			if sessions != nil {
				if err := sessions.Save(cmd.Context(), userID, tok); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", pkg.AccessTTL, "token lifetime")
	cmd.Flags().BoolVar(&revoke, "revoke", false, "drop the user's current session instead of issuing a token")
	return cmd
}
