package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/wb-go/wbf/zlog"

	renditionapi "github.com/quillcms/renditions/internal/api/handlers/rendition"
	"github.com/quillcms/renditions/internal/api/router"
	"github.com/quillcms/renditions/internal/api/server"
	"github.com/quillcms/renditions/internal/config"
	"github.com/quillcms/renditions/internal/janitor"
	"github.com/quillcms/renditions/internal/scheduler"
	"github.com/quillcms/renditions/internal/service/rendition"
	"github.com/quillcms/renditions/internal/source"
	"github.com/quillcms/renditions/internal/store"
	"github.com/quillcms/renditions/internal/token"
)

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:           "renditiond",
		Short:         "On-demand image rendition service with an on-disk cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config/config.yml", "path to configuration file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP service and the periodic cache janitor",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(cfgPath)
			},
		},
		&cobra.Command{
			Use:   "sweep",
			Short: "Expire stale renditions once and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return sweep(cfgPath)
			},
		},
	)

	if err := root.Execute(); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("command failed")
	}
}

func serve(cfgPath string) error {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog.Init()
	cfg := config.MustLoad(cfgPath)

	// Assemble the rendition engine: registry, store, scheduler, signer.
	reg := source.NewRegistry()
	st := store.New(cfg.Cache.Root, cfg.Cache.Subdir)
	sched := scheduler.New(st, cfg.Render.Workers, cfg.Render.DefaultFilter)
	signer := token.NewSigner(cfg.Token.Secret)

	svc := rendition.New(reg, sched, st, signer, rendition.Options{
		StaticURLPath: cfg.Server.StaticURLPath,
		AsyncURLPath:  cfg.Server.AsyncURLPath,
	})

	h := renditionapi.NewHandler(svc, cfg.Server.AsyncURLPath, cfg.Render.RetryCeiling, cfg.Render.PollDelay)
	r := router.Setup(h, cfg.Server.StaticURLPath, cfg.Cache.Root, cfg.Server.AsyncURLPath)
	s := server.New(cfg.Server.HTTPPort, r)

	// Periodic cache sweeps run on the shared render pool. Joined before
	// the pool closes so no sweep submits to a closed scheduler.
	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		svc.RunJanitor(ctx, cfg.Cache.SweepInterval, cfg.Cache.MaxAge)
	}()

	go func() {
		zlog.Logger.Info().Str("addr", cfg.Server.HTTPPort).Msg("starting server")
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}

	// Let in-flight render jobs finish.
	<-janitorDone
	sched.Close()
	return nil
}

func sweep(cfgPath string) error {
	zlog.Init()
	cfg := config.MustLoad(cfgPath)

	st := store.New(cfg.Cache.Root, cfg.Cache.Subdir)
	n := janitor.Sweep(st.CacheDir(), cfg.Cache.MaxAge)
	zlog.Logger.Info().Int("removed", n).Str("dir", st.CacheDir()).Msg("cache sweep finished")
	return nil
}
