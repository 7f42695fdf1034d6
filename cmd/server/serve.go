package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"
	"v4corner/internal/config"
	"v4corner/internal/db"
	"v4corner/internal/middleware"
	"v4corner/internal/ratelimit"
	"v4corner/internal/router"
	"v4corner/internal/services"
	"v4corner/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

// newEngine wires the services and routes on a fresh gin engine.
func newEngine(ctx context.Context, cfg *config.Config) (*gin.Engine, error) {
	// 评论频率限制（进程内存，单实例部署）
	gate, err := ratelimit.NewMemoryGate(cfg.Comment.RateLimit, cfg.RateGateCapacity)
	if err != nil {
		return nil, err
	}

	// 计数器校对：后台队列 + 每日定时全量
	reconciler := services.NewReconciler(db.DB, cfg.ReconcileHour)
	reconciler.Start(ctx)
	reconciler.StartScheduled(ctx, runtime.NumCPU())

	cache := utils.GetCache()
	notifier := services.NewNotifier(cache)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	r.Use(sessions.Sessions("v4corner_session", store))
	r.Use(middleware.LoadUser(db.DB))
	r.Use(middleware.RequestLogger())

	router.RegisterRoutes(r, router.Deps{
		DB:                 db.DB,
		Comments:           services.NewCommentService(db.DB, gate, notifier, cfg.Comment),
		Likes:              services.NewLikeService(db.DB, notifier, reconciler),
		Favorites:          services.NewFavoriteService(db.DB, notifier, reconciler),
		Folders:            services.NewFolderService(db.DB),
		Notifications:      services.NewNotificationService(db.DB, cache),
		CommentPageSizeMax: cfg.Comment.PageSizeMax,
	})
	return r, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := db.Init(cfg); err != nil {
		return err
	}
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	r, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
