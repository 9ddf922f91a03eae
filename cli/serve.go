package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"socialgraph/api/handlers"
	"socialgraph/api/middleware"
	"socialgraph/api/routes"
	"socialgraph/config"
	"socialgraph/db"
	"socialgraph/pkg/logger"
	"socialgraph/services"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type ServeOptions struct {
	*RootOptions
	SkipMigrate bool
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := bootstrap(opts.ConfigPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, conf, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.SkipMigrate, "skip-migrate", false, "do not migrate the schema on start")
	return cmd
}

// app is everything serve wires together
type app struct {
	router    *gin.Engine
	publisher *services.RabbitPublisher
	events    *services.EventQueue
}

// close drains pending events before the broker connection goes away
func (a *app) close() {
	if a.events != nil {
		a.events.Close()
	}
	if a.publisher != nil {
		_ = a.publisher.Close()
	}
	_ = services.CloseRedis()
}

func serve(ctx context.Context, conf *config.ConfigSchema, opts *ServeOptions) error {
	if err := db.ConnectDB(conf); err != nil {
		return err
	}
	defer func() { _ = db.CloseDB() }()

	if !opts.SkipMigrate {
		if err := db.Migrate(db.ORM); err != nil {
			return err
		}
	}

	a, err := buildApp(conf)
	if err != nil {
		return err
	}
	defer a.close()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", conf.Backend.Host, conf.Backend.Port),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Get().Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Get().Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildApp connects the optional backends and assembles the router.
// Redis and RabbitMQ are used only when configured.
func buildApp(conf *config.ConfigSchema) (*app, error) {
	if conf.Logs.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	var (
		cache     services.FriendsCache
		throttle  middleware.RateLimiter
		events    services.EventPublisher
		publisher *services.RabbitPublisher
		queue     *services.EventQueue
	)
	if conf.RedisEnabled() {
		if err := services.InitRedis(conf); err != nil {
			return nil, err
		}
		cache = services.NewRedisFriendsCache(services.RedisClient, conf.Redis.FriendsCacheTTL)
		throttle = services.NewRedisRateLimiter(services.RedisClient, conf.Throttle.FriendRequestsPerMinute, time.Minute)
	} else {
		logger.Get().Warn("redis not configured, friends cache and send throttle disabled")
	}
	if conf.RabbitMQEnabled() {
		p, err := services.InitRabbitMQ(conf.RabbitMQ.URL, conf.RabbitMQ.Exchange)
		if err != nil {
			_ = services.CloseRedis()
			return nil, err
		}
		publisher = p
		queue = services.NewEventQueue(p, services.EventQueueWorkerCount, services.EventQueueSize)
		queue.StartWorkers(context.Background())
		events = queue
	}

	users := services.NewUserStore()
	auth := services.NewAuthService(users, services.NewTokenIssuer(conf.Auth.Secret, conf.Auth.TokenTTL))
	h := handlers.New(
		services.NewFriendService(users, cache, events),
		services.NewSearchService(users, conf.Search.DefaultPageSize, conf.Search.MaxPageSize),
		auth,
		users,
	)

	routeOpts := routes.Options{
		Auth:          auth,
		SendThrottle:  throttle,
		CORSOrigins:   conf.Backend.CORSOrigins,
		HealthChecker: healthCheck,
	}
	if queue != nil {
		routeOpts.EventStats = queue.GetStats
	}
	router := routes.NewRouter(h, routeOpts)
	return &app{router: router, publisher: publisher, events: queue}, nil
}

func healthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sqlDB, err := db.ORM.DB()
	if err != nil {
		return err
	}
	if err = sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if services.RedisClient != nil {
		if err = services.RedisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}
