package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	stdhttp "net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"

	"jazzfeed/internal/cache"
	"jazzfeed/internal/config"
	"jazzfeed/internal/database"
	"jazzfeed/internal/docstore"
	"jazzfeed/internal/firebase"
	"jazzfeed/internal/handler"
	"jazzfeed/internal/queue"
	"jazzfeed/internal/redis"
	"jazzfeed/internal/repository"
	"jazzfeed/internal/service"
	"jazzfeed/internal/telemetry"
	authmw "jazzfeed/internal/transport/http/middleware"
	"jazzfeed/internal/worker"
)

const shutdownTimeout = 15 * time.Second

// cleanups run in reverse order on shutdown.
type cleanups []func()

func (c *cleanups) add(fn func()) { *c = append(*c, fn) }

func (c cleanups) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var closers cleanups
	defer func() { closers.run() }()

	// 2. Tracing
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, cfg.AppEnv)
	if err != nil {
		return fmt.Errorf("failed to init tracer: %w", err)
	}
	closers.add(func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			log.Printf("[Server] tracer shutdown: %v", err)
		}
	})

	// 3. Firebase (document store and/or token verification)
	var fbApp *firebase.App
	if cfg.DocstoreBackend == config.BackendFirestore || cfg.AuthProvider == config.AuthFirebase {
		fbApp, err = firebase.NewApp(ctx, cfg.FirebaseProjectID, cfg.FirebaseClientEmail, cfg.FirebasePrivateKey)
		if err != nil {
			return err
		}
	}

	// 4. Document store
	store, err := openStore(ctx, cfg, fbApp, &closers)
	if err != nil {
		return err
	}
	store = docstore.RetryReads(store, docstore.RetryPolicy{
		Attempts:  cfg.ReadRetryAttempts,
		BaseDelay: cfg.ReadRetryBaseDelay,
	})

	// 5. Redis (event stream + feed cache)
	var redisClient *goredis.Client
	if cfg.RedisURL != "" {
		rc, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to create redis client: %w", err)
		}
		if err := rc.Ping(ctx); err != nil {
			rc.Close()
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		closers.add(func() { rc.Close() })
		redisClient = rc.Client
		log.Println("[Server] Connected to Redis")
	}

	// 6. Repositories and services
	graph := repository.NewGraphStore(store)
	posts := repository.NewPostStore(store)

	var feedCache cache.FeedCache
	if redisClient != nil {
		feedCache = cache.NewFeedCache(redisClient)
	}
	feedService := service.NewFeedService(graph, posts)
	loader := service.NewFeedLoader(feedService, feedCache)
	hub := service.NewFeedHub(store, loader)

	var natsConn *nats.Conn
	if cfg.EventBus == config.BusNATS {
		natsConn, err = nats.Connect(cfg.NatsURL, nats.Name("jazzfeed"))
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		closers.add(func() { natsConn.Close() })
		log.Printf("[Server] Connected to NATS at %s", cfg.NatsURL)
	}

	// Change events keep caches and live sessions current.
	eventHandler := worker.NewHandler(hub, graph, graph)

	var publisher queue.Publisher
	switch cfg.EventBus {
	case config.BusRedis:
		publisher = queue.NewPublisher(redisClient)
	case config.BusNATS:
		publisher = queue.NewNatsPublisher(natsConn)
	default:
		local := queue.NewLocalPublisher(eventHandler)
		closers.add(local.Wait)
		publisher = local
		log.Println("[Server] EVENT_BUS=none: events are handled in-process; other instances never see them")
	}

	var mediaService *service.MediaService
	mediaBaseURL := ""
	if cfg.MediaEnabled() {
		mediaService, err = service.NewMediaService(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to init media service: %w", err)
		}
		mediaBaseURL = mediaService.PublicBaseURL()
	}

	followService := service.NewFollowService(graph, publisher)
	profileService := service.NewProfileService(graph, posts, feedService, publisher)
	engagementService := service.NewEngagementService(posts, publisher)
	postService := service.NewPostService(posts, publisher, mediaBaseURL)

	// 7. Background consumers
	switch cfg.EventBus {
	case config.BusRedis:
		managerCfg := worker.DefaultManagerConfig()
		managerCfg.WorkerCount = cfg.WorkerCount
		manager := worker.NewManager(queue.NewConsumer(redisClient), eventHandler, managerCfg)
		if err := manager.Start(ctx); err != nil {
			return fmt.Errorf("failed to start workers: %w", err)
		}
		closers.add(manager.Stop)
	case config.BusNATS:
		unsubscribe, err := queue.NewNatsSubscriber(natsConn, eventHandler).Subscribe(queue.StreamFeed, queue.ConsumerGroupFeed)
		if err != nil {
			return err
		}
		closers.add(unsubscribe)
	}

	// 8. Auth
	verifier, err := newVerifier(ctx, cfg, fbApp)
	if err != nil {
		return err
	}

	limiter := authmw.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup()
			}
		}
	}()

	// 9. Router
	router := NewRouter(RouterConfig{
		UserHandler:    handler.NewUserHandler(profileService),
		FollowHandler:  handler.NewFollowHandler(followService),
		FeedHandler:    handler.NewFeedHandler(loader, hub),
		PostHandler:    handler.NewPostHandler(postService, engagementService),
		CommentHandler: handler.NewCommentHandler(engagementService),
		MediaHandler:   handler.NewMediaHandler(mediaService),
		Verifier:       verifier,
		RateLimiter:    limiter,
	})

	// 10. Serve until a signal arrives
	srv := &stdhttp.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Server] Listening on %s (backend=%s bus=%s auth=%s)",
			srv.Addr, cfg.DocstoreBackend, cfg.EventBus, cfg.AuthProvider)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("[Server] Shutting down...")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Println("[Server] Stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, fbApp *firebase.App, closers *cleanups) (docstore.Store, error) {
	switch cfg.DocstoreBackend {
	case config.BackendFirestore:
		client, err := fbApp.Firestore(ctx)
		if err != nil {
			return nil, err
		}
		closers.add(func() { client.Close() })
		log.Printf("[Server] Using Firestore project=%s", cfg.FirebaseProjectID)
		return docstore.NewFirestoreStore(client), nil

	case config.BackendPostgres:
		db, err := database.Connect(cfg)
		if err != nil {
			return nil, err
		}
		closers.add(func() { db.Close() })
		store := docstore.NewPostgresStore(db, database.DSN(cfg))
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare schema: %w", err)
		}
		closers.add(func() { store.Close() })
		return store, nil

	default:
		log.Println("[Server] Using in-memory document store; data is lost on exit")
		return docstore.NewMemoryStore(), nil
	}
}

func newVerifier(ctx context.Context, cfg *config.Config, fbApp *firebase.App) (authmw.TokenVerifier, error) {
	if cfg.AuthProvider == config.AuthFirebase {
		client, err := fbApp.Auth(ctx)
		if err != nil {
			return nil, err
		}
		return authmw.NewFirebaseVerifier(client), nil
	}
	return authmw.NewJWTVerifier(cfg.JWTSecret), nil
}
