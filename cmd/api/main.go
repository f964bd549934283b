package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/auth"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/config"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/contest"
	contestrepo "github.com/ovaphlow/pitchfork/service-coach-crm/internal/contest/repo"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/hierarchy"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/person"
	personrepo "github.com/ovaphlow/pitchfork/service-coach-crm/internal/person/repo"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/resource"
	resourcerepo "github.com/ovaphlow/pitchfork/service-coach-crm/internal/resource/repo"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/router"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/stats"
	"github.com/ovaphlow/pitchfork/service-coach-crm/pkg/database"
	"github.com/ovaphlow/pitchfork/service-coach-crm/pkg/utilities"
)

// stores groups the repositories for the selected driver.
type stores struct {
	people    person.Store
	contests  contest.Store
	resources resource.Store
}

func openPostgres(ctx context.Context, cfg config.App) (*sqlx.DB, stores, error) {
	db, err := database.Connect(database.Config{
		DSN:            cfg.DatabaseURL,
		MaxConns:       cfg.DatabaseMaxConns,
		Timeout:        cfg.DatabaseTimeout,
		TimeZone:       cfg.DatabaseTimeZone,
		ClientEncoding: cfg.DatabaseClientEncoding,
	})
	if err != nil {
		return nil, stores{}, err
	}
	people := personrepo.NewPersonRepo(db)
	contests := contestrepo.NewContestRepo(db)
	resources := resourcerepo.NewRepo(db)
	for name, ensure := range map[string]func(context.Context) error{
		"people":    people.EnsureTable,
		"contests":  contests.EnsureTable,
		"resources": resources.EnsureTable,
	} {
		if err := ensure(ctx); err != nil {
			db.Close()
			return nil, stores{}, fmt.Errorf("ensure %s table: %w", name, err)
		}
	}
	return db, stores{people: people, contests: contests, resources: resources}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// init logger
	lg, err := utilities.Init(cfg.Logger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Infow("starting service-coach-crm", "store", cfg.StoreDriver, "addr", cfg.HTTPAddr)

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sqlx.DB
	var st stores
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		sugar.Warn("using in-memory store; data is lost on exit")
		st = stores{
			people:    personrepo.NewMemoryRepo(),
			contests:  contestrepo.NewMemoryRepo(),
			resources: resourcerepo.NewMemoryRepo(),
		}
	default:
		db, st, err = openPostgres(ctx, cfg)
		if err != nil {
			sugar.Fatalf("db connect: %v", err)
		}
		defer db.Close()
	}

	handler := router.RegisterRoutes(sugar, wire(cfg, st, sugar))
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// run server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Info("service is running; press Ctrl+C to stop")

	<-ctx.Done()

	sugar.Info("shutting down")

	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if db != nil {
		if err := db.PingContext(doneCtx); err != nil {
			sugar.Warnf("db ping on shutdown failed: %v", err)
		}
	}

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}

// wire builds the services over st. One resolver is shared by the stitcher,
// contest listing and the resource library.
func wire(cfg config.App, st stores, sugar *zap.SugaredLogger) router.Handlers {
	resolver := hierarchy.NewResolver(st.people, sugar.Named("hierarchy"), cfg.HierarchyMaxHops)
	stitcher := hierarchy.NewStitcher(st.people, resolver, sugar.Named("stitcher"))
	ids := utilities.NewIDGenerator(cfg.SnowflakeNode)

	return router.Handlers{
		Verifier: auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		Person:   person.NewHandler(person.NewService(st.people, resolver, stitcher, ids, sugar.Named("person")), sugar),
		Stats:    stats.NewHandler(stats.NewEngine(st.people, sugar.Named("stats")), sugar),
		Contest:  contest.NewHandler(contest.NewService(st.contests, st.people, resolver, sugar.Named("contest")), sugar),
		Resource: resource.NewHandler(resource.NewService(st.resources, st.people, resolver, sugar.Named("resource")), sugar),
	}
}
