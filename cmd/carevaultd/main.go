package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"carevault.org/internal/audit"
	"carevault.org/internal/auth"
	"carevault.org/internal/config"
	"carevault.org/internal/events"
	"carevault.org/internal/grpcapi"
	"carevault.org/internal/httpapi"
	"carevault.org/internal/ledger"
	"carevault.org/internal/migrate"
	"carevault.org/internal/obs"
	"carevault.org/internal/store/pg"
	"carevault.org/internal/submit"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config (default $CAREVAULT_CONFIG)")
		autoMigrate = flag.Bool("migrate", false, "Apply pending journal migrations before start")
	)
	flag.Parse()

	log := obs.Logger()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if err := obs.SetLevel(cfg.LogLevel); err != nil {
		log.WithError(err).Fatal("log level")
	}
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus(256)
	l := ledger.New(
		ledger.WithAdministrator(ledger.Address(cfg.Administrator)),
		ledger.WithEmitter(bus),
	)

	var (
		journal submit.Journal = submit.NewMemoryJournal()
		db      *sql.DB
	)
	if cfg.PGDSN != "" {
		store, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.WithError(err).Fatal("open journal db")
		}
		defer store.Close()
		db = store.DB()
		if *autoMigrate {
			applied, err := migrate.NewManager(db, pg.Migrations()).Up(ctx)
			if err != nil {
				log.WithError(err).Fatal("migrate journal")
			}
			log.WithField("applied", applied).Info("journal_migrated")
		}
		journal = store
	} else {
		log.Warn("no pg_dsn configured; journal is in memory and state is lost on exit")
	}

	gw := submit.New(l, journal, submit.WithLogger(log))
	replayed, err := gw.Replay(ctx)
	if err != nil {
		log.WithError(err).WithField("replayed", replayed).Fatal("replay journal")
	}
	log.WithFields(logrus.Fields{"replayed": replayed, "seq": gw.Seq()}).Info("journal_replayed")

	tokens, err := auth.New(cfg.Auth.Secret, auth.WithIssuer(cfg.Auth.Issuer), auth.WithTTL(cfg.Auth.TTL))
	if err != nil {
		log.WithError(err).Fatal("auth")
	}
	probe := httpapi.ReadyProbe{DB: db, Gateway: gw}

	api := httpapi.New(gw, tokens,
		httpapi.WithVersion(version),
		httpapi.WithBus(bus),
		httpapi.WithReadyProbe(probe),
		httpapi.WithDevTokens(cfg.Auth.DevTokens),
		httpapi.WithRateLimit(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
	)
	// No write timeout: /v1/events/stream holds the response open.
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv := grpcapi.New(gw, tokens, probe).NewGRPCServer()
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.WithError(err).Fatal("grpc listen")
	}

	go audit.NewMirror(bus, log).Run(ctx)

	go func() {
		log.WithFields(logrus.Fields{"addr": httpSrv.Addr, "version": version}).Info("http_listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http listen")
		}
	}()
	go func() {
		log.WithField("addr", lis.Addr().String()).Info("grpc_listening")
		if err := grpcSrv.Serve(lis); err != nil {
			log.WithError(err).Error("grpc serve")
			stop()
		}
	}()
	obs.SetReady(true)

	<-ctx.Done()
	log.Info("shutting_down")
	obs.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(shutdownCtx)
	done := make(chan struct{})
	go func() {
		grpcSrv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		grpcSrv.Stop()
	}
	log.WithField("seq", gw.Seq()).Info("stopped")
}
