package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"example.com/planboard/internal/api"
	"example.com/planboard/internal/bootstrap"
	"example.com/planboard/internal/config"
	"example.com/planboard/internal/directory"
	"example.com/planboard/internal/events"
	"example.com/planboard/internal/identity"
	"example.com/planboard/internal/invite"
	"example.com/planboard/internal/mail"
	"example.com/planboard/internal/realm"
	"example.com/planboard/internal/rolesync"
	"example.com/planboard/internal/store"
	"example.com/planboard/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.MySQLDSN == "" {
		log.Fatal("MYSQL_DSN is required")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	stores, err := store.Open(cfg.MySQLDSN)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}

	dir := directory.NewClient(cfg.DirectoryURL, cfg.DirectoryServiceKey, 15*time.Second)

	deps := invite.Deps{
		Stores:  stores,
		Users:   dir,
		TTL:     time.Duration(cfg.InviteTTLDays) * 24 * time.Hour,
		BaseURL: cfg.AppBaseURL,
		Log:     logger,
	}

	if cfg.HasRealmAdmin() {
		rc := realm.NewClient(realm.Config{
			BaseURL:       cfg.RealmBaseURL,
			Realm:         cfg.RealmName,
			AdminRealm:    cfg.RealmAdminRealm,
			AdminClientID: cfg.RealmAdminClient,
			AdminUser:     cfg.RealmAdminUser,
			AdminPassword: cfg.RealmAdminPass,
			AppClientID:   cfg.RealmAppClientID,
			RedirectURI:   cfg.RealmRedirectURI,
		}, logger)
		deps.Resolver = identity.NewResolver(rc, dir, stores.Links, logger)
		deps.Roles = rolesync.NewSyncer(rc, logger)
		deps.Actions = rc
	} else {
		logger.Warn("realm admin credentials absent; role synchronization disabled")
	}

	if cfg.MailAPIURL != "" {
		deps.Mailer = mail.NewHTTPMailer(cfg.MailAPIURL, cfg.MailAPIKey, cfg.MailFrom, 10*time.Second)
	}
	if cfg.RabbitURL != "" {
		pub, err := events.NewRabbitPublisher(cfg.RabbitURL, "planboard-invite-events")
		if err != nil {
			logger.Fatal("connect rabbitmq", zap.Error(err))
		}
		defer pub.Close()
		deps.Events = pub
	}

	mgr := invite.NewManager(deps)

	boot := bootstrap.NewReserveAdmin(dir, stores.Memberships, stores.SuperAdmins,
		cfg.ReserveAdminEmail, cfg.ReserveAdminPassword, logger)
	if err := boot.Ensure(ctx); err != nil {
		logger.Warn("reserve admin bootstrap failed", zap.Error(err))
	}

	sweeper := worker.NewSweeper(stores.Invites, time.Duration(cfg.SweepIntervalMins)*time.Minute, logger)
	sweeper.Start(ctx)

	h := api.NewHandler(mgr, boot, dir, stores.SuperAdmins, logger)
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: h.Router(),
	}

	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	ctxSh, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxSh)
	sweeper.Wait()
}
