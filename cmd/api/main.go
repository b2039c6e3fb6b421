package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rejlersabudhabi1-RAD/user-management/internal/activity"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/audit"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/httpapi"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/identity"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/mail"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/obs"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/passreset"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/rbac"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("USERMGMT_COMMIT"))

	dsn := os.Getenv("USERMGMT_PG_DSN")
	if dsn == "" {
		log.Fatal("missing USERMGMT_PG_DSN")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	accounts := identity.NewPGAccountStore(db)
	store := rbac.NewPGStore(db)

	service, err := rbac.NewService(store)
	if err != nil {
		log.Fatalf("rbac service: %v", err)
	}
	resolver, err := rbac.NewResolver(store)
	if err != nil {
		log.Fatalf("rbac resolver: %v", err)
	}
	guard, err := rbac.NewGuard(store, resolver)
	if err != nil {
		log.Fatalf("rbac guard: %v", err)
	}

	var mailer mail.Mailer = mail.Noop{}
	if host := os.Getenv("USERMGMT_SMTP_HOST"); host != "" {
		port, _ := strconv.Atoi(os.Getenv("USERMGMT_SMTP_PORT"))
		mailer, err = mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     host,
			Port:     port,
			Username: os.Getenv("USERMGMT_SMTP_USER"),
			Password: os.Getenv("USERMGMT_SMTP_PASSWORD"),
			From:     os.Getenv("USERMGMT_SMTP_FROM"),
		})
		if err != nil {
			log.Fatalf("smtp mailer: %v", err)
		}
	}
	reset, err := passreset.NewService(accounts, passreset.NewPGTokenStore(db),
		passreset.WithMailer(mailer),
		passreset.WithResetURL(os.Getenv("USERMGMT_RESET_URL")),
	)
	if err != nil {
		log.Fatalf("passreset service: %v", err)
	}

	api, err := httpapi.New(httpapi.Config{
		ReadyProbe: httpapi.ReadyProbe{DB: db},
		Version:    version,
		Accounts:   accounts,
		Store:      store,
		Service:    service,
		Resolver:   resolver,
		Guard:      guard,
		Reset:      reset,
		Auditor:    audit.NewLogger(audit.NewPGStore(db)),
		Tracker:    activity.NewTracker(activity.NewPGStore(db)),
	})
	if err != nil {
		log.Fatalf("httpapi: %v", err)
	}

	addr := os.Getenv("USERMGMT_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting user-management %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
