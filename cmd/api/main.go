package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"authgate.org/internal/auth"
	"authgate.org/internal/httpapi"
	"authgate.org/internal/obs"
	"authgate.org/internal/store/pg"
	"authgate.org/internal/stream"
)

var version = "0.3.1"

func main() {
	// Register metrics before anything handles traffic.
	obs.Init()

	dsn := os.Getenv("AUTHGATE_PG_DSN")
	if dsn == "" {
		log.Fatal("missing AUTHGATE_PG_DSN")
	}
	secret := os.Getenv("AUTHGATE_AUTH_SECRET")
	if secret == "" {
		log.Fatal("missing AUTHGATE_AUTH_SECRET")
	}

	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	tokenOpts := []auth.TokenOption{}
	if raw := os.Getenv("AUTHGATE_TOKEN_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("parse AUTHGATE_TOKEN_TTL: %v", err)
		}
		tokenOpts = append(tokenOpts, auth.WithTokenTTL(ttl))
	}
	if issuer := os.Getenv("AUTHGATE_TOKEN_ISSUER"); issuer != "" {
		tokenOpts = append(tokenOpts, auth.WithIssuer(issuer))
	}

	registry, err := auth.NewRegistry(store.Roles())
	if err != nil {
		log.Fatalf("init registry: %v", err)
	}
	graph, err := auth.NewGraph(store.Accounts(), store.Roles(), store.Assignments())
	if err != nil {
		log.Fatalf("init graph: %v", err)
	}
	accounts, err := auth.NewAccounts(store.Accounts(), store.Roles(), graph)
	if err != nil {
		log.Fatalf("init accounts: %v", err)
	}
	tokens, err := auth.NewTokens(secret, store.Accounts(), tokenOpts...)
	if err != nil {
		log.Fatalf("init tokens: %v", err)
	}
	vault, err := auth.NewKeyVault(store.APIKeys())
	if err != nil {
		log.Fatalf("init vault: %v", err)
	}
	guard, err := auth.NewGuard(tokens, vault, graph)
	if err != nil {
		log.Fatalf("init guard: %v", err)
	}

	// Seed default roles and, when configured, the first admin account.
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = auth.Bootstrap(bootCtx, registry, accounts, graph, auth.SeedAdmin{
		Name:     os.Getenv("AUTHGATE_ADMIN_NAME"),
		Email:    os.Getenv("AUTHGATE_ADMIN_EMAIL"),
		Password: os.Getenv("AUTHGATE_ADMIN_PASSWORD"),
	})
	bootCancel()
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	api := httpapi.New(httpapi.Services{
		Accounts: accounts,
		Registry: registry,
		Graph:    graph,
		Tokens:   tokens,
		Vault:    vault,
		Guard:    guard,
		Events:   stream.New(),
	}, httpapi.ReadyProbe{Ping: store.Ping}, version)

	handler := api.Handler()
	if rps := envInt("AUTHGATE_RATE_RPS", 0); rps > 0 {
		handler = httpapi.RateLimit(handler, envInt("AUTHGATE_RATE_BURST", rps*2), rps)
	}

	addr := os.Getenv("AUTHGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting authgate-api %s on %s", version, srv.Addr)

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
	log.Println("Stopped")
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("parse %s: %v", key, err)
	}
	return n
}
