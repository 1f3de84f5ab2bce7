package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"opsdesk.org/internal/directory"
	"opsdesk.org/internal/httpapi"
	"opsdesk.org/internal/obs"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

type seedFile struct {
	Users []struct {
		Email       string                 `json:"email"`
		Name        string                 `json:"name"`
		Password    string                 `json:"password"`
		Memberships []directory.Membership `json:"memberships"`
	} `json:"users"`
}

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	addr := os.Getenv("OPSDESK_ADDR")
	if addr == "" {
		addr = ":8081"
	}
	secret := os.Getenv("OPSDESK_AUTH_SECRET")
	if secret == "" {
		log.Fatal("OPSDESK_AUTH_SECRET is required")
	}

	cfg := httpapi.Config{Secret: secret, Issuer: os.Getenv("OPSDESK_ISSUER")}
	if v := os.Getenv("OPSDESK_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("parse OPSDESK_ACCESS_TTL: %v", err)
		}
		cfg.AccessTTL = d
	}
	if v := os.Getenv("OPSDESK_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("parse OPSDESK_REFRESH_TTL: %v", err)
		}
		cfg.RefreshTTL = d
	}

	var (
		dir    directory.Directory
		tokens directory.RefreshTokenStore
		pg     *directory.Postgres
	)
	if dsn := os.Getenv("OPSDESK_PG_DSN"); dsn != "" {
		var err error
		pg, err = directory.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		dir, tokens = pg, pg
	} else {
		mem := directory.NewMemory()
		if path := os.Getenv("OPSDESK_SEED_FILE"); path != "" {
			if err := seedUsers(mem, path); err != nil {
				log.Fatalf("seed users: %v", err)
			}
		}
		dir, tokens = mem, mem
	}

	api, err := httpapi.New(cfg, dir, tokens, version)
	if err != nil {
		log.Fatalf("init api: %v", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting opsdesk-authstub %s on %s", version, srv.Addr)

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
	if pg != nil {
		_ = pg.Close()
	}
	log.Println("Stopped")
}

func seedUsers(mem *directory.Memory, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return err
	}
	for _, u := range seed.Users {
		if _, err := mem.SeedUser(u.Email, u.Name, u.Password, u.Memberships); err != nil {
			return err
		}
	}
	return nil
}
