package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	contacts "github.com/goliatone/go-contacts"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := contacts.LoadConfig()
	if err != nil {
		return err
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DatabaseDSN)
	if err != nil {
		return err
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	defer db.Close()

	if err := createTables(ctx, db); err != nil {
		return err
	}

	repo := contacts.NewRepositoryManager(db)
	tokens := contacts.NewTokenServiceFromConfig(cfg)
	provider := contacts.NewUserProvider(repo.Users())
	auther := contacts.NewAuthenticator(provider, tokens)

	mailer := contacts.NewAsyncDispatcher(contacts.NewSMTPDispatcher(cfg.SMTP), 64)
	defer mailer.Close()

	register := contacts.NewRegisterUserHandler(repo, tokens, mailer, cfg.BaseURL)
	confirm := contacts.NewConfirmEmailHandler(repo, tokens)
	resetInit := contacts.NewInitializePasswordResetHandler(repo, tokens, mailer, cfg.BaseURL)
	resetFinal := contacts.NewFinalizePasswordResetHandler(repo, tokens)

	controller := contacts.NewHTTPController(
		cfg,
		auther,
		tokens,
		repo,
		register,
		confirm,
		resetInit,
		resetFinal,
	)

	if cfg.S3.Bucket != "" {
		avatars, err := contacts.NewS3AvatarStore(ctx, cfg.S3)
		if err != nil {
			return err
		}
		controller.WithAvatarStore(avatars)
	}

	app := fiber.New(fiber.Config{
		AppName: "contacts",
	})

	controller.RegisterRoutes(app)

	errs := make(chan error, 1)
	go func() {
		errs <- app.Listen(cfg.ListenAddr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errs:
		return err
	case <-stop:
		log.Println("shutting down")
		return app.Shutdown()
	}
}

func createTables(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*contacts.User)(nil),
		(*contacts.Contact)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return err
		}
	}

	return nil
}
