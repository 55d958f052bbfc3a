// Package httpapi exposes battles, previews and settlements over JSON.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alejandrodnm/battlewager/internal/application/settlement"
	"github.com/alejandrodnm/battlewager/internal/application/tracker"
	"github.com/alejandrodnm/battlewager/internal/domain"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// OperatorHeader identifies the staff member acting on a request.
const OperatorHeader = "X-Operator-ID"

// Settler is the part of the settlement engine the API uses.
type Settler interface {
	Settle(ctx context.Context, battleID, operatorID string) (*settlement.SettleResult, error)
	Preview(ctx context.Context, battleID, operatorID string) (*settlement.PreviewResult, error)
}

// Tracker is the part of the tracker service the API uses.
type Tracker interface {
	CreateBattle(ctx context.Context, nb tracker.NewBattle) (domain.Battle, error)
	LogAttempt(ctx context.Context, battleID, participantID string, success bool, operatorID string) (domain.AttemptEvent, error)
	Tally(ctx context.Context, battleID string) (domain.Battle, domain.Tallies, error)
}

// Ledger reads balances and ledger history.
type Ledger interface {
	GetParticipantBalances(ctx context.Context, ids []string) (map[string]int, error)
	GetLedger(ctx context.Context, participantID string) ([]domain.LedgerEntry, error)
}

// Config holds the HTTP settings.
type Config struct {
	Addr              string
	RequestsPerMinute int // <= 0 disables throttling
	Burst             int
}

// Server wires the routes onto a fiber app.
type Server struct {
	app     *fiber.App
	cfg     Config
	settler Settler
	tracker Tracker
	ledger  Ledger
}

// New builds the server and registers every route.
func New(cfg Config, settler Settler, tr Tracker, ledger Ledger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "battlewager",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})
	s := &Server{app: app, cfg: cfg, settler: settler, tracker: tr, ledger: ledger}

	app.Use(recover.New())
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/")
	if cfg.RequestsPerMinute > 0 {
		api.Use(newOperatorLimiter(cfg.RequestsPerMinute, cfg.Burst).middleware())
	}
	api.Post("/battles", s.createBattle)
	api.Get("/battles/:id", s.getBattle)
	api.Post("/battles/:id/attempts", s.logAttempt)
	api.Get("/battles/:id/preview", s.preview)
	api.Post("/battles/:id/settle", s.settle)
	api.Get("/participants/:id/balance", s.balance)
	api.Get("/participants/:id/ledger", s.ledgerHistory)

	return s
}

// App returns the underlying fiber app, used by tests through app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("httpapi: listening", "addr", s.cfg.Addr)
		errCh <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("httpapi: shutting down")
		return s.app.ShutdownWithTimeout(5 * time.Second)
	}
}

func operatorID(c *fiber.Ctx) string {
	return c.Get(OperatorHeader)
}

// fail maps domain errors onto HTTP statuses.
func fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, domain.ErrIncomplete), errors.Is(err, domain.ErrBattleClosed):
		status = fiber.StatusConflict
	case errors.Is(err, domain.ErrInvalidBattle), errors.Is(err, domain.ErrNotParticipant):
		status = fiber.StatusBadRequest
	}
	if status == fiber.StatusInternalServerError {
		slog.Error("httpapi: request failed", "path", c.Path(), "err", err)
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
