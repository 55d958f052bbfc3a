package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/battlewager/config"
	"github.com/alejandrodnm/battlewager/internal/adapters/httpapi"
	"github.com/alejandrodnm/battlewager/internal/adapters/notify"
	"github.com/alejandrodnm/battlewager/internal/adapters/storage"
	"github.com/alejandrodnm/battlewager/internal/adapters/sweeper"
	"github.com/alejandrodnm/battlewager/internal/application/settlement"
	"github.com/alejandrodnm/battlewager/internal/application/tracker"
	"github.com/alejandrodnm/battlewager/internal/domain"
	"github.com/google/uuid"
)

var errUnknownCommand = errors.New("unknown command")

// app agrupa las dependencias compartidas por los subcomandos.
type app struct {
	cfg     *config.Config
	store   *storage.SQLiteStorage
	engine  *settlement.Engine
	tracker *tracker.Service
	console *notify.Console
	out     io.Writer
}

func newApp(cfg *config.Config, store *storage.SQLiteStorage) *app {
	return &app{
		cfg:     cfg,
		store:   store,
		engine:  settlement.New(store, engineConfig(cfg)),
		tracker: tracker.New(store),
		console: notify.NewConsole(),
		out:     os.Stdout,
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "create":
		return a.create(ctx, args)
	case "log":
		return a.logAttempt(ctx, args)
	case "tally":
		return a.tally(ctx, args)
	case "preview":
		return a.preview(ctx, args)
	case "settle":
		return a.settle(ctx, args)
	case "grant":
		return a.grant(ctx, args)
	case "avatar":
		return a.avatar(ctx, args)
	case "serve":
		return a.serve(ctx, args)
	case "sweep":
		return a.sweep(ctx, args)
	default:
		return fmt.Errorf("%w %q", errUnknownCommand, cmd)
	}
}

func (a *app) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	title := fs.String("title", "", "battle title")
	mode := fs.String("mode", string(domain.ModeDuel), "duel|teams|lanes")
	participants := fs.String("participants", "", "comma separated participant ids")
	groups := fs.String("groups", "", "grouped modes: name=a,b;name=c,d (halves when empty)")
	target := fs.Int("target", 10, "repetition target per participant")
	wager := fs.Int("wager", 0, "flat wager per participant (0 = rate mode)")
	ppr := fs.Int("ppr", domain.MinPointsPerRep, "points per rep of lead (rate mode)")
	operator := fs.String("operator", "", "operator creating the battle")
	if err := fs.Parse(args); err != nil {
		return err
	}

	gs, err := parseGroups(*groups)
	if err != nil {
		return err
	}
	b, err := a.tracker.CreateBattle(ctx, tracker.NewBattle{
		Title:            *title,
		Mode:             domain.Mode(*mode),
		ParticipantIDs:   parseList(*participants),
		Groups:           gs,
		RepetitionTarget: *target,
		WagerAmount:      *wager,
		PointsPerRep:     *ppr,
		CreatedBy:        *operator,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, b.ID)
	return nil
}

func (a *app) logAttempt(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("log", flag.ContinueOnError)
	battleID := fs.String("battle", "", "battle id")
	participant := fs.String("participant", "", "participant id")
	success := fs.Bool("success", true, "whether the rep counted")
	operator := fs.String("operator", "", "operator logging the rep")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ev, err := a.tracker.LogAttempt(ctx, *battleID, *participant, *success, *operator)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "attempt %d logged for %s\n", ev.ID, ev.ParticipantID)
	return nil
}

func (a *app) tally(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tally", flag.ContinueOnError)
	battleID := fs.String("battle", "", "battle id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	b, t, err := a.tracker.Tally(ctx, *battleID)
	if err != nil {
		return err
	}
	a.console.PrintTallies(b, t)
	return nil
}

func (a *app) preview(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	battleID := fs.String("battle", "", "battle id")
	operator := fs.String("operator", "", "operator for the anti-abuse check")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p, err := a.engine.Preview(ctx, *battleID, *operator)
	if err != nil {
		return err
	}
	a.console.PrintPreview(p)
	return nil
}

func (a *app) settle(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("settle", flag.ContinueOnError)
	battleID := fs.String("battle", "", "battle id")
	operator := fs.String("operator", "", "operator settling the battle")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := a.engine.Settle(ctx, *battleID, *operator)
	if err != nil {
		return err
	}
	a.console.PrintSettlement(res)
	return nil
}

func (a *app) grant(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("grant", flag.ContinueOnError)
	participant := fs.String("participant", "", "participant id")
	points := fs.Int("points", 0, "points to credit (negative debits)")
	note := fs.String("note", "manual grant", "ledger note")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *participant == "" || *points == 0 {
		return errors.New("grant: -participant and a non-zero -points are required")
	}

	err := a.store.GrantPoints(ctx, domain.LedgerEntry{
		ID:            uuid.New().String(),
		ParticipantID: *participant,
		Points:        *points,
		Note:          *note,
		Category:      domain.CategoryGrant,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	balances, err := a.store.GetParticipantBalances(ctx, []string{*participant})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: %d pts\n", *participant, balances[*participant])
	return nil
}

func (a *app) avatar(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("avatar", flag.ContinueOnError)
	participant := fs.String("participant", "", "participant id")
	pct := fs.Int("pct", 0, "avatar bonus percentage (0-100)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *participant == "" {
		return errors.New("avatar: -participant is required")
	}
	return a.store.SetAvatarBonus(ctx, *participant, *pct)
}

func (a *app) serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", a.cfg.HTTP.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if a.cfg.Sweeper.Enabled {
		sw, err := sweeper.New(a.engine, a.cfg.SweepInterval())
		if err != nil {
			return err
		}
		if err := sw.Start(ctx); err != nil {
			return err
		}
		defer sw.Stop()
	}

	srv := httpapi.New(httpapi.Config{
		Addr:              *addr,
		RequestsPerMinute: a.cfg.HTTP.RequestsPerMinute,
		Burst:             a.cfg.HTTP.Burst,
	}, a.engine, a.tracker, a.store)
	return srv.Run(ctx)
}

func (a *app) sweep(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	once := fs.Bool("once", false, "run a single sweep and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *once {
		n, err := a.engine.SettleReady(ctx)
		fmt.Fprintf(a.out, "settled %d battles\n", n)
		return err
	}

	sw, err := sweeper.New(a.engine, a.cfg.SweepInterval())
	if err != nil {
		return err
	}
	if err := sw.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return sw.Stop()
}

// parseList parte "a, b,,c" en ["a" "b" "c"].
func parseList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseGroups parses "red=a,b;blue=c,d".
func parseGroups(s string) ([]domain.Group, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []domain.Group
	for _, part := range strings.Split(s, ";") {
		name, members, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: group %q must look like name=a,b", domain.ErrInvalidBattle, part)
		}
		out = append(out, domain.Group{Name: name, Members: parseList(members)})
	}
	return out, nil
}
