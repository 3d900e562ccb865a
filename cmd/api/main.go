package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/MrJamesThe3rd/splitpay/internal/config"
	"github.com/MrJamesThe3rd/splitpay/internal/database"
	"github.com/MrJamesThe3rd/splitpay/internal/logging"
	"github.com/MrJamesThe3rd/splitpay/internal/payout"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "splitpay",
		Usage: "split-payment reconciliation and restaurant settlement",
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			settleCommand(),
			sweepCommand(),
			statementCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// load reads the config and installs the logger.
func load() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logging.Setup(os.Stderr, logging.Format(cfg.Log.Format), cfg.Log.Level)

	return cfg, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API, provider webhooks and background jobs",
		Action: func(c *cli.Context) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			db, err := connect(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if cfg.DB.MigrateOnStart {
				if err := database.Migrate(db); err != nil {
					return err
				}
			}

			svc := newServices(cfg, db)
			jobs := svc.startJobs(c.Context, cfg)

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.App.Port),
				Handler:           svc.router(cfg),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       cfg.Server.Timeout,
				WriteTimeout:      cfg.Server.Timeout,
			}

			errCh := make(chan error, 1)

			go func() {
				slog.Info("starting server", "port", srv.Addr)

				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}

				close(errCh)
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			case <-c.Context.Done():
			}

			slog.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutting down server: %w", err)
			}

			jobs.Wait()

			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "manage the database schema",
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply pending migrations",
				Action: func(c *cli.Context) error {
					return withDB(func(_ *config.Config, s *services) error {
						return database.Migrate(s.db)
					})
				},
			},
			{
				Name:  "down",
				Usage: "revert migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Value: 1, Usage: "number of migrations to revert"},
				},
				Action: func(c *cli.Context) error {
					return withDB(func(_ *config.Config, s *services) error {
						return database.Rollback(s.db, c.Int("steps"))
					})
				},
			},
		},
	}
}

func settleCommand() *cli.Command {
	return &cli.Command{
		Name:  "settle",
		Usage: "create payouts for completed, unsettled payments",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from", Usage: "period start, YYYY-MM-DD (default: the scheduler's window)"},
			&cli.StringFlag{Name: "to", Usage: "period end, exclusive, YYYY-MM-DD"},
			&cli.StringFlag{Name: "restaurant", Usage: "settle a single restaurant by id"},
		},
		Action: func(c *cli.Context) error {
			return withDB(func(cfg *config.Config, s *services) error {
				period, err := periodFlags(c, cfg)
				if err != nil {
					return err
				}

				id := c.String("restaurant")
				if id == "" {
					return s.settle(c.Context, period)
				}

				restaurantID, err := uuid.Parse(id)
				if err != nil {
					return fmt.Errorf("invalid restaurant id: %w", err)
				}

				p, err := s.aggregator.RunSettlement(c.Context, restaurantID, period)
				if errors.Is(err, payout.ErrEmptyPeriod) {
					slog.Info("nothing to settle", "restaurant_id", restaurantID)
					return nil
				}

				if err != nil {
					return err
				}

				slog.Info("payout created", "payout_id", p.ID, "amount", p.Amount.String(), "payments", p.PaymentCount)

				return nil
			})
		},
	}
}

func periodFlags(c *cli.Context, cfg *config.Config) (payout.Period, error) {
	if c.String("from") == "" && c.String("to") == "" {
		return payout.Window(time.Now(), cfg.Settlement.Interval, cfg.Settlement.Lookback), nil
	}

	from, err := time.Parse(time.DateOnly, c.String("from"))
	if err != nil {
		return payout.Period{}, fmt.Errorf("invalid --from: %w", err)
	}

	to, err := time.Parse(time.DateOnly, c.String("to"))
	if err != nil {
		return payout.Period{}, fmt.Errorf("invalid --to: %w", err)
	}

	period := payout.Period{From: from, To: to}

	return period, period.Validate()
}

func sweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "fail pending payments the provider never confirmed",
		Action: func(c *cli.Context) error {
			return withDB(func(cfg *config.Config, s *services) error {
				return s.sweep(c.Context, cfg.Sweep.MaxAge, cfg.Sweep.Batch)
			})
		},
	}
}

func statementCommand() *cli.Command {
	return &cli.Command{
		Name:      "statement",
		Usage:     "write the spreadsheet statement of a payout",
		ArgsUsage: "<payout-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Usage: "output directory (default: STATEMENT_DIR)"},
		},
		Action: func(c *cli.Context) error {
			id, err := uuid.Parse(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid payout id: %w", err)
			}

			return withDB(func(cfg *config.Config, s *services) error {
				dir := c.String("dir")
				if dir == "" {
					dir = cfg.Statement.Dir
				}

				path, err := s.statements.Export(c.Context, id, dir)
				if err != nil {
					return err
				}

				fmt.Println(path)

				return nil
			})
		},
	}
}

func withDB(fn func(*config.Config, *services) error) error {
	cfg, err := load()
	if err != nil {
		return err
	}

	db, err := connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(cfg, newServices(cfg, db))
}
