package cli

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/config"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/broadcast"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/controller"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/results"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/store/postgres"
)

func newControllerCmd() *cobra.Command {
	var (
		quizID    string
		sessionID string
	)

	cmd := &cobra.Command{
		Use:   "controller",
		Short: "Run the authoritative controller for one session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
			if err != nil {
				return fmt.Errorf("create pool: %w", err)
			}
			defer pool.Close()
			if err := postgres.Migrate(ctx, pool); err != nil {
				return err
			}
			st := postgres.New(pool)

			nc, err := broadcast.ConnectNATS(cfg.NATS.URL)
			if err != nil {
				return err
			}
			defer nc.Close()

			clock := clockwork.NewRealClock()
			resender := broadcast.NewResender(nc, broadcast.ResendPolicy{
				Extra: cfg.Session.ResendExtra,
				Delay: config.Duration(cfg.Session.ResendDelay, 300*time.Millisecond),
			}, clock)

			var cache *results.LeaderboardCache
			if cfg.Redis.Addr != "" {
				client := redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
				defer client.Close()
				cache = results.NewLeaderboardCache(client, config.Duration(cfg.Redis.TTL, time.Hour))
			}
			aggregator := results.NewAggregator(st, cache)

			ctrl := controller.New(st, resender, aggregator, clock, controller.Config{
				TickInterval:    config.Duration(cfg.Session.TickInterval, time.Second),
				PersistEvery:    config.Duration(cfg.Session.PersistEvery, 2*time.Second),
				StoreRetries:    3,
				StoreRetryDelay: 200 * time.Millisecond,
			})

			switch {
			case sessionID != "":
				id, err := uuid.Parse(sessionID)
				if err != nil {
					return fmt.Errorf("invalid session id: %w", err)
				}
				if err := ctrl.Attach(ctx, id); err != nil {
					return err
				}
			case quizID != "":
				id, err := uuid.Parse(quizID)
				if err != nil {
					return fmt.Errorf("invalid quiz id: %w", err)
				}
				sess, err := ctrl.CreateSession(ctx, id)
				if err != nil {
					return err
				}
				log.Info().Str("session_id", sess.ID.String()).Msg("session ready")
			default:
				return fmt.Errorf("either --quiz or --session is required")
			}

			advanceAfter := config.Duration(cfg.Session.AdvanceAfter, 5*time.Second)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return ctrl.RunClock(ctx) })
			g.Go(func() error {
				defer stop()
				return ctrl.Run(ctx, advanceAfter)
			})
			if err := g.Wait(); err != nil {
				return err
			}

			log.Info().Msg("controller finished")
			return nil
		},
	}

	cmd.Flags().StringVar(&quizID, "quiz", "", "quiz id to create a session for")
	cmd.Flags().StringVar(&sessionID, "session", "", "existing session id to attach to")
	return cmd
}
