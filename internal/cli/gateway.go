package cli

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/config"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/answers"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/broadcast"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/changefeed"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/gateway"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/results"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/store/postgres"
)

func newGatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the participant-facing HTTP and WebSocket gateway",
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
			st := postgres.New(pool)

			nc, err := broadcast.ConnectNATS(cfg.NATS.URL)
			if err != nil {
				return err
			}
			defer nc.Close()

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

			clock := clockwork.NewRealClock()
			submitter := answers.NewSubmitter(st, clock)
			aggregator := results.NewAggregator(st, cache)
			manager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
			server := gateway.NewServer(st, submitter, aggregator, manager, nc, clock)

			// lib/pq connection for LISTEN/NOTIFY alongside the pgx pool
			feedDB, err := sql.Open("postgres", cfg.Postgres.URL)
			if err != nil {
				return fmt.Errorf("open change feed connection: %w", err)
			}
			defer feedDB.Close()

			feedCfg := changefeed.DefaultListenerConfig()
			feedCfg.DatabaseURL = cfg.Postgres.URL
			feed, err := changefeed.NewListener(feedDB, server.ApplyChange, feedCfg)
			if err != nil {
				return err
			}

			httpServer := &http.Server{
				Addr:         fmt.Sprintf(":%d", cfg.Gateway.Port),
				Handler:      server.Handler(),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return server.Run(ctx) })
			g.Go(func() error { return feed.Start(ctx) })
			g.Go(func() error {
				log.Info().Int("port", cfg.Gateway.Port).Msg("gateway listening")
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			})

			return g.Wait()
		},
	}
}
