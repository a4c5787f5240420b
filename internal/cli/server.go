package cli

import (
	"context"
	"log"
	"math/rand"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"neonquiz/internal/app"
	"neonquiz/internal/config"
	"neonquiz/internal/domain"
	"neonquiz/internal/infra/memory"
	pgloader "neonquiz/internal/infra/postgres"
	redismirror "neonquiz/internal/infra/redis"
	transport "neonquiz/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "3000"
	}
	portNum, err := strconv.Atoi(finalPort)
	if err != nil {
		return err
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.BankLoader = memory.NewStaticBankLoader(sampleBanks())
	switch {
	case pool != nil:
		loader = pgloader.NewBankLoader(pool)
	case cfg.Quiz.QuestionsPath != "":
		loader = memory.NewFileBankLoader(cfg.Quiz.QuestionsPath)
	}

	bankID := cfg.Quiz.BankID
	if bankID == "" {
		bankID = "default"
	}
	bank, err := loader.LoadBank(ctx, bankID)
	if err != nil {
		return err
	}

	// Question order is randomized exactly once per process; a quiz reset
	// keeps the order. A fixed seed makes orderings reproducible.
	seed := cfg.Quiz.ShuffleSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	bank.Shuffle(rand.New(rand.NewSource(seed)))

	quiz := app.NewQuiz(bank)

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		mirror := redismirror.NewStateMirror(client, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
		events, cancelMirror := quiz.Subscribe()
		defer cancelMirror()
		go mirror.Run(ctx, events)
	}

	wsHandler := transport.NewWSHandler(quiz)
	netHandler := transport.NewNetworkHandler(portNum)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("/api/network", netHandler.ServeNetwork)
	mux.HandleFunc("/api/network/qr", netHandler.ServeJoinQR)

	server := &http.Server{
		Addr:        cfg.Server.Host + ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	lan := transport.LanIPv4s()
	if len(lan) > 0 {
		quiz.SetLocalIP(lan[0])
	}

	log.Printf("neonquiz listening on %s", server.Addr)
	log.Printf("on this machine:  http://localhost:%s", finalPort)
	for _, ip := range lan {
		log.Printf("on the same wi-fi: http://%s:%s", ip, finalPort)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		// The one-second heartbeat drives the rapid-fire countdown and
		// closes the buzzer grace window.
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				quiz.Tick()
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// sampleBanks provides a tiny built-in bank so the server is playable with
// no config at all; real events ship questions via file or Postgres.
func sampleBanks() map[string]domain.QuestionBank {
	return map[string]domain.QuestionBank{
		"default": {
			PassRound: []domain.Question{
				{ID: "p1", Question: "Which planet is known as the Red Planet?", Answer: "mars"},
				{ID: "p2", Question: "What is the largest ocean on Earth?", Answer: "pacific"},
			},
			BuzzerRound: []domain.Question{
				{ID: "b1", Question: "Which element has the symbol O?", Answer: "oxygen"},
				{ID: "b2", Question: "What is the capital of Japan?", Answer: "tokyo"},
			},
			RapidFireRound: []domain.Question{
				{ID: "r1", Question: "2 + 2?", Options: []string{"3", "4", "5"}, Answer: "4"},
				{ID: "r2", Question: "How many colors in RGB?", Options: []string{"2", "3", "4"}, Answer: "3"},
			},
		},
	}
}
