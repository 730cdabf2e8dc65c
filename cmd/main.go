package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"DuelRelay/config"
	"DuelRelay/internal/matchmaker"
	"DuelRelay/internal/storage"
	"DuelRelay/internal/utils"
	"DuelRelay/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		utils.Log.Fatal("server exited", "err", err)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "duelrelay",
		Usage: "matchmaking and action relay server for two-player duels",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Value: "config/config.yaml",
				Usage: "path to the YAML config file (optional)",
			},
			&cli.StringFlag{
				Name:  "port",
				Usage: "listen port, overrides server.port and PORT",
			},
		},
		Action: run,
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	if p := cmd.String("port"); p != "" {
		cfg.Server.Port = p
	}
	utils.Init(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	//-------------------------------------------------------
	// 1. 匹配队列（内存或 Redis）
	//-------------------------------------------------------
	repo := matchmaker.NewMemoryRepo()
	if cfg.Redis.Enabled {
		rdb, err := storage.InitRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		repo = matchmaker.NewRedisRepo(rdb)
		utils.Log.Info("waiting queue backed by redis", "addr", cfg.Redis.Addr)
	}
	if err := repo.Reset(ctx); err != nil {
		return err
	}

	//-------------------------------------------------------
	// 2. Hub + Matchmaker
	//-------------------------------------------------------
	hub := websocket.NewHub()
	svc := matchmaker.NewService(repo, hub, matchmaker.Options{
		DefaultRoomCode: cfg.Match.DefaultRoomCode,
		SeedBound:       cfg.Match.SeedBound,
		DedupeRequests:  cfg.Match.DedupeRequests,
		StrictRelay:     cfg.Match.StrictRelay,
	})
	bindHub(ctx, hub, svc)
	go hub.Run()

	//-------------------------------------------------------
	// 3. Gin + CORS
	//-------------------------------------------------------
	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: newRouter(cfg, hub, svc),
	}

	errCh := make(chan error, 1)
	go func() {
		utils.Log.Info("server running", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		hub.Close()
		<-hub.Done()
		return err
	case <-ctx.Done():
	}

	utils.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	hub.Close()
	<-hub.Done()
	return err
}

// bindHub routes hub events into the matchmaker. Both hooks run on the hub's
// Run goroutine.
func bindHub(ctx context.Context, hub *websocket.Hub, svc *matchmaker.Service) {
	hub.OnIncoming = func(msg websocket.IncomingMessage) {
		if err := svc.HandleMessage(ctx, msg); err != nil {
			utils.Log.Warn("message dropped", "client", msg.From, "event", msg.Event, "err", err)
		}
	}
	hub.OnDisconnect = func(id string) {
		if err := svc.Disconnect(ctx, id); err != nil {
			utils.Log.Error("disconnect cleanup failed", "client", id, "err", err)
		}
	}
}

func newRouter(cfg *config.Config, hub *websocket.Hub, svc *matchmaker.Service) *gin.Engine {
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type"},
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ws", websocket.ServeWS(hub))

	mh := matchmaker.NewHandler(svc)
	r.GET("/match/status", mh.Status)

	// the game client itself
	r.NoRoute(gin.WrapH(http.FileServer(http.Dir(cfg.Server.StaticDir))))
	return r
}
