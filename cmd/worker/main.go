package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jamjock/jamjock/internal/pkg/catalog"
	"github.com/jamjock/jamjock/internal/pkg/minio"
	"github.com/jamjock/jamjock/internal/pkg/postgres"
	"github.com/jamjock/jamjock/internal/pkg/retry"
	"github.com/jamjock/jamjock/internal/pkg/utils"
	"github.com/jamjock/jamjock/internal/pkg/voice"
	"github.com/jamjock/jamjock/internal/pkg/worker"
	"github.com/jamjock/jamjock/internal/pkg/workflow"
	"github.com/labstack/gommon/color"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config
	if err := utils.CheckRequired(cfg, "db.url", "site.url", "voice.key", "filer.url", "filer.bucket"); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start")
	}

	go utils.RunPerfEndpoint()

	data := &worker.ServiceData{}
	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}

	goapp.Log.Info().Int32("max_conn", dbConfig.MaxConns).Int32("min_conn", dbConfig.MinConns).Msg("db info")

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	data.GueClient, err = gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue")
	}
	data.WorkerCount = defaultV(cfg.GetInt("worker.count"), 2)
	data.MaxRetries = int32(defaultV(cfg.GetInt("worker.maxRetries"), 3))
	data.Testing = cfg.GetBool("worker.testing")
	data.MsgSender, err = postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}
	filer, err := minio.NewFiler(ctx, minio.Options{Bucket: cfg.GetString("filer.bucket"),
		URL: cfg.GetString("filer.url"), User: cfg.GetString("filer.user"), Key: cfg.GetString("filer.key"),
		Secure: cfg.GetBool("filer.https"), URLExpire: cfg.GetDuration("filer.urlExpire")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init filer")
	}
	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}

	var ctg *catalog.Catalog
	if f := cfg.GetString("catalog.file"); f != "" {
		ctg, err = catalog.LoadFile(f)
	} else {
		ctg, err = catalog.Load()
	}
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init catalog")
	}

	vc, err := voice.NewClient(defaultV(cfg.GetString("voice.url"), voice.DefaultURL), cfg.GetString("voice.key"),
		voice.WithModel(cfg.GetString("voice.model")),
		voice.WithTimeout(defaultV(cfg.GetDuration("voice.timeout"), 3*time.Minute)),
		voice.WithPolicy(&retry.Policy{Attempts: defaultV(cfg.GetInt("voice.retries"), 3),
			Delay: defaultV(cfg.GetDuration("voice.retryDelay"), 2*time.Second)}))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init voice client")
	}

	data.Workflow, err = workflow.NewService(&workflow.Data{Filer: filer, DB: db, Voice: vc, Catalog: ctg, Counter: db,
		SiteURL: cfg.GetString("site.url"), ClaimTTL: cfg.GetDuration("full.claimTTL")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init workflow")
	}

	printBanner()

	ctx, cancelFunc := context.WithCancel(context.Background())
	doneCh, err := worker.StartWorkerService(ctx, data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start worker service")
	}
	waitCh := make(chan os.Signal, 2)
	signal.Notify(waitCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-waitCh:
		goapp.Log.Info().Msg("Got exit signal")
	case <-doneCh:
		goapp.Log.Info().Msg("Service exit")
	}
	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
	}
}

func defaultV[T comparable](v, d T) T {
	var zero T
	if v == zero {
		return d
	}
	return v
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
       __                   __           __  
      / /___ _____ ___     / /___  _____/ /__
 __  / / __ ` + "`" + `/ __ ` + "`" + `__ \__  / / __ \/ ___/ //_/
/ /_/ / /_/ / / / / / / /_/ / /_/ / /__/ ,<   
\____/\__,_/_/ /_/ /_/\____/\____/\___/_/|_|  

                      __            
 _      ______  _____/ /_____  _____
| | /| / / __ \/ ___/ //_/ _ \/ ___/
| |/ |/ / /_/ / /  / ,< /  __/ /    
|__/|__/\____/_/  /_/|_|\___/_/     v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/jamjock/jamjock"))
}
