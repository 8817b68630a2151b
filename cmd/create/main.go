package main

import (
	"context"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jamjock/jamjock/internal/pkg/catalog"
	"github.com/jamjock/jamjock/internal/pkg/create"
	"github.com/jamjock/jamjock/internal/pkg/minio"
	"github.com/jamjock/jamjock/internal/pkg/postgres"
	"github.com/jamjock/jamjock/internal/pkg/retry"
	"github.com/jamjock/jamjock/internal/pkg/utils"
	"github.com/jamjock/jamjock/internal/pkg/voice"
	"github.com/jamjock/jamjock/internal/pkg/workflow"
	"github.com/labstack/gommon/color"
	"github.com/spf13/viper"
)

func main() {
	goapp.StartWithDefault()

	printBanner()

	cfg := goapp.Config
	if err := utils.CheckRequired(cfg, "db.url", "site.url", "voice.key", "filer.url", "filer.bucket"); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start")
	}
	data := &create.Data{}
	data.Port = cfg.GetInt("port")
	data.MaxSampleSize = cfg.GetInt64("limit.maxSampleSize")
	data.ClaimTTL = cfg.GetDuration("full.claimTTL")

	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	addDBLog(dbConfig)

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}
	data.DB = db
	data.Counter = db

	filer, err := minio.NewFiler(ctx, minio.Options{Bucket: cfg.GetString("filer.bucket"),
		URL: cfg.GetString("filer.url"), User: cfg.GetString("filer.user"), Key: cfg.GetString("filer.key"),
		Secure: cfg.GetBool("filer.https"), URLExpire: cfg.GetDuration("filer.urlExpire")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init filer")
	}
	data.Signer = filer

	ctg, err := loadCatalog(cfg.GetString("catalog.file"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init catalog")
	}
	data.Catalog = ctg

	vc, err := voice.NewClient(defaultS(cfg.GetString("voice.url"), voice.DefaultURL), cfg.GetString("voice.key"),
		voice.WithModel(cfg.GetString("voice.model")),
		voice.WithPolicy(voicePolicy(cfg)))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init voice client")
	}

	data.Workflow, err = workflow.NewService(&workflow.Data{Filer: filer, DB: db, Voice: vc, Catalog: ctg, Counter: db,
		SiteURL: cfg.GetString("site.url"), MaxSampleSize: data.MaxSampleSize})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init workflow")
	}

	data.MsgSender, err = postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}

	data.Limiter, err = utils.NewRateLimiter(defaultS(cfg.GetString("limit.rate"), "10-H"),
		cfg.GetBool("limit.trustForwardHeader"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init limiter")
	}

	if err := create.StartWebServer(data); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}
}

func loadCatalog(file string) (*catalog.Catalog, error) {
	if file == "" {
		return catalog.Load()
	}
	goapp.Log.Info().Str("file", file).Msg("load catalog")
	return catalog.LoadFile(file)
}

func voicePolicy(cfg *viper.Viper) *retry.Policy {
	res := retry.Default()
	if v := cfg.GetInt("voice.retries"); v > 0 {
		res.Attempts = v
	}
	if v := cfg.GetDuration("voice.retryDelay"); v > 0 {
		res.Delay = v
	}
	return res
}

func defaultS(v, d string) string {
	if v == "" {
		return d
	}
	return v
}

func addDBLog(dbConfig *pgxpool.Config) {
	logFunc := goapp.Log.Debug().Msg
	dbConfig.AfterConnect = func(ctx context.Context, c *pgx.Conn) error {
		logFunc("after connect")
		return nil
	}
	dbConfig.AfterRelease = func(c *pgx.Conn) bool {
		logFunc("after release")
		return true
	}
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
  _____________  ____ _/ /____ 
 / ___/ ___/ _ \/ __ ` + "`" + `/ __/ _ \
/ /__/ /  /  __/ /_/ / /_/  __/
\___/_/   \___/\__,_/\__/\___/  v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/jamjock/jamjock"))
}
