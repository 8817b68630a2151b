package main

import (
	"context"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jamjock/jamjock/internal/pkg/minio"
	"github.com/jamjock/jamjock/internal/pkg/postgres"
	"github.com/jamjock/jamjock/internal/pkg/share"
	"github.com/jamjock/jamjock/internal/pkg/token"
	"github.com/jamjock/jamjock/internal/pkg/utils"
	"github.com/labstack/gommon/color"
)

func main() {
	goapp.StartWithDefault()

	printBanner()

	cfg := goapp.Config
	if err := utils.CheckRequired(cfg, "db.url", "site.url", "token.secret", "filer.url", "filer.bucket"); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start")
	}
	data := &share.Data{}
	data.Port = cfg.GetInt("port")

	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}

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

	data.Filer, err = minio.NewFiler(ctx, minio.Options{Bucket: cfg.GetString("filer.bucket"),
		URL: cfg.GetString("filer.url"), User: cfg.GetString("filer.user"), Key: cfg.GetString("filer.key"),
		Secure: cfg.GetBool("filer.https"), URLExpire: cfg.GetDuration("filer.urlExpire")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init filer")
	}

	var opts []token.Option
	if ttl := cfg.GetDuration("token.ttl"); ttl > 0 {
		opts = append(opts, token.WithTTL(ttl))
	}
	data.Issuer, err = token.NewIssuer(cfg.GetString("token.secret"), cfg.GetString("site.url"), db, opts...)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init token issuer")
	}

	if err := share.StartWebServer(data); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
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
   _____/ /_  ____ _________ 
  / ___/ __ \/ __ ` + "`" + `/ ___/ _ \
 (__  ) / / / /_/ / /  /  __/
/____/_/ /_/\__,_/_/   \___/  v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/jamjock/jamjock"))
}
