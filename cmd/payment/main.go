package main

import (
	"context"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jamjock/jamjock/internal/pkg/payment"
	"github.com/jamjock/jamjock/internal/pkg/postgres"
	"github.com/jamjock/jamjock/internal/pkg/stripe"
	"github.com/jamjock/jamjock/internal/pkg/utils"
	"github.com/labstack/gommon/color"
)

func main() {
	goapp.StartWithDefault()

	printBanner()

	cfg := goapp.Config
	if err := utils.CheckRequired(cfg, "db.url", "site.url", "stripe.secretKey", "stripe.webhookSecret"); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start")
	}
	data := &payment.Data{}
	data.Port = cfg.GetInt("port")

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

	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}
	data.DB = db
	data.Counter = db
	data.ReportKey = cfg.GetString("report.key")

	gateway, err := stripe.NewGateway(stripe.Options{Key: cfg.GetString("stripe.secretKey"),
		WebhookSecret: cfg.GetString("stripe.webhookSecret"), SiteURL: cfg.GetString("site.url"),
		LinkPriceID: cfg.GetString("stripe.linkPriceID"), Amount: cfg.GetInt64("stripe.amount"),
		Currency: cfg.GetString("stripe.currency")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init stripe")
	}
	data.Gateway = gateway

	sender, err := postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}

	data.Webhook, err = payment.NewReconciler(gateway, db, sender, db)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init reconciler")
	}

	if err := payment.StartWebServer(data); err != nil {
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
    ____  ____ ___  ______ ___  ___  ____/ /_
   / __ \/ __ ` + "`" + `/ / / / __ ` + "`" + `__ \/ _ \/ __  __/
  / /_/ / /_/ / /_/ / / / / / /  __/ / / /_  
 / .___/\__,_/\__, /_/ /_/ /_/\___/_/ /\__/  v: %s
/_/          /____/                            

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/jamjock/jamjock"))
}
