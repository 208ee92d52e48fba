package main

import (
	"flag"
	"os"

	"towtrace-backend/internal/config"
	"towtrace-backend/internal/database"
	"towtrace-backend/internal/logging"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	seed := flag.Bool("seed", false, "Insert the demo fleet after migrating")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Debug().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger := logging.Setup(cfg.Logging)

	if cfg.Database.Driver != "postgres" {
		logger.Fatal().Str("driver", cfg.Database.Driver).Msg("Migrations only apply to the postgres driver")
	}

	db, err := database.Connect(cfg.Database.URL, 2)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("Migration failed")
	}

	if *seed || cfg.Database.SeedDemo {
		if err := database.SeedDemoFleet(db); err != nil {
			logger.Fatal().Err(err).Msg("Seeding failed")
		}
	}

	var counts struct {
		Drivers   int `db:"drivers"`
		Devices   int `db:"devices"`
		Intervals int `db:"intervals"`
		Open      int `db:"open_intervals"`
	}
	err = db.Get(&counts, `
		SELECT
			(SELECT COUNT(*) FROM drivers) AS drivers,
			(SELECT COUNT(*) FROM devices) AS devices,
			(SELECT COUNT(*) FROM duty_status_intervals) AS intervals,
			(SELECT COUNT(*) FROM duty_status_intervals WHERE end_time IS NULL) AS open_intervals
	`)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to query summary")
	}

	logger.Info().
		Int("drivers", counts.Drivers).
		Int("devices", counts.Devices).
		Int("intervals", counts.Intervals).
		Int("open_intervals", counts.Open).
		Msg("Migration completed successfully")
}
