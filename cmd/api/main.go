package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/application/ledger"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/infrastructure/memory"
	infrapdf "github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/infrastructure/pdf"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/infrastructure/postgres"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/infrastructure/tracing"
	httpRouter "github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/interfaces/http"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/pkg/config"
	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("storage", cfg.DB.Driver).
		Msg("iniciando aplicación")

	ctx := context.Background()

	shutdownTracing, err := tracing.Setup(ctx, cfg.App, cfg.Tracing)
	if err != nil {
		log.Fatal().Err(err).Msg("inicializar tracing")
	}

	var (
		txRunner ledger.TxRunner
		reader   ledger.UnitOfWork
	)
	switch cfg.DB.Driver {
	case config.StorageMemory:
		store := memory.NewStore()
		txRunner = memory.NewTxRunner(store)
		reader = store
		log.Warn().Msg("almacenamiento en memoria: los datos se pierden al reiniciar")
	default:
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a PostgreSQL")
		}
		defer pool.Close()
		if cfg.DB.AutoMigrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				log.Fatal().Err(err).Msg("migración del esquema")
			}
		}
		txRunner = postgres.NewTxRunner(pool)
		reader = postgres.NewUnitOfWork(pool)
	}

	threshold := decimal.NewFromInt(int64(cfg.Ledger.LowStockThreshold))
	ledgerSvc := ledger.NewService(ledger.ServiceDeps{
		TxRunner: txRunner,
		Reader:   reader,
		Reports:  infrapdf.NewMarotoStockReport(threshold),
		Logger:   log,
		Metrics:  ledger.NewMetrics(prometheus.DefaultRegisterer),
		Config: ledger.Config{
			MaxRetries:        cfg.Ledger.MaxRetries,
			LowStockThreshold: &threshold,
			HistoryLimit:      cfg.Ledger.HistoryLimit,
		},
	})

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(httpRouter.RequestLogger(log))

	// Swagger UI en local: http://localhost:<port>/docs
	if _, err := os.Stat(cfg.HTTP.SwaggerFile); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/",
			FilePath: cfg.HTTP.SwaggerFile,
			Path:     "docs",
			Title:    "Inventario de técnicos API",
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	httpRouter.Router(app, httpRouter.RouterDeps{
		Ledger:    ledgerSvc,
		JWTSecret: cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("cierre del exportador de trazas")
	}

	log.Info().Msg("aplicación detenida")
}
