package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/jhoicas/TioCoco-api/docs"
	"github.com/jhoicas/TioCoco-api/internal/app/background"
	appanalytics "github.com/jhoicas/TioCoco-api/internal/application/analytics"
	"github.com/jhoicas/TioCoco-api/internal/application/rate"
	"github.com/jhoicas/TioCoco-api/internal/application/sales"
	"github.com/jhoicas/TioCoco-api/internal/application/usecase"
	"github.com/jhoicas/TioCoco-api/internal/domain/repository"
	"github.com/jhoicas/TioCoco-api/internal/infrastructure/kafka"
	"github.com/jhoicas/TioCoco-api/internal/infrastructure/memory"
	"github.com/jhoicas/TioCoco-api/internal/infrastructure/metrics"
	"github.com/jhoicas/TioCoco-api/internal/infrastructure/netcheck"
	"github.com/jhoicas/TioCoco-api/internal/infrastructure/postgres"
	"github.com/jhoicas/TioCoco-api/internal/infrastructure/ratesource"
	httpRouter "github.com/jhoicas/TioCoco-api/internal/interfaces/http"
	"github.com/jhoicas/TioCoco-api/pkg/config"
	"github.com/jhoicas/TioCoco-api/pkg/logger"
)

// stores puertos de persistencia según STORE_DRIVER.
type stores struct {
	products repository.ProductRepository
	sales    repository.SaleRepository
	tx       sales.TxRunner
	settings repository.KeyValueStore
	feed     repository.ProductChangeFeed
	close    func()
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   cfg.Log.Level,
		Service: cfg.App.Name,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("store", cfg.Store.Driver).
		Msg("iniciando aplicación")

	ctx := context.Background()
	st := openStores(ctx, cfg, log)
	defer st.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Tasa: API JSON primero, luego la página del BCV. Cada fuente con su propio cliente y timeout.
	sources := []rate.Source{
		ratesource.NewDolarAPISource(cfg.Rate.PrimaryURL, nil, cfg.Rate.Timeout()),
		ratesource.NewBCVScraperSource(cfg.Rate.FallbackURL, nil, cfg.Rate.Timeout()),
	}
	checker := netcheck.NewDialChecker(cfg.Rate.ProbeAddrs, 3*time.Second)
	rates := rate.NewRateCache(rate.Config{
		CacheDuration: cfg.Rate.CacheDuration(),
		MinimumRate:   cfg.Rate.Minimum,
		DefaultRate:   cfg.Rate.Default,
		FetchTimeout:  cfg.Rate.Timeout(),
	}, st.settings, sources, checker, log.Component("rate_cache"), rate.WithRecorder(m))
	if err := rates.Initialize(ctx); err != nil {
		if rate.IsMalformed(err) {
			log.Fatal().Err(err).Msg("estado persistido de la tasa corrupto, revisar la tabla settings")
		}
		log.Fatal().Err(err).Msg("inicializar caché de tasa")
	}

	var publisher interface {
		sales.EventPublisher
		background.ChangeSink
		Close() error
	} = kafka.NopPublisher{}
	if cfg.Kafka.Enabled() {
		publisher = kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("publicación de eventos activa")
	}
	defer publisher.Close()

	ledger := sales.NewSaleLedger(st.tx, st.products, st.sales, rates, log.Component("sale_ledger"),
		sales.WithPublisher(publisher),
		sales.WithMetrics(m),
	)
	productUC, err := usecase.NewProductUseCase(st.products, rates)
	if err != nil {
		log.Fatal().Err(err).Msg("caso de uso de productos")
	}

	trigger := background.NewRateTrigger(background.TriggerConfig{
		Interval:   time.Duration(cfg.Trigger.IntervalMinutes) * time.Minute,
		RetryBase:  time.Duration(cfg.Trigger.RetryBaseMinutes) * time.Minute,
		RetryMax:   time.Duration(cfg.Trigger.RetryMaxMinutes) * time.Minute,
		MaxRetries: cfg.Trigger.RetryMaxAttempts,
	}, rates, log.Component("rate_trigger"), m, background.Online(checker))

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	tasks := background.NewBackgroundTasks(trigger, st.feed, publisher, log.Component("background"))
	go func() {
		if err := tasks.StartAll(bgCtx); err != nil {
			log.Error().Err(err).Msg("tareas de fondo finalizadas")
		}
	}()

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 40, // refresh forzado puede esperar al scraper
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(httpRouter.RequestLogger(log.Component("http")))

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "TioCoco API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name, "store": cfg.Store.Driver})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		ProductUC:   productUC,
		Ledger:      ledger,
		Rates:       rates,
		DashboardUC: appanalytics.NewDashboardUseCase(st.sales, st.products),
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
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
	stopBackground()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}

func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) stores {
	if cfg.Store.Driver == "memory" {
		log.Warn().Msg("almacén en memoria: los datos se pierden al reiniciar")
		store := memory.NewStore()
		return stores{
			products: store.Products(),
			sales:    store.Sales(),
			tx:       store.TxRunner(),
			settings: memory.NewKeyValueStore(),
			feed:     store.ChangeFeed(),
			close:    func() {},
		}
	}

	if cfg.DB.AutoMigrate {
		version, err := postgres.RunMigrations(cfg.DB.ConnectionString())
		if err != nil {
			log.Fatal().Err(err).Msg("migraciones de PostgreSQL")
		}
		log.Info().Uint("version", version).Msg("esquema actualizado")
	}

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	return stores{
		products: postgres.NewProductRepository(pool),
		sales:    postgres.NewSaleRepository(pool),
		tx:       postgres.NewTxRunner(pool),
		settings: postgres.NewSettingsRepository(pool),
		feed:     postgres.NewChangeFeed(pool, log.Component("change_feed")),
		close:    pool.Close,
	}
}
