package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/DrorGr/amesaBE-sub006/internal/adapter/events"
	"github.com/DrorGr/amesaBE-sub006/internal/adapter/handler"
	"github.com/DrorGr/amesaBE-sub006/internal/adapter/payment"
	"github.com/DrorGr/amesaBE-sub006/internal/adapter/storage"
	"github.com/DrorGr/amesaBE-sub006/internal/core/service"
	"github.com/DrorGr/amesaBE-sub006/internal/worker"
)

const (
	httpPort = ":8080"

	cleanupInterval  = time.Minute
	cleanupBatchSize = 200
	syncInterval     = 5 * time.Minute
	syncTolerance    = 0
	drawInterval     = time.Minute
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mysqlDSN := envOr("MYSQL_DSN", "root:root@tcp(localhost:3306)/lottery?parseTime=true")
	redisAddr := envOr("REDIS_ADDR", "localhost:6379")
	gatewayURL := envOr("PAYMENT_GATEWAY_URL", "http://localhost:9090")
	kafkaBrokers := strings.Split(envOr("KAFKA_BROKERS", "localhost:9092"), ",")

	// Initialize MySQL
	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}
	log.Println("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	log.Println("connected to redis")

	// Adapters
	cache := storage.NewRedisAdapter(rdb)
	durable := storage.NewMySQLAdapter(db)
	gateway := payment.NewClient(gatewayURL)
	publisher := events.NewKafkaPublisher(kafkaBrokers)

	// Core services
	inventory := service.NewInventoryManager(cache, durable)
	issuer := service.NewTicketIssuer(durable)
	processor := service.NewReservationProcessor(inventory, issuer, gateway, durable, publisher)
	reservations := service.NewReservationService(inventory, cache, durable, publisher)

	// Background loops
	var wg sync.WaitGroup
	loops := []func(context.Context){
		worker.NewCleanupLoop(durable, processor, cleanupInterval, cleanupBatchSize).Run,
		worker.NewSyncLoop(durable, inventory, publisher, syncInterval, syncTolerance).Run,
		worker.NewDrawTrigger(durable, noopDraw, drawInterval).Run,
	}
	for _, run := range loops {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}

	// HTTP server
	httpHandler := handler.NewHTTPHandler(reservations, processor, inventory)
	mux := http.NewServeMux()
	httpHandler.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:    httpPort,
		Handler: mux,
	}

	go func() {
		log.Printf("HTTP server listening on %s", httpPort)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Println("HTTP server stopped")

	cancel()
	wg.Wait()
	log.Println("background loops stopped")

	publisher.Close()
	rdb.Close()
	db.Close()
	log.Println("connections closed")
}

// noopDraw stands in for the external winner-selection collaborator.
func noopDraw(ctx context.Context, houseID string) error {
	log.Printf("draw requested for house %s", houseID)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
