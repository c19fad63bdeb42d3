package tests

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/DrorGr/amesaBE-sub006/internal/adapter/storage"
	"github.com/DrorGr/amesaBE-sub006/internal/core/domain"
	"github.com/DrorGr/amesaBE-sub006/internal/core/service"
	"github.com/DrorGr/amesaBE-sub006/internal/worker"
)

type testEnv struct {
	redis     *redis.Client
	db        *sql.DB
	cache     *storage.RedisAdapter
	durable   *storage.MySQLAdapter
	inventory *service.InventoryManager
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/lottery?parseTime=true"
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	cache := storage.NewRedisAdapter(rdb)
	durable := storage.NewMySQLAdapter(db)
	return &testEnv{
		redis:     rdb,
		db:        db,
		cache:     cache,
		durable:   durable,
		inventory: service.NewInventoryManager(cache, durable),
	}
}

func (e *testEnv) close() {
	e.redis.Close()
	e.db.Close()
}

func (e *testEnv) createHouse(t *testing.T, totalTickets int) string {
	t.Helper()
	houseID := "e2e-" + uuid.New().String()
	now := time.Now()
	_, err := e.db.ExecContext(context.Background(), `
		INSERT INTO houses (id, title, total_tickets, ticket_price, start_date, end_date, status, participant_cap, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		houseID, "E2E House", totalTickets, 1000,
		now.Add(-time.Hour), now.Add(time.Hour), domain.HouseStatusActive, now, now,
	)
	if err != nil {
		t.Fatalf("create house: %v", err)
	}
	return houseID
}

type staticGateway struct{}

func (staticGateway) Charge(ctx context.Context, token string, amount int64, ref string) (string, error) {
	return "e2e-tx-" + token[:8], nil
}

func TestEndToEnd_ReserveConfirmIssue(t *testing.T) {
	env := setupEnv(t)
	defer env.close()

	ctx := context.Background()
	houseID := env.createHouse(t, 10)

	reservations := service.NewReservationService(env.inventory, env.cache, env.durable, nil)
	issuer := service.NewTicketIssuer(env.durable)
	processor := service.NewReservationProcessor(env.inventory, issuer, staticGateway{}, env.durable, nil)

	// Unique user per run so the hourly rate-limit window never carries over
	// between test invocations.
	userID := "e2e-user-" + uuid.New().String()
	reservation, err := reservations.CreateReservation(ctx, houseID, userID, 3, "pm-1")
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	status, err := env.inventory.GetStatus(ctx, houseID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Available != 7 || status.Reserved != 3 {
		t.Fatalf("expected available=7 reserved=3 after reserve, got %+v", status)
	}

	numbers, err := processor.Confirm(ctx, reservation.ReservationToken, "")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if len(numbers) != 3 {
		t.Fatalf("expected 3 ticket numbers, got %v", numbers)
	}

	status, _ = env.inventory.GetStatus(ctx, houseID)
	if status.Available != 7 || status.Reserved != 0 || status.Sold != 3 {
		t.Errorf("expected available=7 reserved=0 sold=3 after confirm, got %+v", status)
	}

	// Duplicate confirm is discarded, tickets issued once.
	_, err = processor.Confirm(ctx, reservation.ReservationToken, "")
	if !errors.Is(err, domain.ErrReservationFinalized) {
		t.Errorf("expected ErrReservationFinalized on duplicate confirm, got: %v", err)
	}
	sold, _ := env.durable.CountSoldTickets(ctx, houseID)
	if sold != 3 {
		t.Errorf("expected 3 tickets total, got %d", sold)
	}
}

func TestEndToEnd_ExpiryReclaimsInventory(t *testing.T) {
	env := setupEnv(t)
	defer env.close()

	ctx := context.Background()
	houseID := env.createHouse(t, 10)

	issuer := service.NewTicketIssuer(env.durable)
	processor := service.NewReservationProcessor(env.inventory, issuer, staticGateway{}, env.durable, nil)

	token, err := env.inventory.TryReserve(ctx, houseID, 4, time.Minute)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	now := time.Now()
	reservation := domain.Reservation{
		ID:               uuid.New().String(),
		HouseID:          houseID,
		UserID:           "e2e-user",
		Quantity:         4,
		TotalPrice:       4000,
		ReservationToken: token,
		Status:           domain.ReservationStatusPending,
		ExpiresAt:        now.Add(-time.Second), // already overdue
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := env.durable.CreateReservation(ctx, reservation); err != nil {
		t.Fatalf("persist: %v", err)
	}

	// One cleanup pass reclaims the quantity.
	expired, err := env.durable.ListExpiredPending(ctx, time.Now(), 100)
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	for _, r := range expired {
		if r.ReservationToken == token {
			if ok, err := processor.Expire(ctx, r); err != nil || !ok {
				t.Fatalf("expire: ok=%v err=%v", ok, err)
			}
		}
	}

	counts, found, _ := env.cache.GetInventory(ctx, houseID)
	if !found {
		t.Fatal("expected counters present")
	}
	if counts.Available != 10 || counts.Reserved != 0 {
		t.Errorf("expected full pool restored, got %+v", counts)
	}

	stored, _ := env.durable.GetReservationByToken(ctx, token)
	if stored.Status != domain.ReservationStatusExpired {
		t.Errorf("expected expired, got %s", stored.Status)
	}
}

func TestEndToEnd_SyncRepairsCorruptedCache(t *testing.T) {
	env := setupEnv(t)
	defer env.close()

	ctx := context.Background()
	houseID := env.createHouse(t, 10)

	if err := env.inventory.OverwriteCounts(ctx, houseID, domain.InventoryCounts{Available: 10}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	// Corrupt the cache counter behind the manager's back.
	if err := env.redis.HSet(ctx, "house:"+houseID+":inventory", "available", 999).Err(); err != nil {
		t.Fatalf("corrupt cache: %v", err)
	}

	sync := worker.NewSyncLoop(env.durable, env.inventory, nil, time.Minute, 0)
	if err := sync.SyncHouse(ctx, houseID); err != nil {
		t.Fatalf("sync: %v", err)
	}

	counts, _, _ := env.cache.GetInventory(ctx, houseID)
	if counts.Available != 10 {
		t.Errorf("expected durable truth (available=10) restored, got %+v", counts)
	}
}
