package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/record-store/internal/adapter/storage"
	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/core/service"
)

const (
	initialStock  = 20
	totalRequests = 50
)

// Runs against an in-memory SQLite database unless STRESS_DRIVER and
// STRESS_DSN point somewhere else, e.g. mysql and a parseTime DSN.
func main() {
	ctx := context.Background()

	driver, dsn := os.Getenv("STRESS_DRIVER"), os.Getenv("STRESS_DSN")
	pool := storage.PoolConfig{MaxOpenConns: 50, MaxIdleConns: 25}
	if driver == "" {
		driver, dsn = storage.DriverSQLite, "file:stress?mode=memory&cache=shared"
		pool = storage.PoolConfig{MaxOpenConns: 1}
	}

	db, err := storage.Open(ctx, driver, dsn, pool)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := storage.Migrate(ctx, db); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	store := storage.NewSQLStore(db)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	record, err := store.CreateRecord(ctx, domain.Record{
		Artist:   "Stress",
		Album:    fmt.Sprintf("Run %d", time.Now().UnixNano()),
		Price:    decimal.RequireFromString("19.99"),
		Qty:      initialStock,
		Format:   domain.FormatVinyl,
		Category: domain.CategoryRock,
	})
	if err != nil {
		log.Fatalf("failed to create record: %v", err)
	}

	orderService := service.NewOrderService(store, logger)

	// Counters
	var successCount atomic.Int32
	var failCount atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := orderService.Create(ctx, []domain.OrderLine{{RecordID: record.ID, Quantity: 1}})
			if err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Driver:           %s\n", driver)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	if success == int32(initialStock) && fail == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d failed\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, fail)
		failed = true
	}

	final, err := store.GetRecord(ctx, record.ID)
	if err != nil {
		log.Fatalf("failed to read record: %v", err)
	}
	fmt.Printf("Final Stock:      %d\n", final.Qty)

	if final.Qty == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", final.Qty)
		failed = true
	}

	if failed {
		os.Exit(1)
	}
}
