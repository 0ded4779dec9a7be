package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"attendease/internal/attendance"
	"attendease/internal/config"
	"attendease/internal/exam"
	"attendease/internal/queue"
	"attendease/internal/store"
	"attendease/internal/student"
)

// Worker consumes mark messages and keeps the stats cache warm so polling
// list clients never trigger the aggregate queries themselves.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	students := student.NewRepository(db.Client)
	exams := exam.NewRepository(db.Client)
	ledger := attendance.NewRepository(db.Client)
	cache := store.NewStatsCache(redisClient.Client, cfg.StatsCacheTTL)
	svc := attendance.NewService(students, exams, ledger, cache, cfg.DefaultCourse)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeMarked {
			continue
		}
		if _, err := svc.RefreshStats(ctx); err != nil {
			log.Printf("stats refresh after %s failed: %v", string(msg.Body), err)
			continue
		}
		log.Printf("stats refreshed after mark %s", string(msg.Body))
	}

	log.Println("worker stopped")
}
