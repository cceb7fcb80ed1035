package main

import (
	"context"
	"fmt"
	"log"

	"github.com/Harshitk-cp/ranger/internal/config"
	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/Harshitk-cp/ranger/internal/service"
	"github.com/Harshitk-cp/ranger/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	ctx := context.Background()

	knowledge, closeStore := openKnowledgeStore(ctx)
	defer closeStore()

	svc := service.NewKnowledgeService(knowledge, nil, service.KnowledgeConfig{
		VerificationThreshold: 0.8,
		LearningRate:          0.1,
		SimilarityThreshold:   0.85,
	}, zap.NewNop())

	facts := []struct {
		statement  string
		confidence float64
	}{
		{"The Eiffel Tower was completed in 1889", 0.9},
		{"Water boils at 100 degrees Celsius at sea level", 0.95},
		{"Go was announced by Google in 2009", 0.85},
		{"The Pacific is the largest ocean on Earth", 0.9},
		{"PostgreSQL supports JSONB columns", 0.8},
		{"Mount Everest is the highest mountain above sea level", 0.92},
	}

	for _, f := range facts {
		item, err := svc.Upsert(ctx, f.statement, f.confidence, nil)
		if err != nil {
			log.Printf("Warning: Failed to seed %q: %v", f.statement, err)
			continue
		}
		fmt.Printf("Seeded [%s] %.2f: %s\n", item.VerificationStatus, item.Confidence, truncate(item.Statement, 50))
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		log.Fatalf("Failed to read stats: %v", err)
	}

	fmt.Println("\n=== Seed Complete ===")
	fmt.Printf("Knowledge items: %d (avg confidence %.2f)\n", stats.Total, stats.AverageConfidence)
	fmt.Println("\nTo query knowledge, use:")
	fmt.Printf("curl 'http://%s/v1/knowledge?q=eiffel+tower'\n", config.ServerAddr())
}

func openKnowledgeStore(ctx context.Context) (domain.KnowledgeStore, func()) {
	if config.StoreDriver() == "postgres" {
		pool, err := pgxpool.New(ctx, config.DatabaseURL())
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := pool.Ping(ctx); err != nil {
			log.Fatalf("Failed to ping database: %v", err)
		}
		if err := store.MigratePostgres(ctx, pool); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		fmt.Println("Connected to database")
		return store.NewKnowledgeStore(pool), pool.Close
	}

	db, err := store.OpenSQLite(config.SQLitePath())
	if err != nil {
		log.Fatalf("Failed to open sqlite store: %v", err)
	}
	fmt.Printf("Opened %s\n", config.SQLitePath())
	return store.NewSQLiteKnowledgeStore(db), func() { _ = db.Close() }
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
