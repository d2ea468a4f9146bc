package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/makkenzo/apikey-service-api/internal/auditlog"
	"github.com/makkenzo/apikey-service-api/internal/domain/apikey"
	"github.com/makkenzo/apikey-service-api/internal/domain/audit"
	"github.com/makkenzo/apikey-service-api/internal/keycodec"
	"github.com/makkenzo/apikey-service-api/internal/storage/postgres"
	"go.uber.org/zap"
)

func main() {
	apiIDFlag := flag.String("api", "", "ID of the API the key belongs to")
	name := flag.String("name", "", "Optional key name")
	flag.Parse()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}
	secret := os.Getenv("SECRET_KEY")
	if secret == "" {
		log.Fatal("SECRET_KEY environment variable is required")
	}
	prefix := os.Getenv("KEY_PREFIX")
	if prefix == "" {
		prefix = "sk_live_"
	}

	apiID, err := uuid.Parse(*apiIDFlag)
	if err != nil {
		log.Fatalf("-api must be a valid API id: %v", err)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}
	defer pool.Close()

	if _, err := postgres.NewAPIRepository(pool, logger).FindByID(ctx, apiID); err != nil {
		log.Fatalf("Failed to load API %s: %v", apiID, err)
	}

	generated := keycodec.New(secret, prefix).Generate()
	key := &apikey.APIKey{
		APIID:    apiID,
		KeyHash:  generated.Hash,
		Prefix:   generated.DisplayPrefix,
		Metadata: []byte("{}"),
	}
	if *name != "" {
		key.Name = name
	}

	keyID, err := postgres.NewAPIKeyRepository(pool, logger).Create(ctx, key)
	if err != nil {
		log.Fatalf("Failed to save API key to database: %v", err)
	}

	recorder := auditlog.NewRecorder(postgres.NewAuditRepository(pool, logger), 2*time.Second, logger)
	recorder.Record(ctx, keyID, audit.ActionCreate, "", "createapikey", audit.Context{"source": "cli"})

	fmt.Printf("Generated API Key (SAVE THIS securely, it is not shown again):\n%s\n\n", generated.RawKey)
	fmt.Printf("Prefix: %s\n", generated.DisplayPrefix)
	fmt.Printf("API Key saved to database with ID: %s\n", keyID)
}
