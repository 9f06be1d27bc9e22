package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"factorycraft.ai/internal/persistence/indexdb"
	"factorycraft.ai/internal/persistence/snapshot"
	"factorycraft.ai/internal/sim/catalogs"
	"factorycraft.ai/internal/sim/factory"
	"factorycraft.ai/internal/sim/tuning"
)

type runtimeIndex interface {
	factory.TickLogger
	factory.AuditLogger
	Close() error
	UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSave(path string, save snapshot.SaveV1)
}

var (
	_ runtimeIndex = (*indexdb.SQLiteIndex)(nil)
	_ runtimeIndex = (*indexdb.IngestIndex)(nil)
)

func openRuntimeIndex(factoryDir, factoryID string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("FC_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(factoryDir, "index", "factory.sqlite")
		idx, err := indexdb.OpenSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "http":
		endpoint := strings.TrimSpace(os.Getenv("FC_INDEX_INGEST_URL"))
		token := strings.TrimSpace(os.Getenv("FC_INDEX_TOKEN"))
		if endpoint == "" {
			return nil, fmt.Errorf("FC_INDEX_BACKEND=http but FC_INDEX_INGEST_URL is empty")
		}
		flushMS := envInt("FC_INDEX_FLUSH_MS", 500)
		batchSize := envInt("FC_INDEX_BATCH_SIZE", 128)
		idx, err := indexdb.OpenIngest(indexdb.IngestConfig{
			Endpoint:      endpoint,
			Token:         token,
			FactoryID:     factoryID,
			BatchSize:     batchSize,
			FlushInterval: time.Duration(flushMS) * time.Millisecond,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported FC_INDEX_BACKEND: %s", backend)
	}
}
