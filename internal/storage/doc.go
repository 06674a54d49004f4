// Package storage provides SQLite-based persistence for indexing run history.
//
// Every GenerateIndex call becomes a run; the lifecycle events it emits are
// stored in order beneath it.
//
// # Database Schema
//
// Tables:
//   - runs: one row per run (project root, status, timing, artifact checksum)
//   - events: lifecycle events keyed by run ID
//   - schema_version: applied migrations, compared with semver
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("/home/dev/.scip-indexer/history.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	idx, _ := indexer.New(root, &indexer.Config{
//	    Logger: logging.Multi(slogSink, storage.NewEventSink(db)),
//	})
//
//	status, err := db.GetStatus(ctx, idx.Root())
//
// # Transactions
//
// EventSink writes each event and the run row it affects in one
// transaction:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	if err := tx.AppendEvent(ctx, event); err != nil {
//	    _ = tx.Rollback()
//	    return err
//	}
//	return tx.Commit()
//
// # Build Tags
//
// Pure Go build (default):
//
//   - Uses modernc.org/sqlite driver
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build ./...
//
// CGO build (cgo_sqlite tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Requires C compiler
//
//     CGO_ENABLED=1 go build -tags "cgo_sqlite" ./...
package storage
