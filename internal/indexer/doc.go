// Package indexer keeps a project's SCIP index at <root>/.scip/index.scip
// up to date.
//
// # Basic Usage
//
//	idx, err := indexer.NewFromConfig(root, cfg, logger, nil)
//	if err != nil {
//	    return err
//	}
//	res, err := idx.GenerateIndex(ctx, indexer.GenerateOptions{Incremental: true})
//
// # Run Sequence
//
// A run proceeds through fixed steps:
//
//  1. Incremental runs consult the freshness check and return early
//     (generate_index_skipped) when the artifact is newer than every source.
//  2. generate_index_start is emitted.
//  3. Adapters are detected. None is ErrNoLanguageDetected.
//  4. <root>/.scip is created. On the first run in a git checkout ".scip/"
//     is appended to .gitignore.
//  5. The previous artifact is copied to index.scip.bak.
//  6. Adapters run one at a time, installing their indexer first when
//     needed. The first failure aborts the run.
//  7. generate_index_complete is emitted with the artifact checksum.
//
// # Freshness
//
// Freshness compares only modification times: the newest file with a
// recognized source extension outside ignored directories against the
// artifact. A tree without sources never needs a reindex once an artifact
// exists. Stat failures answer "needs reindex".
//
// # Concurrency
//
// An Indexer does no locking. Hosts that can start overlapping runs use a
// LockSet keyed by project root.
package indexer
