// Command itemcrawler mirrors a remote item API into a local store.
//
// Architecture overview:
//   - Gap scan: each run loads the persisted ids, reads the remote max id once and walks
//     {0..max} minus the persisted set from the top down. Nothing beyond one cursor is held
//     in memory, so a restart simply resumes where the store left off.
//   - Worker pool: a fixed number of workers share the scanner, fetch items through the
//     Colly-based source (optionally rate limited per host) and buffer them into batches.
//     Ids with no content become tombstones; failed fetches are dropped for the run.
//   - Persistence: each batch is one all-or-nothing insert into SQLite (default), Postgres,
//     or memory. A committed batch may be announced on Pub/Sub. After a run the SQLite file
//     can be snapshotted to a local directory or GCS bucket.
//   - Observability: zap logs, progress events fanned out by the progress hub to log,
//     Prometheus, progress bar and in-memory snapshot sinks, plus an optional status server.
//
// Quick checklist:
//   - Configure via a YAML file (--config) or ITEMCRAWLER_* env vars, e.g.
//     ITEMCRAWLER_STORE_PATH, ITEMCRAWLER_CRAWL_WORKERS, ITEMCRAWLER_SOURCE_BASE_URL.
//   - Run: go run . crawl --config config.yaml, then go run . status to see what is missing.
package main

import (
	"os"

	"github.com/JakeFAU/item-crawler/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
