package mysql

const insertRunSQL = `
INSERT INTO ingest_runs (id, pipeline, status, rows_loaded, started_at)
VALUES (?, ?, ?, 0, ?)
`

const finishRunSQL = `
UPDATE ingest_runs
SET status = ?, rows_loaded = ?, error_text = NULLIF(?, ''), finished_at = ?
WHERE id = ?
`

const insertMissSQL = `
INSERT INTO ingest_misses (run_id, entity_id, stage, reason)
VALUES (?, ?, ?, ?)
`

const insertSummarySQL = `
INSERT INTO review_summaries
  (run_id, total_reviews, average_rating, rating_0, rating_1, rating_2, rating_3, rating_4, rating_5, batch_timestamp)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// runColumns is shared by every run SELECT; keep scanRun in the same order.
var runColumns = []string{"id", "pipeline", "status", "rows_loaded", "error_text", "started_at", "finished_at"}

const getRunSQL = `
SELECT id, pipeline, status, rows_loaded, error_text, started_at, finished_at
FROM ingest_runs
WHERE id = ?
`

const listMissesSQL = `
SELECT run_id, entity_id, stage, reason
FROM ingest_misses
WHERE run_id = ?
ORDER BY id
`

const latestSummarySQL = `
SELECT run_id, total_reviews, average_rating, rating_0, rating_1, rating_2, rating_3, rating_4, rating_5, batch_timestamp
FROM review_summaries
ORDER BY batch_timestamp DESC, id DESC
LIMIT 1
`
