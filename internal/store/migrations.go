package store

// migration is one schema step. Versions are sequential from 1 and each
// migration records its own version.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  DATETIME NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	considered  INTEGER NOT NULL DEFAULT 0,
	completed   INTEGER NOT NULL DEFAULT 0,
	trashed     INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	dry_run     INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

CREATE TABLE IF NOT EXISTS outcomes (
	run_id           TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	message_id       TEXT NOT NULL,
	subject          TEXT NOT NULL DEFAULT '',
	sender           TEXT NOT NULL DEFAULT '',
	outcome          TEXT NOT NULL,
	tool_status      TEXT NOT NULL DEFAULT '',
	detail           TEXT NOT NULL DEFAULT '',
	snippet_fallback INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, message_id)
);

CREATE INDEX IF NOT EXISTS idx_outcomes_message_id ON outcomes(message_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE outcomes ADD COLUMN restored_at DATETIME;

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
