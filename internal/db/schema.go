package db

const schemaSQL = `
CREATE TABLE IF NOT EXISTS play_history (
  play_id TEXT PRIMARY KEY,
  request_id TEXT,
  client_sub TEXT,
  kind TEXT NOT NULL,
  device_ids TEXT NOT NULL DEFAULT '[]',
  source TEXT NOT NULL,
  volume REAL NOT NULL,
  title TEXT NOT NULL,
  mime_type TEXT NOT NULL,
  status TEXT NOT NULL,
  duration_sec REAL NOT NULL DEFAULT 0,
  error TEXT,
  restore_failures TEXT NOT NULL DEFAULT '[]',
  started_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_play_history_started_at ON play_history(started_at);
CREATE INDEX IF NOT EXISTS idx_play_history_status ON play_history(status);
`
