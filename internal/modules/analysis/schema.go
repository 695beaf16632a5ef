package analysis

import "database/sql"

// Schema owns the tables for analyses and their captured log lines.
// Recommendations are stored as a JSON column; they are written once at
// synthesis time and always read back as a whole.
const Schema = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    tickers TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    summary TEXT NOT NULL DEFAULT '',
    recommendations_json TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS analysis_logs (
    analysis_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    message TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    PRIMARY KEY (analysis_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_analysis_logs_analysis ON analysis_logs(analysis_id);
`

// InitSchema ensures the analyses tables exist
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
