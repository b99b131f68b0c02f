package sqlite

const schema = `
-- Knowledge base documents (team routing rules, label set)
CREATE TABLE IF NOT EXISTS kb_documents (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- One row per processed webhook event
CREATE TABLE IF NOT EXISTS triage_runs (
    id TEXT PRIMARY KEY,
    issue_id TEXT NOT NULL DEFAULT '',
    event_type TEXT NOT NULL,
    outcome TEXT NOT NULL CHECK(outcome IN ('ignored', 'clarification', 'triaged', 'failed')),
    reason TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    plan TEXT NOT NULL DEFAULT '',
    started_at DATETIME NOT NULL,
    finished_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_triage_runs_issue ON triage_runs(issue_id);
CREATE INDEX IF NOT EXISTS idx_triage_runs_started_at ON triage_runs(started_at);

-- Last known triage state per issue (labels in the tracker stay authoritative)
CREATE TABLE IF NOT EXISTS issue_states (
    issue_id TEXT PRIMARY KEY,
    state TEXT NOT NULL CHECK(state IN ('fresh', 'awaiting_info', 'triaged')),
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
