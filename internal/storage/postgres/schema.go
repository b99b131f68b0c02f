package postgres

const schema = `
CREATE TABLE IF NOT EXISTS kb_documents (
    key TEXT PRIMARY KEY,
    value JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
