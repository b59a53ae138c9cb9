package store

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS article_stats (
    owner_id    TEXT NOT NULL,
    observed_on TEXT NOT NULL,
    item_id     INTEGER NOT NULL,
    title       TEXT NOT NULL,
    views       INTEGER NOT NULL DEFAULT 0,
    likes       INTEGER NOT NULL DEFAULT 0,
    comments    INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (owner_id, observed_on, item_id)
)`,
	`CREATE INDEX IF NOT EXISTS idx_article_stats_title ON article_stats(owner_id, title)`,
	`CREATE TABLE IF NOT EXISTS app_users (
    owner_id        TEXT PRIMARY KEY,
    email           TEXT NOT NULL UNIQUE,
    credential_hash TEXT NOT NULL,
    password_hash   TEXT NOT NULL,
    is_approved     BOOLEAN NOT NULL DEFAULT 0,
    skip_billing    BOOLEAN NOT NULL DEFAULT 0,
    created_at      DATETIME NOT NULL
)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS article_stats (
    owner_id    TEXT NOT NULL,
    observed_on TEXT NOT NULL,
    item_id     BIGINT NOT NULL,
    title       TEXT NOT NULL,
    views       BIGINT NOT NULL DEFAULT 0,
    likes       BIGINT NOT NULL DEFAULT 0,
    comments    BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (owner_id, observed_on, item_id)
)`,
	`CREATE INDEX IF NOT EXISTS idx_article_stats_title ON article_stats(owner_id, title)`,
	`CREATE TABLE IF NOT EXISTS app_users (
    owner_id        TEXT PRIMARY KEY,
    email           TEXT NOT NULL UNIQUE,
    credential_hash TEXT NOT NULL,
    password_hash   TEXT NOT NULL,
    is_approved     BOOLEAN NOT NULL DEFAULT FALSE,
    skip_billing    BOOLEAN NOT NULL DEFAULT FALSE,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
}

// exportSchema is the layout of a standalone per-owner export file.
const exportSchema = `
CREATE TABLE article_stats (
    owner_id    TEXT NOT NULL,
    observed_on TEXT NOT NULL,
    item_id     INTEGER NOT NULL,
    title       TEXT NOT NULL,
    views       INTEGER NOT NULL DEFAULT 0,
    likes       INTEGER NOT NULL DEFAULT 0,
    comments    INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (owner_id, observed_on, item_id)
);
`
