package history

const schema = `
CREATE TABLE IF NOT EXISTS seen_statuses (
    url TEXT PRIMARY KEY,
    seq INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_seen_seq ON seen_statuses(seq);

CREATE TABLE IF NOT EXISTS author_boosts (
    acct       TEXT PRIMARY KEY,
    boosted_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS boost_counters (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    day        TEXT NOT NULL DEFAULT '',
    day_count  INTEGER NOT NULL DEFAULT 0,
    hour       TEXT NOT NULL DEFAULT '',
    hour_count INTEGER NOT NULL DEFAULT 0
);
`
