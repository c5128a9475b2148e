package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
    run_id               TEXT PRIMARY KEY,
    experiment_id        TEXT NOT NULL,
    run_name             TEXT NOT NULL,
    run_type             TEXT NOT NULL,
    status               TEXT,
    run_dir              TEXT NOT NULL,
    start_time           TEXT,
    end_time             TEXT,
    dir_mtime_ns         INTEGER NOT NULL,
    dir_size             INTEGER NOT NULL,
    parsed_at            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_metrics (
    run_id               TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    name                 TEXT NOT NULL,
    value                REAL NOT NULL,
    PRIMARY KEY (run_id, name)
);

CREATE TABLE IF NOT EXISTS run_params (
    run_id               TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    name                 TEXT NOT NULL,
    value                TEXT NOT NULL,
    PRIMARY KEY (run_id, name)
);

CREATE TABLE IF NOT EXISTS run_tracker (
    run_dir              TEXT PRIMARY KEY,
    mtime_ns             INTEGER NOT NULL,
    size_bytes           INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS predictions (
    id                   TEXT PRIMARY KEY,
    created_at           TEXT NOT NULL,
    source               TEXT NOT NULL,
    task                 TEXT NOT NULL,
    label                TEXT,
    probabilities        TEXT,
    max_emi              REAL,
    emi_ratio            REAL,
    profile              TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_experiment ON runs(experiment_id);
CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);
`
