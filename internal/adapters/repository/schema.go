package repository

// Times are stored as unix nanoseconds; NULL marks "never".
const schema = `
CREATE TABLE IF NOT EXISTS sites (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL,
    latitude    REAL NOT NULL,
    longitude   REAL NOT NULL,
    qr_code     TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    username    TEXT NOT NULL UNIQUE,
    role        TEXT NOT NULL DEFAULT 'agent' CHECK(role IN ('agent','admin')),
    created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id             INTEGER NOT NULL,
    site_id             INTEGER NOT NULL,
    water_level         REAL NOT NULL,
    timestamp           INTEGER NOT NULL,
    gps_latitude        REAL NOT NULL,
    gps_longitude       REAL NOT NULL,
    photo_filename      TEXT NOT NULL DEFAULT '',
    location_verified   INTEGER NOT NULL DEFAULT 0,
    verification_method TEXT NOT NULL DEFAULT 'gps',
    qr_code_scanned     TEXT,
    notes               TEXT NOT NULL DEFAULT '',
    quality_rating      INTEGER,
    created_at          INTEGER NOT NULL,
    tamper_score        REAL NOT NULL DEFAULT 0,
    tamper_status       TEXT NOT NULL DEFAULT '',
    last_tamper_check   INTEGER,
    sync_status         TEXT NOT NULL DEFAULT 'pending' CHECK(sync_status IN ('pending','synced','failed')),
    sync_attempts       INTEGER NOT NULL DEFAULT 0,
    last_sync_attempt   INTEGER,
    sync_error          TEXT
);

CREATE INDEX IF NOT EXISTS idx_submissions_user_time ON submissions(user_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_submissions_user_site_time ON submissions(user_id, site_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_submissions_sync ON submissions(sync_status);

CREATE TABLE IF NOT EXISTS tamper_detections (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    submission_id    INTEGER NOT NULL REFERENCES submissions(id),
    detection_type   TEXT NOT NULL,
    severity         TEXT NOT NULL CHECK(severity IN ('low','medium','high','critical')),
    description      TEXT NOT NULL,
    confidence_score REAL NOT NULL,
    created_at       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_detections_submission ON tamper_detections(submission_id);

CREATE TABLE IF NOT EXISTS sync_logs (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    sync_type      TEXT NOT NULL CHECK(sync_type IN ('auto','manual')),
    timestamp      INTEGER NOT NULL,
    synced         INTEGER NOT NULL DEFAULT 0,
    failed         INTEGER NOT NULL DEFAULT 0,
    total_attempts INTEGER NOT NULL DEFAULT 0,
    duration_ms    INTEGER NOT NULL DEFAULT 0,
    success        INTEGER NOT NULL DEFAULT 1,
    error_message  TEXT
);
`
