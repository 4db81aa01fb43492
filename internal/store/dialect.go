package store

// dialect holds the statements that differ between SQL engines
type dialect struct {
	name         string
	insertIgnore string
	schema       []string
}

var sqliteDialect = dialect{
	name:         "sqlite3",
	insertIgnore: "INSERT OR IGNORE INTO",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS evidence (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			text          TEXT NOT NULL,
			kind          TEXT NOT NULL,
			context       TEXT DEFAULT '',
			source_type   TEXT NOT NULL,
			evidence_date DATETIME NULL,
			embedding     BLOB,
			created_at    DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evidence_user ON evidence(user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS claims (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			type        TEXT NOT NULL,
			label       TEXT NOT NULL,
			description TEXT DEFAULT '',
			confidence  REAL NOT NULL DEFAULT 0,
			embedding   BLOB,
			created_at  DATETIME NOT NULL,
			updated_at  DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_user ON claims(user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS claim_evidence (
			claim_id    TEXT NOT NULL,
			evidence_id TEXT NOT NULL,
			strength    TEXT NOT NULL,
			created_at  DATETIME NOT NULL,
			PRIMARY KEY (claim_id, evidence_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_claim_evidence_evidence ON claim_evidence(evidence_id)`,
		`CREATE TABLE IF NOT EXISTS opportunities (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			title        TEXT NOT NULL,
			company      TEXT DEFAULT '',
			requirements TEXT NOT NULL,
			created_at   DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS claim_issues (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL,
			claim_id         TEXT NOT NULL,
			type             TEXT NOT NULL,
			severity         TEXT NOT NULL,
			message          TEXT DEFAULT '',
			related_claim_id TEXT DEFAULT '',
			dismissed        INTEGER NOT NULL DEFAULT 0,
			created_at       DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_claim_issues_user ON claim_issues(user_id)`,
	},
}

var mysqlDialect = dialect{
	name:         "mysql",
	insertIgnore: "INSERT IGNORE INTO",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS evidence (
			id            VARCHAR(64) PRIMARY KEY,
			user_id       VARCHAR(255) NOT NULL,
			text          TEXT NOT NULL,
			kind          VARCHAR(32) NOT NULL,
			context       TEXT,
			source_type   VARCHAR(32) NOT NULL,
			evidence_date DATETIME(6) NULL,
			embedding     LONGBLOB,
			created_at    DATETIME(6) NOT NULL,
			INDEX idx_evidence_user (user_id, created_at)
		)`,
		`CREATE TABLE IF NOT EXISTS claims (
			id          VARCHAR(64) PRIMARY KEY,
			user_id     VARCHAR(255) NOT NULL,
			type        VARCHAR(32) NOT NULL,
			label       VARCHAR(512) NOT NULL,
			description TEXT,
			confidence  DOUBLE NOT NULL DEFAULT 0,
			embedding   LONGBLOB,
			created_at  DATETIME(6) NOT NULL,
			updated_at  DATETIME(6) NOT NULL,
			INDEX idx_claims_user (user_id, created_at)
		)`,
		`CREATE TABLE IF NOT EXISTS claim_evidence (
			claim_id    VARCHAR(64) NOT NULL,
			evidence_id VARCHAR(64) NOT NULL,
			strength    VARCHAR(16) NOT NULL,
			created_at  DATETIME(6) NOT NULL,
			PRIMARY KEY (claim_id, evidence_id),
			INDEX idx_claim_evidence_evidence (evidence_id)
		)`,
		`CREATE TABLE IF NOT EXISTS opportunities (
			id           VARCHAR(64) PRIMARY KEY,
			user_id      VARCHAR(255) NOT NULL,
			title        VARCHAR(512) NOT NULL,
			company      VARCHAR(255),
			requirements LONGTEXT NOT NULL,
			created_at   DATETIME(6) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS claim_issues (
			id               VARCHAR(64) PRIMARY KEY,
			user_id          VARCHAR(255) NOT NULL,
			claim_id         VARCHAR(64) NOT NULL,
			type             VARCHAR(32) NOT NULL,
			severity         VARCHAR(16) NOT NULL,
			message          TEXT,
			related_claim_id VARCHAR(64),
			dismissed        TINYINT(1) NOT NULL DEFAULT 0,
			created_at       DATETIME(6) NOT NULL,
			INDEX idx_claim_issues_user (user_id)
		)`,
	},
}
