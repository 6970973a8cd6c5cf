package database

import (
	"database/sql"
	"fmt"

	"audiostore/logger"
	"audiostore/utils"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// DB is the process-wide database handle. The relational store is the single
// source of truth for products, download links, contacts, and admins.
var DB *sql.DB

var dbDriver string

// Initialize opens the database and bootstraps the schema.
// driver: "sqlite" or "mysql"
// dsn: SQLite file path or MySQL DSN
func Initialize(driver, dsn string) error {
	var err error

	if driver == "" {
		driver = "sqlite"
	}
	if dsn == "" && driver == "sqlite" {
		dsn = "./audiostore.db"
	}

	dbDriver = driver

	DB, err = sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := DB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite ships with foreign keys off; download link cascade depends on them.
	if driver == "sqlite" {
		if _, err := DB.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	if err := CreateTables(DB, driver); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if err := createDefaultAdmin(); err != nil {
		return fmt.Errorf("failed to create default admin: %w", err)
	}

	logger.Info("Database initialized successfully (driver=%s)", driver)
	return nil
}

// CreateTables bootstraps the schema on the given handle. Exposed so tests
// can run against their own in-memory databases.
func CreateTables(db *sql.DB, driver string) error {
	autoIncrement := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == "mysql" {
		autoIncrement = "BIGINT AUTO_INCREMENT PRIMARY KEY"
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS admins (
			id VARCHAR(50) PRIMARY KEY,
			username VARCHAR(100) UNIQUE NOT NULL,
			password VARCHAR(255) NOT NULL,
			email VARCHAR(100) NOT NULL,
			role VARCHAR(50) NOT NULL DEFAULT 'admin',
			created_at VARCHAR(50) NOT NULL DEFAULT '',
			updated_at VARCHAR(50) NOT NULL DEFAULT ''
		)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS products (
			id %s,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			price DECIMAL(10,2) NOT NULL DEFAULT 0,
			category VARCHAR(100) NOT NULL DEFAULT '',
			tags VARCHAR(255) NOT NULL DEFAULT '',
			image_url VARCHAR(500) NOT NULL DEFAULT '',
			file_url VARCHAR(500) NOT NULL DEFAULT '',
			created_at VARCHAR(50) NOT NULL DEFAULT '',
			updated_at VARCHAR(50) NOT NULL DEFAULT ''
		)`, autoIncrement),

		// session_id is nullable-unique: the database arbitrates the
		// one-grant-per-purchase-session invariant.
		`CREATE TABLE IF NOT EXISTS download_links (
			id VARCHAR(50) PRIMARY KEY,
			product_id INTEGER NOT NULL,
			session_id VARCHAR(255),
			signed_s3_url TEXT NOT NULL,
			download_link TEXT NOT NULL,
			download_count INTEGER NOT NULL DEFAULT 0,
			max_download_count INTEGER NOT NULL DEFAULT 0,
			expire_after_seconds INTEGER NOT NULL DEFAULT 0,
			created_by TEXT NOT NULL,
			created_at VARCHAR(50) NOT NULL DEFAULT '',
			FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE,
			UNIQUE (session_id)
		)`,

		`CREATE TABLE IF NOT EXISTS contacts (
			id VARCHAR(50) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL,
			subject VARCHAR(255) NOT NULL DEFAULT '',
			message TEXT NOT NULL,
			created_at VARCHAR(50) NOT NULL DEFAULT ''
		)`,
	}

	for _, stmt := range tables {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// createDefaultAdmin seeds the initial back-office account on first boot.
func createDefaultAdmin() error {
	var count int
	if err := DB.QueryRow("SELECT COUNT(*) FROM admins").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	id, err := utils.GenerateID("adm")
	if err != nil {
		return err
	}

	hashed, err := utils.HashPassword("admin123")
	if err != nil {
		return err
	}

	now := utils.FormatDateTimeForDB(utils.NowUTC())
	_, err = DB.Exec(`
		INSERT INTO admins (id, username, password, email, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, "admin", hashed, "admin@audiostore.local", "admin", now, now,
	)
	if err != nil {
		return err
	}

	logger.Warn("Created default admin account (username: admin) - change the password immediately")
	return nil
}

// Close shuts down the database handle.
func Close() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}
