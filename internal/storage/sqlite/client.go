package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/deepscan/backend/internal/storage/models"
	"github.com/deepscan/backend/pkg/logger"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err = db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err = db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		auth_provider TEXT NOT NULL DEFAULT 'local',
		reset_token TEXT,
		reset_expires INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);

	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		media_url TEXT NOT NULL,
		media_type TEXT NOT NULL,
		probability REAL NOT NULL,
		risk_level TEXT NOT NULL,
		ai_version TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);
	CREATE INDEX IF NOT EXISTS idx_scans_user_created ON scans(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_scans_type_risk ON scans(media_type, risk_level);
	CREATE INDEX IF NOT EXISTS idx_scans_created ON scans(created_at);

	CREATE TABLE IF NOT EXISTS report_proofs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		scan_id TEXT,
		report_type TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);
	CREATE INDEX IF NOT EXISTS idx_proofs_user_created ON report_proofs(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_proofs_hash ON report_proofs(content_hash);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// ---- users ----

func (c *Client) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, name, email, password_hash, role, auth_provider, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.AuthProvider,
		user.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	logger.Debug("User created", zap.String("user_id", user.ID))
	return nil
}

func (c *Client) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return c.getUser(ctx, "email = ?", email)
}

func (c *Client) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return c.getUser(ctx, "id = ?", id)
}

func (c *Client) GetUserByResetToken(ctx context.Context, hashedToken string) (*models.User, error) {
	user, err := c.getUser(ctx, "reset_token = ?", hashedToken)
	if err != nil {
		return nil, err
	}
	if user.ResetExpires == nil || user.ResetExpires.Before(time.Now()) {
		return nil, ErrNotFound
	}
	return user, nil
}

func (c *Client) getUser(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	query := `
		SELECT id, name, email, password_hash, role, auth_provider,
			COALESCE(reset_token, ''), reset_expires, created_at
		FROM users WHERE ` + where

	var user models.User
	var resetExpires sql.NullInt64
	var createdAt int64

	err := c.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.AuthProvider,
		&user.ResetToken,
		&resetExpires,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if resetExpires.Valid {
		t := time.Unix(resetExpires.Int64, 0)
		user.ResetExpires = &t
	}
	user.CreatedAt = time.Unix(createdAt, 0)

	return &user, nil
}

func (c *Client) SetResetToken(ctx context.Context, userID, hashedToken string, expires time.Time) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE users SET reset_token = ?, reset_expires = ? WHERE id = ?`,
		hashedToken, expires.Unix(), userID)
	if err != nil {
		return fmt.Errorf("failed to set reset token: %w", err)
	}
	return nil
}

func (c *Client) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, reset_token = NULL, reset_expires = NULL WHERE id = ?`,
		passwordHash, userID)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

func (c *Client) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

type UserFilter struct {
	Search       string
	Role         string
	AuthProvider string
	Page         int
	Limit        int
}

func (c *Client) ListUsers(ctx context.Context, filter UserFilter) ([]models.User, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}

	if filter.Search != "" {
		where = append(where, "(name LIKE ? OR email LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}
	if filter.Role != "" {
		where = append(where, "role = ?")
		args = append(args, filter.Role)
	}
	if filter.AuthProvider != "" {
		where = append(where, "auth_provider = ?")
		args = append(args, filter.AuthProvider)
	}

	cond := strings.Join(where, " AND ")

	var total int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE `+cond, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := `
		SELECT id, name, email, role, auth_provider, created_at
		FROM users WHERE ` + cond + `
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		var createdAt int64
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.AuthProvider, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan row: %w", err)
		}
		u.CreatedAt = time.Unix(createdAt, 0)
		users = append(users, u)
	}

	return users, total, rows.Err()
}

// ---- scans ----

// InsertScan appends one scan record. Records are never updated or deleted.
func (c *Client) InsertScan(ctx context.Context, record *models.ScanRecord) error {
	query := `
		INSERT INTO scans (id, user_id, media_url, media_type, probability, risk_level, ai_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		record.ID,
		record.UserID,
		record.MediaURL,
		record.MediaType,
		record.Probability,
		record.RiskLevel,
		record.AIVersion,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}

	logger.Debug("Scan recorded",
		zap.String("scan_id", record.ID),
		zap.String("risk_level", record.RiskLevel),
	)
	return nil
}

func (c *Client) GetScanHistory(ctx context.Context, userID string, page, limit int) ([]models.ScanRecord, int, error) {
	var total int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scans WHERE user_id = ?`, userID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count scans: %w", err)
	}

	query := `
		SELECT id, user_id, media_url, media_type, probability, risk_level, ai_version, created_at
		FROM scans
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := c.db.QueryContext(ctx, query, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get scan history: %w", err)
	}
	defer rows.Close()

	scans, err := scanRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return scans, total, nil
}

type ScanFilter struct {
	Search    string
	RiskLevel string
	MediaType string
	Page      int
	Limit     int
}

// ListScans joins each scan with its submitting user for the admin listing.
func (c *Client) ListScans(ctx context.Context, filter ScanFilter) ([]models.ScanWithUser, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}

	if filter.RiskLevel != "" {
		where = append(where, "s.risk_level = ?")
		args = append(args, filter.RiskLevel)
	}
	if filter.MediaType != "" {
		where = append(where, "s.media_type = ?")
		args = append(args, filter.MediaType)
	}
	if filter.Search != "" {
		where = append(where, "(s.media_url LIKE ? OR u.name LIKE ? OR u.email LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}

	cond := strings.Join(where, " AND ")
	base := `FROM scans s LEFT JOIN users u ON u.id = s.user_id WHERE ` + cond

	var total int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) `+base, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count scans: %w", err)
	}

	query := `
		SELECT s.id, s.user_id, s.media_url, s.media_type, s.probability, s.risk_level,
			s.ai_version, s.created_at,
			COALESCE(u.name, ''), COALESCE(u.email, ''), COALESCE(u.role, '')
		` + base + `
		ORDER BY s.created_at DESC
		LIMIT ? OFFSET ?
	`
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var scans []models.ScanWithUser
	for rows.Next() {
		var s models.ScanWithUser
		var createdAt int64
		err := rows.Scan(&s.ID, &s.UserID, &s.MediaURL, &s.MediaType, &s.Probability,
			&s.RiskLevel, &s.AIVersion, &createdAt, &s.UserName, &s.UserEmail, &s.UserRole)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan row: %w", err)
		}
		s.CreatedAt = time.Unix(createdAt, 0)
		scans = append(scans, s)
	}

	return scans, total, rows.Err()
}

func (c *Client) CountScans(ctx context.Context) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scans`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count scans: %w", err)
	}
	return count, nil
}

func (c *Client) CountScansByRisk(ctx context.Context, riskLevel string) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scans WHERE risk_level = ?`, riskLevel).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count scans: %w", err)
	}
	return count, nil
}

// ScanSummary aggregates one user's history: totals, per-tier counts,
// average probability, the dominant media type and the latest scan.
func (c *Client) ScanSummary(ctx context.Context, userID string) (*models.ScanSummary, error) {
	summary := &models.ScanSummary{}

	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN risk_level = 'High' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN risk_level = 'Medium' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN risk_level = 'Low' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(probability), 0)
		FROM scans WHERE user_id = ?`,
		userID).Scan(
		&summary.TotalScans,
		&summary.HighRisk,
		&summary.MediumRisk,
		&summary.LowRisk,
		&summary.AvgProbability,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize scans: %w", err)
	}

	err = c.db.QueryRowContext(ctx, `
		SELECT media_type FROM scans WHERE user_id = ?
		GROUP BY media_type ORDER BY COUNT(*) DESC LIMIT 1`,
		userID).Scan(&summary.TopMediaType)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to summarize scans: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, media_url, media_type, probability, risk_level, ai_version, created_at
		FROM scans WHERE user_id = ?
		ORDER BY created_at DESC LIMIT 1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize scans: %w", err)
	}
	defer rows.Close()

	latest, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(latest) > 0 {
		summary.Latest = &latest[0]
	}

	return summary, nil
}

// TrendRows returns (UTC day, risk tier) counts for scans created at or
// after since.
func (c *Client) TrendRows(ctx context.Context, since time.Time) ([]models.TrendRow, error) {
	query := `
		SELECT strftime('%Y-%m-%d', created_at, 'unixepoch') AS day, risk_level, COUNT(*)
		FROM scans
		WHERE created_at >= ?
		GROUP BY day, risk_level
	`

	rows, err := c.db.QueryContext(ctx, query, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query trend rows: %w", err)
	}
	defer rows.Close()

	var result []models.TrendRow
	for rows.Next() {
		var r models.TrendRow
		if err := rows.Scan(&r.Day, &r.RiskLevel, &r.Count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, r)
	}

	return result, rows.Err()
}

func (c *Client) DistributionRows(ctx context.Context) ([]models.DistributionRow, error) {
	query := `
		SELECT media_type, risk_level, COUNT(*)
		FROM scans
		WHERE media_type IN ('image', 'audio', 'video')
			AND risk_level IN ('High', 'Medium', 'Low')
		GROUP BY media_type, risk_level
	`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query distribution: %w", err)
	}
	defer rows.Close()

	var result []models.DistributionRow
	for rows.Next() {
		var r models.DistributionRow
		if err := rows.Scan(&r.MediaType, &r.RiskLevel, &r.Count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, r)
	}

	return result, rows.Err()
}

// ---- report proofs ----

func (c *Client) InsertProof(ctx context.Context, proof *models.ReportProof) error {
	query := `
		INSERT INTO report_proofs (id, user_id, scan_id, report_type, content_hash, summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var scanID interface{}
	if proof.ScanID != "" {
		scanID = proof.ScanID
	}

	_, err := c.db.ExecContext(ctx, query,
		proof.ID,
		proof.UserID,
		scanID,
		proof.ReportType,
		proof.ContentHash,
		string(proof.Summary),
		proof.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert proof: %w", err)
	}

	return nil
}

func (c *Client) ListProofs(ctx context.Context, userID string, page, limit int) ([]models.ReportProof, int, error) {
	var total int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM report_proofs WHERE user_id = ?`, userID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count proofs: %w", err)
	}

	query := `
		SELECT id, user_id, COALESCE(scan_id, ''), report_type, content_hash, summary, created_at
		FROM report_proofs
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := c.db.QueryContext(ctx, query, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list proofs: %w", err)
	}
	defer rows.Close()

	var proofs []models.ReportProof
	for rows.Next() {
		var p models.ReportProof
		var summary string
		var createdAt int64
		err := rows.Scan(&p.ID, &p.UserID, &p.ScanID, &p.ReportType, &p.ContentHash, &summary, &createdAt)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan row: %w", err)
		}
		p.Summary = []byte(summary)
		p.CreatedAt = time.Unix(createdAt, 0)
		proofs = append(proofs, p)
	}

	return proofs, total, rows.Err()
}

func (c *Client) CountProofs(ctx context.Context) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM report_proofs`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count proofs: %w", err)
	}
	return count, nil
}

func scanRows(rows *sql.Rows) ([]models.ScanRecord, error) {
	var scans []models.ScanRecord
	for rows.Next() {
		var s models.ScanRecord
		var createdAt int64
		err := rows.Scan(&s.ID, &s.UserID, &s.MediaURL, &s.MediaType,
			&s.Probability, &s.RiskLevel, &s.AIVersion, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		s.CreatedAt = time.Unix(createdAt, 0)
		scans = append(scans, s)
	}
	return scans, rows.Err()
}
