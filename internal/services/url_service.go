package services

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"shortlink/internal/database"
	"shortlink/internal/models"
	"shortlink/internal/validation"

	"go.uber.org/zap"
)

const (
	shortCodeLength = 6
	charset         = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxRetries      = 5
)

var (
	ErrInvalidAlias        = errors.New("invalid custom alias")
	ErrAliasTaken          = errors.New("custom alias already taken")
	ErrAllocationExhausted = errors.New("failed to generate unique short code after maximum attempts")
	ErrNotFound            = errors.New("short URL not found")
)

type URLService struct {
	db  *database.DB
	log *zap.Logger
}

func NewURLService(db *database.DB, log *zap.Logger) *URLService {
	return &URLService{db: db, log: log}
}

// Allocate picks the short code for a new link. A custom alias is
// validated and checked for uniqueness against both code columns;
// otherwise a random candidate is drawn and re-drawn on collision, up to
// maxRetries. Nothing is reserved: the UNIQUE constraint on insert is the
// final arbiter, and Create retries generated codes that lose that race.
func (s *URLService) Allocate(customAlias string) (string, error) {
	if customAlias != "" {
		if !validation.ValidateCustomAlias(customAlias) {
			return "", ErrInvalidAlias
		}

		taken, err := s.aliasInUse(customAlias)
		if err != nil {
			return "", fmt.Errorf("failed to check alias availability: %w", err)
		}
		if taken {
			return "", ErrAliasTaken
		}

		return customAlias, nil
	}

	for i := 0; i < maxRetries; i++ {
		code := randomCode(shortCodeLength)

		exists, err := s.shortCodeExists(code)
		if err != nil {
			return "", fmt.Errorf("failed to check short code uniqueness: %w", err)
		}

		if !exists {
			return code, nil
		}
		s.log.Warn("short code collision, retrying",
			zap.String("code", code), zap.Int("attempt", i+1))
	}

	return "", ErrAllocationExhausted
}

// Create allocates a short code and persists the new link. Two concurrent
// allocations can pick the same free code; the loser's insert fails on the
// UNIQUE constraint and is retried here with a fresh code. A lost race on
// a custom alias is a conflict surfaced to the caller instead.
func (s *URLService) Create(req models.ShortenRequest, expiresAt *time.Time, createdBy string) (*models.URL, error) {
	for attempt := 0; attempt < maxRetries; attempt++ {
		shortCode, err := s.Allocate(req.CustomAlias)
		if err != nil {
			return nil, err
		}

		url := &models.URL{
			ShortCode:   shortCode,
			OriginalURL: req.OriginalURL,
			ExpiresAt:   expiresAt,
			IsActive:    true,
			CreatedBy:   createdBy,
			CreatedAt:   time.Now().UTC(),
		}
		if req.CustomAlias != "" {
			url.CustomAlias = &req.CustomAlias
		}

		query := `
			INSERT INTO urls (short_code, custom_alias, original_url, expires_at, is_active, created_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`

		result, err := s.db.Exec(query, url.ShortCode, url.CustomAlias, url.OriginalURL,
			url.ExpiresAt, url.IsActive, url.CreatedBy, url.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				if req.CustomAlias != "" {
					return nil, ErrAliasTaken
				}
				s.log.Warn("lost allocation race, retrying with fresh code",
					zap.String("code", shortCode), zap.Int("attempt", attempt+1))
				continue
			}
			return nil, fmt.Errorf("failed to save URL: %w", err)
		}

		id, _ := result.LastInsertId()
		url.ID = int(id)

		return url, nil
	}

	return nil, ErrAllocationExhausted
}

// GetByShortCode fetches a link regardless of its active flag. Callers
// that care about soft deletion or expiry branch on Status.
func (s *URLService) GetByShortCode(shortCode string) (*models.URL, error) {
	return s.getWhere(`short_code = ?`, shortCode)
}

// GetActiveByShortCode fetches a link for the redirect path: soft-deleted
// records are treated as missing, expired ones are still returned so the
// caller can answer 410 instead of 404.
func (s *URLService) GetActiveByShortCode(shortCode string) (*models.URL, error) {
	return s.getWhere(`short_code = ? AND is_active = TRUE`, shortCode)
}

func (s *URLService) getWhere(where string, args ...interface{}) (*models.URL, error) {
	query := `
		SELECT id, short_code, custom_alias, original_url, click_count, expires_at, is_active, created_by, created_at
		FROM urls
		WHERE ` + where

	url := &models.URL{}
	err := s.db.QueryRow(query, args...).Scan(
		&url.ID, &url.ShortCode, &url.CustomAlias, &url.OriginalURL,
		&url.ClickCount, &url.ExpiresAt, &url.IsActive, &url.CreatedBy, &url.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query URL: %w", err)
	}

	return url, nil
}

// sortColumns whitelists the sortBy parameter of List.
var sortColumns = map[string]string{
	"createdAt":  "created_at",
	"clickCount": "click_count",
	"expiresAt":  "expires_at",
	"shortCode":  "short_code",
}

// List returns one page of active links plus the total active count.
func (s *URLService) List(page, limit int, sortBy, order string) ([]models.URL, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	column, ok := sortColumns[sortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(order, "asc") {
		direction = "ASC"
	}

	query := fmt.Sprintf(`
		SELECT id, short_code, custom_alias, original_url, click_count, expires_at, is_active, created_by, created_at
		FROM urls
		WHERE is_active = TRUE
		ORDER BY %s %s
		LIMIT ? OFFSET ?
	`, column, direction)

	rows, err := s.db.Query(query, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list URLs: %w", err)
	}
	defer rows.Close()

	var urls []models.URL
	for rows.Next() {
		var url models.URL
		err := rows.Scan(
			&url.ID, &url.ShortCode, &url.CustomAlias, &url.OriginalURL,
			&url.ClickCount, &url.ExpiresAt, &url.IsActive, &url.CreatedBy, &url.CreatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM urls WHERE is_active = TRUE`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count URLs: %w", err)
	}

	return urls, total, nil
}

// SoftDelete marks a link inactive. The row and its clicks are kept.
func (s *URLService) SoftDelete(shortCode string) error {
	result, err := s.db.Exec(`UPDATE urls SET is_active = FALSE WHERE short_code = ?`, shortCode)
	if err != nil {
		return fmt.Errorf("failed to delete URL: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementClickCount bumps the persistent lifetime counter. The update is
// commutative, so concurrent visits need no ordering.
func (s *URLService) IncrementClickCount(shortCode string) error {
	_, err := s.db.Exec(`UPDATE urls SET click_count = click_count + 1 WHERE short_code = ?`, shortCode)
	return err
}

func (s *URLService) shortCodeExists(shortCode string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM urls WHERE short_code = ?`, shortCode).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// aliasInUse checks a candidate alias against both the generated codes and
// previously claimed aliases.
func (s *URLService) aliasInUse(alias string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM urls WHERE short_code = ? OR custom_alias = ?`,
		alias, alias).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// randomCode is swappable so tests can force collisions.
var randomCode = generateRandomCode

// generateRandomCode draws length characters uniformly from the 62-char
// alphanumeric alphabet.
func generateRandomCode(length int) string {
	result := make([]byte, length)
	charsetLen := big.NewInt(int64(len(charset)))

	for i := 0; i < length; i++ {
		randomIndex, _ := rand.Int(rand.Reader, charsetLen)
		result[i] = charset[randomIndex.Int64()]
	}

	return string(result)
}
