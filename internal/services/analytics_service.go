package services

import (
	"fmt"
	"sort"
	"time"

	"shortlink/internal/database"
	"shortlink/internal/models"
)

const recentClickLimit = 10

type AnalyticsService struct {
	db *database.DB
}

func NewAnalyticsService(db *database.DB) *AnalyticsService {
	return &AnalyticsService{db: db}
}

// RecordClick persists one visit. Callers treat failures as best-effort:
// a lost click never fails the redirect that produced it.
func (s *AnalyticsService) RecordClick(click models.Click) error {
	query := `
		INSERT INTO clicks (short_code, timestamp, ip_address, user_agent, referrer, country, city, visitor_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query, click.ShortCode, click.Timestamp.UTC(), click.IPAddress,
		click.UserAgent, click.Referrer, click.Country, click.City, click.VisitorID)

	return err
}

// GetClicksSince fetches the click events for a code from the given
// instant onward.
func (s *AnalyticsService) GetClicksSince(shortCode string, since time.Time) ([]models.Click, error) {
	query := `
		SELECT id, short_code, timestamp, ip_address, user_agent, referrer, country, city, visitor_id
		FROM clicks
		WHERE short_code = ? AND timestamp >= ?
	`

	rows, err := s.db.Query(query, shortCode, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query clicks: %w", err)
	}
	defer rows.Close()

	var clicks []models.Click
	for rows.Next() {
		var click models.Click
		err := rows.Scan(&click.ID, &click.ShortCode, &click.Timestamp, &click.IPAddress,
			&click.UserAgent, &click.Referrer, &click.Country, &click.City, &click.VisitorID)
		if err != nil {
			return nil, err
		}
		clicks = append(clicks, click)
	}

	return clicks, rows.Err()
}

// BuildReport aggregates a windowed event set. totalClicks is the link's
// persistent counter, which stays authoritative for the lifetime total
// even when individual events were lost.
func BuildReport(totalClicks int, clicks []models.Click) *models.Analytics {
	visitors := make(map[string]struct{})
	byDate := make(map[string]int)
	byCountry := make(map[string]int)

	for _, click := range clicks {
		visitors[click.VisitorID] = struct{}{}
		byDate[click.Timestamp.UTC().Format("2006-01-02")]++
		byCountry[click.Country]++
	}

	sorted := make([]models.Click, len(clicks))
	copy(sorted, clicks)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	if len(sorted) > recentClickLimit {
		sorted = sorted[:recentClickLimit]
	}

	recent := make([]models.RecentClick, 0, len(sorted))
	for _, click := range sorted {
		referrer := click.Referrer
		if referrer == "" {
			referrer = "Direct"
		}
		recent = append(recent, models.RecentClick{
			Timestamp: click.Timestamp,
			Country:   click.Country,
			City:      click.City,
			Referrer:  referrer,
		})
	}

	return &models.Analytics{
		TotalClicks:     totalClicks,
		UniqueVisitors:  len(visitors),
		ClicksByDate:    byDate,
		ClicksByCountry: byCountry,
		RecentClicks:    recent,
	}
}
