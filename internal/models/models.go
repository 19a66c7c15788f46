package models

import (
	"time"
)

// URL is a stored short link mapping.
type URL struct {
	ID          int        `json:"id" db:"id"`
	ShortCode   string     `json:"short_code" db:"short_code"`
	CustomAlias *string    `json:"custom_alias,omitempty" db:"custom_alias"`
	OriginalURL string     `json:"original_url" db:"original_url"`
	ClickCount  int        `json:"click_count" db:"click_count"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	IsActive    bool       `json:"is_active" db:"is_active"`
	CreatedBy   string     `json:"created_by" db:"created_by"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// IsExpired reports whether the link has an expiration in the past.
// Expiry is independent of the soft-delete flag.
func (u *URL) IsExpired() bool {
	return u.ExpiresAt != nil && time.Now().After(*u.ExpiresAt)
}

// Status is the effective state of a link, derived from the soft-delete
// flag and the expiration timestamp at read time.
type Status int

const (
	StatusActive Status = iota
	StatusExpired
	StatusDeleted
)

// Status derives the effective link state. A deleted link is reported
// deleted even when it is also past its expiration.
func (u *URL) Status() Status {
	if !u.IsActive {
		return StatusDeleted
	}
	if u.IsExpired() {
		return StatusExpired
	}
	return StatusActive
}

// Click is a single recorded visit. Clicks are written once and never
// mutated or deleted.
type Click struct {
	ID        int       `json:"id" db:"id"`
	ShortCode string    `json:"short_code" db:"short_code"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	IPAddress string    `json:"ip_address" db:"ip_address"`
	UserAgent string    `json:"user_agent" db:"user_agent"`
	Referrer  string    `json:"referrer" db:"referrer"`
	Country   string    `json:"country" db:"country"`
	City      string    `json:"city" db:"city"`
	VisitorID string    `json:"visitor_id" db:"visitor_id"`
}

// ShortenRequest is the body of POST /api/shorten. ExpiresAt stays a raw
// string at this layer so a missing, empty or malformed value can be told
// apart after decoding; an empty value means no expiration.
type ShortenRequest struct {
	OriginalURL string `json:"originalUrl"`
	CustomAlias string `json:"customAlias,omitempty"`
	ExpiresAt   string `json:"expiresAt,omitempty"`
}

// ShortenData is the payload returned after shortening a URL.
type ShortenData struct {
	OriginalURL string     `json:"originalUrl"`
	ShortURL    string     `json:"shortUrl"`
	ShortCode   string     `json:"shortCode"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// URLListItem is one entry of GET /api/urls.
type URLListItem struct {
	ShortCode   string     `json:"shortCode"`
	ShortURL    string     `json:"shortUrl"`
	OriginalURL string     `json:"originalUrl"`
	ClickCount  int        `json:"clickCount"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	IsExpired   bool       `json:"isExpired"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Pagination describes the page window of a list response.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Pages int `json:"pages"`
}

// URLInfo is the link summary embedded in an analytics response.
type URLInfo struct {
	OriginalURL string     `json:"originalUrl"`
	ShortURL    string     `json:"shortUrl"`
	ShortCode   string     `json:"shortCode"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	IsExpired   bool       `json:"isExpired"`
}

// RecentClick is a windowed click reduced to the fields exposed by the
// analytics endpoint.
type RecentClick struct {
	Timestamp time.Time `json:"timestamp"`
	Country   string    `json:"country"`
	City      string    `json:"city"`
	Referrer  string    `json:"referrer"`
}

// Analytics is the aggregate computed over the clicks inside the lookback
// window. TotalClicks comes from the link's persistent counter, not from
// the windowed event set.
type Analytics struct {
	TotalClicks     int            `json:"totalClicks"`
	UniqueVisitors  int            `json:"uniqueVisitors"`
	ClicksByDate    map[string]int `json:"clicksByDate"`
	ClicksByCountry map[string]int `json:"clicksByCountry"`
	RecentClicks    []RecentClick  `json:"recentClicks"`
}

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
