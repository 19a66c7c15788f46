package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"shortlink/internal/config"
	"shortlink/internal/geo"
	"shortlink/internal/models"
	"shortlink/internal/services"
	"shortlink/internal/validation"
	"shortlink/internal/visitor"
	"shortlink/internal/workers"

	"github.com/gorilla/mux"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const defaultLookbackDays = 7

type URLHandler struct {
	urlService       *services.URLService
	analyticsService *services.AnalyticsService
	recorder         *workers.ClickRecorder
	locator          *geo.Locator
	cfg              *config.Config
	log              *zap.Logger
	startTime        time.Time
}

func NewURLHandler(urlService *services.URLService, analyticsService *services.AnalyticsService,
	recorder *workers.ClickRecorder, locator *geo.Locator, cfg *config.Config, log *zap.Logger) *URLHandler {
	return &URLHandler{
		urlService:       urlService,
		analyticsService: analyticsService,
		recorder:         recorder,
		locator:          locator,
		cfg:              cfg,
		log:              log,
		startTime:        time.Now(),
	}
}

// ShortenURL handles POST /api/shorten
func (h *URLHandler) ShortenURL(w http.ResponseWriter, r *http.Request) {
	var req models.ShortenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if req.OriginalURL == "" {
		h.respondWithError(w, http.StatusBadRequest, "Original URL is required")
		return
	}

	req.OriginalURL = validation.SanitizeURL(req.OriginalURL)
	if !validation.IsValidURL(req.OriginalURL) {
		h.respondWithError(w, http.StatusBadRequest, "Invalid URL format. Must include http:// or https://")
		return
	}

	expiresAt, ok := validation.ParseExpirationDate(req.ExpiresAt)
	if !ok {
		h.respondWithError(w, http.StatusBadRequest, "Invalid expiration date. Must be in the future.")
		return
	}

	url, err := h.urlService.Create(req, expiresAt, visitor.ClientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidAlias):
			h.respondWithError(w, http.StatusBadRequest,
				"Invalid custom alias. Must be 3-20 characters, alphanumeric with hyphens or underscores.")
		case errors.Is(err, services.ErrAliasTaken):
			h.respondWithError(w, http.StatusConflict, "Custom alias already taken")
		default:
			h.internalError(w, err)
		}
		return
	}

	h.respondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"data": models.ShortenData{
			OriginalURL: url.OriginalURL,
			ShortURL:    h.shortURL(url.ShortCode),
			ShortCode:   url.ShortCode,
			ExpiresAt:   url.ExpiresAt,
			CreatedAt:   url.CreatedAt,
		},
	})
}

// ListURLs handles GET /api/urls
func (h *URLHandler) ListURLs(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 10)
	sortBy := r.URL.Query().Get("sortBy")
	order := r.URL.Query().Get("order")

	urls, total, err := h.urlService.List(page, limit, sortBy, order)
	if err != nil {
		h.internalError(w, err)
		return
	}

	items := make([]models.URLListItem, 0, len(urls))
	for i := range urls {
		url := &urls[i]
		items = append(items, models.URLListItem{
			ShortCode:   url.ShortCode,
			ShortURL:    h.shortURL(url.ShortCode),
			OriginalURL: url.OriginalURL,
			ClickCount:  url.ClickCount,
			ExpiresAt:   url.ExpiresAt,
			IsExpired:   url.IsExpired(),
			CreatedAt:   url.CreatedAt,
		})
	}

	pages := 0
	if limit > 0 {
		pages = int(math.Ceil(float64(total) / float64(limit)))
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    items,
		"pagination": models.Pagination{
			Total: total,
			Page:  page,
			Pages: pages,
		},
	})
}

// GetAnalytics handles GET /api/analytics/{shortCode}
func (h *URLHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	shortCode := mux.Vars(r)["shortCode"]

	url, err := h.urlService.GetByShortCode(shortCode)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			h.respondWithError(w, http.StatusNotFound, "Short URL not found")
		} else {
			h.internalError(w, err)
		}
		return
	}

	days := queryInt(r, "days", defaultLookbackDays)
	if days < 1 {
		days = defaultLookbackDays
	}
	since := time.Now().AddDate(0, 0, -days)

	clicks, err := h.analyticsService.GetClicksSince(shortCode, since)
	if err != nil {
		h.internalError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"url": models.URLInfo{
				OriginalURL: url.OriginalURL,
				ShortURL:    h.shortURL(url.ShortCode),
				ShortCode:   url.ShortCode,
				CreatedAt:   url.CreatedAt,
				ExpiresAt:   url.ExpiresAt,
				IsExpired:   url.IsExpired(),
			},
			"analytics": services.BuildReport(url.ClickCount, clicks),
		},
	})
}

// GenerateQRCode handles GET /api/qr/{shortCode}
func (h *URLHandler) GenerateQRCode(w http.ResponseWriter, r *http.Request) {
	shortCode := mux.Vars(r)["shortCode"]

	url, err := h.urlService.GetByShortCode(shortCode)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			h.respondWithError(w, http.StatusNotFound, "Short URL not found")
		} else {
			h.internalError(w, err)
		}
		return
	}

	switch url.Status() {
	case models.StatusDeleted:
		h.respondWithError(w, http.StatusNotFound, "Short URL not found")
		return
	case models.StatusExpired:
		h.respondWithError(w, http.StatusGone, "This short URL has expired")
		return
	}

	shortURL := h.shortURL(shortCode)

	png, err := qrcode.Encode(shortURL, qrcode.Medium, 300)
	if err != nil {
		h.internalError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]string{
			"qrCode":   "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
			"shortUrl": shortURL,
		},
	})
}

// DeleteURL handles DELETE /api/urls/{shortCode}
func (h *URLHandler) DeleteURL(w http.ResponseWriter, r *http.Request) {
	shortCode := mux.Vars(r)["shortCode"]

	if err := h.urlService.SoftDelete(shortCode); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			h.respondWithError(w, http.StatusNotFound, "Short URL not found")
		} else {
			h.internalError(w, err)
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Short URL deleted successfully",
	})
}

// Redirect handles GET /{shortCode}. The redirect is the contract; click
// recording is queued and its outcome never reaches this response.
func (h *URLHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	shortCode := mux.Vars(r)["shortCode"]

	url, err := h.urlService.GetActiveByShortCode(shortCode)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			h.respondWithPage(w, http.StatusNotFound, notFoundPage)
		} else {
			h.internalError(w, err)
		}
		return
	}

	if url.IsExpired() {
		h.respondWithPage(w, http.StatusGone, expiredPage)
		return
	}

	ip := visitor.ClientIP(r)
	userAgent := r.UserAgent()
	country, city := h.locator.Lookup(ip)

	h.recorder.Enqueue(models.Click{
		ShortCode: shortCode,
		Timestamp: time.Now().UTC(),
		IPAddress: ip,
		UserAgent: userAgent,
		Referrer:  r.Referer(),
		Country:   country,
		City:      city,
		VisitorID: visitor.ID(ip, userAgent),
	})

	http.Redirect(w, r, url.OriginalURL, http.StatusFound)
}

// Health handles GET /health
func (h *URLHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.startTime).Seconds(),
	})
}

func (h *URLHandler) shortURL(shortCode string) string {
	return fmt.Sprintf("%s/%s", h.cfg.BaseURL, shortCode)
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func (h *URLHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func (h *URLHandler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, models.ErrorResponse{Error: message})
}

// internalError logs the fault server-side and hides detail from the
// client outside development.
func (h *URLHandler) internalError(w http.ResponseWriter, err error) {
	h.log.Error("internal error", zap.Error(err))

	message := "Internal server error"
	if h.cfg.IsDevelopment() {
		message = err.Error()
	}
	h.respondWithError(w, http.StatusInternalServerError, message)
}

func (h *URLHandler) respondWithPage(w http.ResponseWriter, code int, page string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	w.Write([]byte(page))
}

const notFoundPage = `<!DOCTYPE html>
<html>
<head>
    <title>404 - Link Not Found</title>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <style>
        body { font-family: Arial, sans-serif; max-width: 600px; margin: 80px auto; padding: 20px; text-align: center; }
        h1 { font-size: 72px; margin: 0; color: #007bff; }
        p { color: #666; }
    </style>
</head>
<body>
    <h1>404</h1>
    <p>This short link does not exist or has been removed.</p>
    <p><a href="/">Create a new short link</a></p>
</body>
</html>`

const expiredPage = `<!DOCTYPE html>
<html>
<head>
    <title>410 - Link Expired</title>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <style>
        body { font-family: Arial, sans-serif; max-width: 600px; margin: 80px auto; padding: 20px; text-align: center; }
        h1 { font-size: 72px; margin: 0; color: #dc3545; }
        p { color: #666; }
    </style>
</head>
<body>
    <h1>410</h1>
    <p>This short link has expired and no longer redirects.</p>
    <p><a href="/">Create a new short link</a></p>
</body>
</html>`
