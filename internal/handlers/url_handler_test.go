package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"shortlink/internal/config"
	"shortlink/internal/database"
	"shortlink/internal/geo"
	"shortlink/internal/middleware"
	"shortlink/internal/models"
	"shortlink/internal/services"
	"shortlink/internal/workers"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type testEnv struct {
	router   *mux.Router
	recorder *workers.ClickRecorder
	urls     *services.URLService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := zap.NewNop()

	db, err := database.InitDB(":memory:", log)
	if err != nil {
		t.Fatalf("database init failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Port:            "3000",
		BaseURL:         "http://sho.rt",
		Env:             "production",
		RateLimitWindow: time.Minute,
		RateLimitMax:    10,
		APIRateLimitMax: 60,
		ClickBufferSize: 64,
	}

	urlService := services.NewURLService(db, log)
	analyticsService := services.NewAnalyticsService(db)
	locator := geo.Open("", log)

	recorder := workers.NewClickRecorder(cfg.ClickBufferSize, analyticsService, urlService, log)
	recorder.Start(1)

	h := NewURLHandler(urlService, analyticsService, recorder, locator, cfg, log)

	router := mux.NewRouter()
	apiLimiter := middleware.NewRateLimiter(cfg.APIRateLimitMax, cfg.RateLimitWindow)
	shortenLimiter := middleware.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(apiLimiter.Middleware)
	api.Handle("/shorten", shortenLimiter.Middleware(http.HandlerFunc(h.ShortenURL))).Methods("POST")
	api.HandleFunc("/urls", h.ListURLs).Methods("GET")
	api.HandleFunc("/urls/{shortCode}", h.DeleteURL).Methods("DELETE")
	api.HandleFunc("/analytics/{shortCode}", h.GetAnalytics).Methods("GET")
	api.HandleFunc("/qr/{shortCode}", h.GenerateQRCode).Methods("GET")
	router.HandleFunc("/health", h.Health).Methods("GET")
	router.HandleFunc("/{shortCode}", h.Redirect).Methods("GET")

	return &testEnv{router: router, recorder: recorder, urls: urlService}
}

func (env *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.9:40000"
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

func (env *testEnv) shorten(t *testing.T, body map[string]interface{}) models.ShortenData {
	t.Helper()

	rr := env.do("POST", "/api/shorten", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("shorten status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Success bool               `json:"success"`
		Data    models.ShortenData `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad shorten response: %v", err)
	}
	return resp.Data
}

func TestShortenAndRedirect(t *testing.T) {
	env := newTestEnv(t)

	data := env.shorten(t, map[string]interface{}{"originalUrl": "https://example.com"})

	if len(data.ShortCode) != 6 {
		t.Errorf("short code length = %d, want 6", len(data.ShortCode))
	}
	if data.ShortURL != "http://sho.rt/"+data.ShortCode {
		t.Errorf("short url = %s, want composed from base url", data.ShortURL)
	}

	rr := env.do("GET", "/"+data.ShortCode, nil)
	if rr.Code != http.StatusFound {
		t.Fatalf("redirect status = %d, want 302", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "https://example.com" {
		t.Errorf("redirect location = %s", loc)
	}

	// Drain the click queue, then the counter and the windowed events
	// must both reflect the visit.
	env.recorder.Stop()

	rr = env.do("GET", "/api/analytics/"+data.ShortCode, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("analytics status = %d", rr.Code)
	}

	var resp struct {
		Data struct {
			Analytics models.Analytics `json:"analytics"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad analytics response: %v", err)
	}
	if resp.Data.Analytics.TotalClicks != 1 {
		t.Errorf("total clicks = %d, want 1", resp.Data.Analytics.TotalClicks)
	}
	if resp.Data.Analytics.UniqueVisitors != 1 {
		t.Errorf("unique visitors = %d, want 1", resp.Data.Analytics.UniqueVisitors)
	}
}

func TestShortenValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing url", map[string]interface{}{}},
		{"bad scheme", map[string]interface{}{"originalUrl": "ftp://example.com"}},
		{"no scheme", map[string]interface{}{"originalUrl": "example.com"}},
		{"bad alias", map[string]interface{}{"originalUrl": "https://example.com", "customAlias": "ab"}},
		{"past expiry", map[string]interface{}{
			"originalUrl": "https://example.com",
			"expiresAt":   time.Now().Add(-time.Second).Format(time.RFC3339),
		}},
	}

	for _, tc := range cases {
		rr := env.do("POST", "/api/shorten", tc.body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, rr.Code)
		}
	}
}

func TestShortenExpiration(t *testing.T) {
	env := newTestEnv(t)

	// An empty expiresAt means no expiration, same as omitting the field.
	data := env.shorten(t, map[string]interface{}{
		"originalUrl": "https://example.com/open-ended",
		"expiresAt":   "",
	})
	if data.ExpiresAt != nil {
		t.Errorf("expiresAt = %v, want none", data.ExpiresAt)
	}

	future := time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)
	data = env.shorten(t, map[string]interface{}{
		"originalUrl": "https://example.com/limited",
		"expiresAt":   future,
	})
	if data.ExpiresAt == nil {
		t.Error("expiresAt not stored for a valid future date")
	}

	// A date that fails to parse gets the expiration error, not the
	// generic JSON decode error.
	rr := env.do("POST", "/api/shorten", map[string]interface{}{
		"originalUrl": "https://example.com/bad-date",
		"expiresAt":   "2026-12-31",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed expiry status = %d, want 400", rr.Code)
	}
	var resp models.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad error response: %v", err)
	}
	if !strings.Contains(resp.Error, "expiration date") {
		t.Errorf("error = %q, want the expiration date message", resp.Error)
	}
}

func TestShortenDuplicateAlias(t *testing.T) {
	env := newTestEnv(t)

	env.shorten(t, map[string]interface{}{"originalUrl": "https://example.com", "customAlias": "promo"})

	rr := env.do("POST", "/api/shorten", map[string]interface{}{
		"originalUrl": "https://example.org",
		"customAlias": "promo",
	})
	if rr.Code != http.StatusConflict {
		t.Errorf("duplicate alias status = %d, want 409", rr.Code)
	}
}

func TestShortenRateLimited(t *testing.T) {
	env := newTestEnv(t)

	var last int
	for i := 0; i < 11; i++ {
		rr := env.do("POST", "/api/shorten", map[string]interface{}{
			"originalUrl": fmt.Sprintf("https://example.com/%d", i),
		})
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("11th shorten status = %d, want 429", last)
	}
}

func TestRedirectUnknownAndDeleted(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do("GET", "/nosuch1", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown code status = %d, want 404", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("not-found page content type = %s, want html", ct)
	}

	data := env.shorten(t, map[string]interface{}{"originalUrl": "https://example.com", "customAlias": "zapped"})

	if rr := env.do("DELETE", "/api/urls/"+data.ShortCode, nil); rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}

	if rr := env.do("GET", "/"+data.ShortCode, nil); rr.Code != http.StatusNotFound {
		t.Errorf("deleted code status = %d, want 404", rr.Code)
	}
}

func TestRedirectExpired(t *testing.T) {
	env := newTestEnv(t)

	// Expired links cannot be created through the API; seed directly.
	past := time.Now().Add(-time.Hour)
	url, err := env.urls.Create(models.ShortenRequest{
		OriginalURL: "https://example.com/old",
		CustomAlias: "bygone",
	}, &past, "127.0.0.1")
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	rr := env.do("GET", "/"+url.ShortCode, nil)
	if rr.Code != http.StatusGone {
		t.Errorf("expired redirect status = %d, want 410", rr.Code)
	}

	// No click is recorded for a blocked redirect.
	env.recorder.Stop()
	fetched, err := env.urls.GetByShortCode(url.ShortCode)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if fetched.ClickCount != 0 {
		t.Errorf("click count = %d, want 0 for expired link", fetched.ClickCount)
	}
}

func TestQRCodeEndpoint(t *testing.T) {
	env := newTestEnv(t)

	data := env.shorten(t, map[string]interface{}{"originalUrl": "https://example.com", "customAlias": "qrcode"})

	rr := env.do("GET", "/api/qr/"+data.ShortCode, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("qr status = %d", rr.Code)
	}

	var resp struct {
		Data struct {
			QRCode   string `json:"qrCode"`
			ShortURL string `json:"shortUrl"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad qr response: %v", err)
	}
	if !strings.HasPrefix(resp.Data.QRCode, "data:image/png;base64,") {
		t.Error("qr code is not a png data url")
	}
	if resp.Data.ShortURL != data.ShortURL {
		t.Errorf("qr short url = %s, want %s", resp.Data.ShortURL, data.ShortURL)
	}

	if rr := env.do("GET", "/api/qr/nosuch1", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown qr status = %d, want 404", rr.Code)
	}

	past := time.Now().Add(-time.Hour)
	expired, err := env.urls.Create(models.ShortenRequest{
		OriginalURL: "https://example.com/old",
		CustomAlias: "wasqr1",
	}, &past, "127.0.0.1")
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if rr := env.do("GET", "/api/qr/"+expired.ShortCode, nil); rr.Code != http.StatusGone {
		t.Errorf("expired qr status = %d, want 410", rr.Code)
	}
}

func TestListURLs(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		env.shorten(t, map[string]interface{}{"originalUrl": fmt.Sprintf("https://example.com/%d", i)})
	}

	rr := env.do("GET", "/api/urls?page=1&limit=2&sortBy=createdAt&order=desc", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}

	var resp struct {
		Data       []models.URLListItem `json:"data"`
		Pagination models.Pagination    `json:"pagination"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad list response: %v", err)
	}

	if len(resp.Data) != 2 {
		t.Errorf("page size = %d, want 2", len(resp.Data))
	}
	if resp.Pagination.Total != 3 || resp.Pagination.Pages != 2 || resp.Pagination.Page != 1 {
		t.Errorf("pagination = %+v", resp.Pagination)
	}
	for _, item := range resp.Data {
		if item.IsExpired {
			t.Errorf("%s reported expired without an expiration", item.ShortCode)
		}
		if !strings.HasPrefix(item.ShortURL, "http://sho.rt/") {
			t.Errorf("short url = %s", item.ShortURL)
		}
	}
}

func TestDeleteUnknown(t *testing.T) {
	env := newTestEnv(t)

	if rr := env.do("DELETE", "/api/urls/nosuch1", nil); rr.Code != http.StatusNotFound {
		t.Errorf("delete unknown status = %d, want 404", rr.Code)
	}
}

func TestAnalyticsUnknown(t *testing.T) {
	env := newTestEnv(t)

	if rr := env.do("GET", "/api/analytics/nosuch1", nil); rr.Code != http.StatusNotFound {
		t.Errorf("analytics unknown status = %d, want 404", rr.Code)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do("GET", "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d", rr.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad health response: %v", err)
	}
	if resp["status"] != "OK" {
		t.Errorf("health status field = %v", resp["status"])
	}
	if _, ok := resp["uptime"]; !ok {
		t.Error("health response missing uptime")
	}
	if _, ok := resp["timestamp"]; !ok {
		t.Error("health response missing timestamp")
	}
}
