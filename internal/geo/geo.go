package geo

import (
	"net"

	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
)

const unknown = "Unknown"

// Locator resolves client IPs to a country and city using a MaxMind
// database. A Locator without a database answers Unknown for everything,
// so the service runs fine when no GeoIP file is configured.
type Locator struct {
	reader *geoip2.Reader
}

// Open loads the MaxMind database at path. An empty path or an unreadable
// file yields a Locator that always reports Unknown; geo data is
// best-effort and never blocks startup.
func Open(path string, log *zap.Logger) *Locator {
	if path == "" {
		return &Locator{}
	}

	reader, err := geoip2.Open(path)
	if err != nil {
		log.Warn("geoip database unavailable, using Unknown for all lookups",
			zap.String("path", path), zap.Error(err))
		return &Locator{}
	}

	return &Locator{reader: reader}
}

// Lookup returns the country and city for ip, or Unknown/Unknown when the
// database is missing, the IP does not parse, or the lookup misses.
func (l *Locator) Lookup(ip string) (country, city string) {
	if l.reader == nil {
		return unknown, unknown
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return unknown, unknown
	}

	record, err := l.reader.City(parsed)
	if err != nil {
		return unknown, unknown
	}

	country = record.Country.Names["en"]
	if country == "" {
		country = unknown
	}
	city = record.City.Names["en"]
	if city == "" {
		city = unknown
	}
	return country, city
}

// Close releases the underlying database, if any.
func (l *Locator) Close() {
	if l.reader != nil {
		l.reader.Close()
	}
}
