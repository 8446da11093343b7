package enrichment

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"netlynx/internal/database/models"

	"github.com/oschwald/geoip2-golang"
	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// UnknownCountry marks addresses that were looked up without a result
// (private ranges, addresses missing from the database) so they are not
// looked up again.
const UnknownCountry = "ZZ"

// GeoInfo is the enrichment data for one IP address
type GeoInfo struct {
	Country string
	City    string
	ASN     int
	ASNOrg  string
}

// GeoIPEnricher annotates sources described by an IP address with the
// location and network owner of that address
type GeoIPEnricher struct {
	city      *geoip2.Reader
	country   *geoip2.Reader
	asn       *geoip2.Reader
	db        *gorm.DB
	logger    *pterm.Logger
	cache     map[string]*GeoInfo
	cacheSize int
	mu        sync.RWMutex
}

// NewGeoIPEnricher opens whichever of the MaxMind databases exist. It
// returns an error only when none could be opened.
func NewGeoIPEnricher(cityPath, countryPath, asnPath string, cacheSize int, db *gorm.DB, logger *pterm.Logger) (*GeoIPEnricher, error) {
	g := &GeoIPEnricher{
		db:        db,
		logger:    logger,
		cache:     make(map[string]*GeoInfo),
		cacheSize: cacheSize,
	}

	open := func(kind, path string) *geoip2.Reader {
		if path == "" {
			return nil
		}
		r, err := geoip2.Open(path)
		if err != nil {
			logger.Debug("GeoIP database not available",
				logger.Args("kind", kind, "path", path, "error", err))
			return nil
		}
		logger.Debug("Opened GeoIP database", logger.Args("kind", kind, "path", path))
		return r
	}

	g.city = open("city", cityPath)
	if g.city == nil {
		g.country = open("country", countryPath)
	}
	g.asn = open("asn", asnPath)

	if !g.IsEnabled() {
		return nil, fmt.Errorf("no GeoIP database could be opened (city=%q country=%q asn=%q)", cityPath, countryPath, asnPath)
	}
	return g, nil
}

// IsEnabled reports whether at least one database is open
func (g *GeoIPEnricher) IsEnabled() bool {
	return g != nil && (g.city != nil || g.country != nil || g.asn != nil)
}

// LoadCache warms the cache from sources enriched by earlier runs
func (g *GeoIPEnricher) LoadCache() error {
	if g.db == nil {
		return nil
	}

	var records []models.SourceRecord
	err := g.db.Model(&models.SourceRecord{}).
		Select("description, geo_country, geo_city, asn, asn_org").
		Where("geo_country != ''").
		Group("description").
		Limit(g.cacheSize).
		Find(&records).Error
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, r := range records {
		ip := HostIP(r.Description)
		if ip == nil {
			continue
		}
		g.cache[ip.String()] = &GeoInfo{Country: r.GeoCountry, City: r.GeoCity, ASN: r.ASN, ASNOrg: r.ASNOrg}
	}
	return nil
}

// GetCacheSize returns the number of cached addresses
func (g *GeoIPEnricher) GetCacheSize() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.cache)
}

// Lookup returns the enrichment data for ip
func (g *GeoIPEnricher) Lookup(ip net.IP) *GeoInfo {
	key := ip.String()

	g.mu.RLock()
	info, ok := g.cache[key]
	g.mu.RUnlock()
	if ok {
		return info
	}

	info = &GeoInfo{Country: UnknownCountry}
	if !ip.IsPrivate() && !ip.IsLoopback() && !ip.IsLinkLocalUnicast() {
		g.lookupLocation(ip, info)
		if g.asn != nil {
			if rec, err := g.asn.ASN(ip); err == nil {
				info.ASN = int(rec.AutonomousSystemNumber)
				info.ASNOrg = rec.AutonomousSystemOrganization
			}
		}
	}

	g.mu.Lock()
	if g.cacheSize <= 0 || len(g.cache) < g.cacheSize {
		g.cache[key] = info
	}
	g.mu.Unlock()
	return info
}

func (g *GeoIPEnricher) lookupLocation(ip net.IP, info *GeoInfo) {
	switch {
	case g.city != nil:
		rec, err := g.city.City(ip)
		if err != nil {
			g.logger.Trace("City lookup failed", g.logger.Args("ip", ip.String(), "error", err))
			return
		}
		if rec.Country.IsoCode != "" {
			info.Country = rec.Country.IsoCode
		}
		info.City = rec.City.Names["en"]
	case g.country != nil:
		rec, err := g.country.Country(ip)
		if err != nil {
			g.logger.Trace("Country lookup failed", g.logger.Args("ip", ip.String(), "error", err))
			return
		}
		if rec.Country.IsoCode != "" {
			info.Country = rec.Country.IsoCode
		}
	}
}

// Enrich fills the geo columns of a source whose description is an IP
// address, optionally with a port. It reports whether record changed.
func (g *GeoIPEnricher) Enrich(record *models.SourceRecord) bool {
	if !g.IsEnabled() {
		return false
	}
	ip := HostIP(record.Description)
	if ip == nil {
		return false
	}

	info := g.Lookup(ip)
	record.GeoCountry = info.Country
	record.GeoCity = info.City
	record.ASN = info.ASN
	record.ASNOrg = info.ASNOrg
	return true
}

// HostIP extracts the address from descriptions such as "8.8.8.8:53",
// "[2001:db8::1]:443" or a bare address. It returns nil for anything
// else, host names included.
func HostIP(description string) net.IP {
	s := strings.TrimSpace(description)
	if s == "" {
		return nil
	}
	if host, port, err := net.SplitHostPort(s); err == nil {
		if _, err := strconv.Atoi(port); err == nil {
			s = host
		}
	}
	return net.ParseIP(strings.Trim(s, "[]"))
}

// Close releases the databases
func (g *GeoIPEnricher) Close() {
	for _, r := range []*geoip2.Reader{g.city, g.country, g.asn} {
		if r != nil {
			r.Close()
		}
	}
}
