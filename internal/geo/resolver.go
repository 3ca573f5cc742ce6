// Package geo maps source addresses to a country code and network owner
// using MaxMind GeoLite2 databases.
package geo

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/BradenHooton/bruteguard/internal/models"
	"github.com/oschwald/geoip2-golang"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCacheTTL  = 6 * time.Hour
	defaultCacheSize = 10000
)

type cacheEntry struct {
	loc     models.GeoLocation
	expires time.Time
}

// Resolver is safe for concurrent use. Either database may be absent, in
// which case the matching field falls back to its "unknown" label.
type Resolver struct {
	mu        sync.RWMutex
	countryDB *geoip2.Reader
	asnDB     *geoip2.Reader

	cacheMu   sync.Mutex
	cache     map[string]cacheEntry
	cacheSize int
	cacheTTL  time.Duration
	group     singleflight.Group
	now       func() time.Time
	logger    *slog.Logger
}

func NewResolver(logger *slog.Logger) *Resolver {
	return &Resolver{
		cache:     make(map[string]cacheEntry),
		cacheSize: defaultCacheSize,
		cacheTTL:  defaultCacheTTL,
		now:       time.Now,
		logger:    logger,
	}
}

// Open loads the databases at the given paths. Empty paths are skipped.
func Open(countryPath, asnPath string, logger *slog.Logger) (*Resolver, error) {
	r := NewResolver(logger)
	if err := r.Reload(countryPath, asnPath); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload swaps in freshly opened databases and drops cached lookups.
func (r *Resolver) Reload(countryPath, asnPath string) error {
	var (
		errs    []error
		country *geoip2.Reader
		asn     *geoip2.Reader
	)

	if countryPath != "" {
		reader, err := geoip2.Open(countryPath)
		if err != nil {
			errs = append(errs, fmt.Errorf("country: %w", err))
		} else {
			country = reader
		}
	}
	if asnPath != "" {
		reader, err := geoip2.Open(asnPath)
		if err != nil {
			errs = append(errs, fmt.Errorf("asn: %w", err))
		} else {
			asn = reader
		}
	}
	if len(errs) > 0 {
		if country != nil {
			_ = country.Close()
		}
		if asn != nil {
			_ = asn.Close()
		}
		return errors.Join(errs...)
	}

	r.mu.Lock()
	oldCountry, oldASN := r.countryDB, r.asnDB
	r.countryDB, r.asnDB = country, asn
	r.mu.Unlock()

	if oldCountry != nil {
		_ = oldCountry.Close()
	}
	if oldASN != nil {
		_ = oldASN.Close()
	}
	r.cacheMu.Lock()
	clear(r.cache)
	r.cacheMu.Unlock()

	r.logger.Info("geoip databases loaded",
		slog.Bool("country", country != nil),
		slog.Bool("asn", asn != nil),
	)
	return nil
}

func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if r.countryDB != nil {
		errs = append(errs, r.countryDB.Close())
		r.countryDB = nil
	}
	if r.asnDB != nil {
		errs = append(errs, r.asnDB.Close())
		r.asnDB = nil
	}
	return errors.Join(errs...)
}

// Lookup never fails: unparseable or unknown addresses yield the
// "Unknown" labels and private ranges yield "Local".
func (r *Resolver) Lookup(ip string) models.GeoLocation {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return models.GeoLocation{Country: models.CountryUnknown, ISP: models.ISPUnknown}
	}
	addr = addr.Unmap()
	if isLocal(addr) {
		return models.GeoLocation{Country: models.CountryLocal, ISP: models.ISPLocal}
	}

	key := addr.String()
	if loc, ok := r.cached(key); ok {
		return loc
	}

	v, _, _ := r.group.Do(key, func() (any, error) {
		loc := r.lookupDB(net.IP(addr.AsSlice()))
		r.store(key, loc)
		return loc, nil
	})
	return v.(models.GeoLocation)
}

func (r *Resolver) cached(key string) (models.GeoLocation, bool) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	entry, ok := r.cache[key]
	if !ok || !r.now().Before(entry.expires) {
		return models.GeoLocation{}, false
	}
	return entry.loc, true
}

// store caches loc under key. The cache never holds more than cacheSize
// entries: when full, expired entries go first, then an arbitrary one.
func (r *Resolver) store(key string, loc models.GeoLocation) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	now := r.now()
	if _, ok := r.cache[key]; !ok && len(r.cache) >= r.cacheSize {
		r.evictLocked(now)
	}
	r.cache[key] = cacheEntry{loc: loc, expires: now.Add(r.cacheTTL)}
}

func (r *Resolver) evictLocked(now time.Time) {
	for k, e := range r.cache {
		if !now.Before(e.expires) {
			delete(r.cache, k)
		}
	}
	for k := range r.cache {
		if len(r.cache) < r.cacheSize {
			return
		}
		delete(r.cache, k)
	}
}

// Country returns only the country code for ip.
func (r *Resolver) Country(ip string) string {
	return r.Lookup(ip).Country
}

func (r *Resolver) lookupDB(ip net.IP) models.GeoLocation {
	loc := models.GeoLocation{Country: models.CountryUnknown, ISP: models.ISPUnknown}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.countryDB != nil {
		if rec, err := r.countryDB.Country(ip); err == nil && rec.Country.IsoCode != "" {
			loc.Country = rec.Country.IsoCode
		} else if err != nil {
			r.logger.Debug("country lookup failed", slog.String("ip", ip.String()), slog.Any("error", err))
		}
	}
	if r.asnDB != nil {
		if rec, err := r.asnDB.ASN(ip); err == nil && rec.AutonomousSystemOrganization != "" {
			loc.ISP = rec.AutonomousSystemOrganization
		}
	}
	return loc
}

func isLocal(addr netip.Addr) bool {
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified()
}
