// Package monitormeta resolves best-effort DNS and GeoIP metadata for a
// target's hostname, behind a TTL cache and a bounded-concurrency FIFO
// gate (spec.md §4.1's target metadata resolver, §9 Design Notes).
package monitormeta

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/oschwald/maxminddb-golang"
	"go.uber.org/zap"

	"pulsewatch/pkg/monitor"
)

// geoRecord mirrors the subset of MaxMind's GeoLite2-City schema this
// resolver reads; unmapped fields are ignored by the decoder.
type geoRecord struct {
	Country struct {
		IsoCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Location struct {
		Latitude  float64 `maxminddb:"latitude"`
		Longitude float64 `maxminddb:"longitude"`
	} `maxminddb:"location"`
}

// Resolver produces TargetMetadata for a target's hostname. A nil geoDB is
// valid: GeoIP enrichment is skipped and only DNS fields are populated.
type Resolver struct {
	cache *ttlCache
	gate  *fifoGate
	geoDB *maxminddb.Reader
	log   *zap.Logger

	lookupIP func(ctx context.Context, host string) ([]net.IPAddr, error)
}

// NewResolver builds a Resolver. geoDBPath may be empty, in which case
// GeoIP fields are never populated. A failure to open a non-empty path is
// logged and treated the same as "no GeoIP database": resolution never
// fails outright for a missing or corrupt database.
func NewResolver(ttl time.Duration, concurrency int, geoDBPath string, log *zap.Logger) *Resolver {
	r := &Resolver{
		cache: newTTLCache(ttl),
		gate:  newFIFOGate(concurrency),
		log:   log,
	}
	r.lookupIP = net.DefaultResolver.LookupIPAddr
	if geoDBPath != "" {
		db, err := maxminddb.Open(geoDBPath)
		if err != nil {
			log.Warn("geoip database unavailable, resolving DNS-only metadata", zap.String("path", geoDBPath), zap.Error(err))
		} else {
			r.geoDB = db
		}
	}
	return r
}

func (r *Resolver) Close() error {
	if r.geoDB != nil {
		return r.geoDB.Close()
	}
	return nil
}

// Resolve returns metadata for targetURL's host, using the cache when
// fresh and otherwise performing DNS plus (if available) GeoIP lookups
// behind the concurrency gate.
func (r *Resolver) Resolve(ctx context.Context, targetURL string) (monitor.TargetMetadata, error) {
	host, err := hostOf(targetURL)
	if err != nil {
		return monitor.TargetMetadata{}, fmt.Errorf("parse target host: %w", err)
	}

	now := time.Now()
	if meta, ok := r.cache.Get(host, now); ok {
		return meta, nil
	}

	release, err := r.gate.Acquire(ctx)
	if err != nil {
		return monitor.TargetMetadata{}, fmt.Errorf("metadata concurrency gate: %w", err)
	}
	defer release()

	// Re-check after acquiring: another waiter may have just populated it.
	if meta, ok := r.cache.Get(host, time.Now()); ok {
		return meta, nil
	}

	meta, err := r.resolveUncached(ctx, host)
	if err != nil {
		return monitor.TargetMetadata{}, err
	}
	r.cache.Set(host, meta, time.Now())
	return meta, nil
}

func (r *Resolver) resolveUncached(ctx context.Context, host string) (monitor.TargetMetadata, error) {
	meta := monitor.TargetMetadata{Hostname: host}

	addrs, err := r.lookupIP(ctx, host)
	if err != nil {
		return meta, fmt.Errorf("dns lookup %s: %w", host, err)
	}
	for _, a := range addrs {
		meta.IPs = append(meta.IPs, a.IP.String())
	}
	if len(meta.IPs) > 0 {
		meta.PrimaryIP = meta.IPs[0]
		if ip := net.ParseIP(meta.PrimaryIP); ip != nil && ip.To4() == nil {
			meta.IPFamily = "6"
		} else {
			meta.IPFamily = "4"
		}
	}

	if r.geoDB != nil && meta.PrimaryIP != "" {
		if ip := net.ParseIP(meta.PrimaryIP); ip != nil {
			var rec geoRecord
			if err := r.geoDB.Lookup(ip, &rec); err == nil {
				meta.Country = rec.Country.IsoCode
				if name, ok := rec.City.Names["en"]; ok {
					meta.City = name
				}
				if rec.Location.Latitude != 0 || rec.Location.Longitude != 0 {
					lat, lon := rec.Location.Latitude, rec.Location.Longitude
					meta.Lat, meta.Lon = &lat, &lon
				}
			}
		}
	}
	return meta, nil
}

func hostOf(targetURL string) (string, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return targetURL, nil
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("no host in %q", targetURL)
	}
	return host, nil
}
