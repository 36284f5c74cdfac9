// Package monitor provides the shared data model for the pulsewatch uptime
// engine: targets, probe results, telemetry rows, and mutation updates.
// These types are the wire contract between the scheduler, the probe
// engine, and the two asynchronous sinks; they carry no behavior of their
// own beyond small, pure helpers.
package monitor

import "time"

// Status is the coarse observation recorded on a Target: online, offline,
// disabled, or unknown (empty).
type Status string

const (
	StatusOnline   Status = "online"
	StatusOffline  Status = "offline"
	StatusDisabled Status = "disabled"
	StatusUnknown  Status = ""
)

// DetailedStatus is the four-way classification produced by the probe
// engine's rulebook.
type DetailedStatus string

const (
	DetailedUP                   DetailedStatus = "UP"
	DetailedRedirect             DetailedStatus = "REDIRECT"
	DetailedReachableWithError   DetailedStatus = "REACHABLE_WITH_ERROR"
	DetailedDown                 DetailedStatus = "DOWN"
)

// Sentinel HTTP status codes used in place of a real response code.
const (
	StatusCodeConnectionError = 0
	StatusCodeTimeout         = -1
)

// Kind selects which probe the scheduler runs against a Target, derived
// from the target's URL scheme plus an explicit override.
type Kind string

const (
	KindWebsite      Kind = "website"
	KindRESTEndpoint Kind = "rest_endpoint"
	KindTCP          Kind = "tcp"
	KindUDP          Kind = "udp"
)

// Region is one of the fixed, finite deployment localities used for
// sharding scheduler ticks. See pkg/monitor/region.go for the full set
// and centroid table.
type Region string

// BodyValidator describes how to validate a probe's response body.
type BodyValidator struct {
	ContainsText  []string `json:"contains_text,omitempty"`
	JSONPath      string   `json:"json_path,omitempty"`
	ExpectedValue string   `json:"expected_value,omitempty"`
}

// TargetMetadata is the best-effort DNS/GeoIP enrichment attached to a
// Target. Every field is optional; a merge with existing metadata never
// overwrites a known non-null value with a null one (spec.md §4.1).
type TargetMetadata struct {
	Hostname    string   `json:"hostname,omitempty"`
	PrimaryIP   string   `json:"primary_ip,omitempty"`
	IPs         []string `json:"ips,omitempty"`
	IPFamily    string   `json:"ip_family,omitempty"` // "4" or "6"
	Country     string   `json:"country,omitempty"`
	RegionName  string   `json:"region_name,omitempty"`
	City        string   `json:"city,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
	ASN         string   `json:"asn,omitempty"`
	Org         string   `json:"org,omitempty"`
	ISP         string   `json:"isp,omitempty"`
}

// Merge fills zero-valued fields of m from other, never overwriting a
// known non-null value with a null one. Returns true if anything changed.
func (m *TargetMetadata) Merge(other TargetMetadata) bool {
	changed := false
	if m.Hostname == "" && other.Hostname != "" {
		m.Hostname, changed = other.Hostname, true
	}
	if m.PrimaryIP == "" && other.PrimaryIP != "" {
		m.PrimaryIP, changed = other.PrimaryIP, true
	}
	if len(m.IPs) == 0 && len(other.IPs) > 0 {
		m.IPs, changed = other.IPs, true
	}
	if m.IPFamily == "" && other.IPFamily != "" {
		m.IPFamily, changed = other.IPFamily, true
	}
	if m.Country == "" && other.Country != "" {
		m.Country, changed = other.Country, true
	}
	if m.RegionName == "" && other.RegionName != "" {
		m.RegionName, changed = other.RegionName, true
	}
	if m.City == "" && other.City != "" {
		m.City, changed = other.City, true
	}
	if m.Lat == nil && other.Lat != nil {
		m.Lat, changed = other.Lat, true
	}
	if m.Lon == nil && other.Lon != nil {
		m.Lon, changed = other.Lon, true
	}
	if m.ASN == "" && other.ASN != "" {
		m.ASN, changed = other.ASN, true
	}
	if m.Org == "" && other.Org != "" {
		m.Org, changed = other.Org, true
	}
	if m.ISP == "" && other.ISP != "" {
		m.ISP, changed = other.ISP, true
	}
	return changed
}

// SSLCertSnapshot is a point-in-time fingerprint of the leaf certificate
// seen during an HTTPS probe's TLS stage.
type SSLCertSnapshot struct {
	FingerprintSHA256 string    `json:"fingerprint_sha256"`
	IssuerCN          string    `json:"issuer_cn"`
	NotAfter          time.Time `json:"not_after"`
	CheckedAt         time.Time `json:"checked_at"`
}

// StageTimings captures the DNS/CONNECT/TLS/TTFB stage durations of one
// HTTP probe attempt. Zero means the stage was not reached or not
// applicable (e.g. TLS on a plain HTTP probe).
type StageTimings struct {
	DNS     time.Duration `json:"dns,omitempty"`
	Connect time.Duration `json:"connect,omitempty"`
	TLS     time.Duration `json:"tls,omitempty"`
	TTFB    time.Duration `json:"ttfb,omitempty"`
}

// EdgeHints captures best-effort CDN/edge metadata parsed from response
// headers.
type EdgeHints struct {
	CDNProvider string            `json:"cdn_provider,omitempty"`
	EdgePoP     string            `json:"edge_pop,omitempty"`
	EdgeRayID   string            `json:"edge_ray_id,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// Target is the persisted, externally-owned monitored endpoint. The
// scheduler only reads it and writes mutation updates through Sink B; it
// never writes a Target directly.
type Target struct {
	ID     string
	UserID string
	URL    string
	Kind   Kind

	DisplayName string
	Region      Region

	CheckIntervalMinutes int

	Method            string
	ExpectedStatusSet  []int
	Headers            map[string]string
	Body               string
	Validator          *BodyValidator
	ResponseTimeCeiling time.Duration
	CacheNoCache        bool

	LastStatus       Status
	LastStatusCode   int
	LastResponseTime time.Duration
	LastError        string
	LastDetailed     DetailedStatus

	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	FirstFailureAt       *time.Time

	LastCheckedAt       time.Time
	NextCheckAt         time.Time
	LastHistoryAt       time.Time
	LastHistoryBucket   int64

	Disabled         bool
	DisabledReason   string
	DisabledAt       *time.Time

	PendingDownAlert bool
	PendingUpAlert   bool
	PendingSince     *time.Time

	Metadata              TargetMetadata
	MetadataLastCheckedAt time.Time
	// MetadataLastFailedAt is set whenever a metadata resolution attempt
	// errors, so retries back off at TargetMetadataRetry instead of the
	// much longer TargetMetadataTTL success cadence. It is never cleared;
	// the scheduler treats a failure as the latest outcome while it is later
	// than MetadataLastCheckedAt.
	MetadataLastFailedAt time.Time

	SSLCert           *SSLCertSnapshot
	SSLLastCheckedAt  time.Time

	OrderingIndex int
	TierCache     string
}

// ProbeOptions carries the per-target configuration the probe engine
// needs, explicitly passed rather than read from ambient state (spec.md
// §9 Design Notes: "Dynamic options").
type ProbeOptions struct {
	Kind                Kind
	Method              string
	ExpectedStatusSet   []int
	Headers             map[string]string
	Body                string
	Validator           *BodyValidator
	ResponseTimeCeiling time.Duration
	CacheNoCache        bool
	RecheckInProgress   bool // halves the adaptive timeout's base value
	RefreshMetadata     bool
}

// ProbeResult is the ephemeral outcome of one probe attempt.
type ProbeResult struct {
	Status         Status
	Detailed       DetailedStatus
	StatusCode     int
	ResponseTime   time.Duration
	Stages         StageTimings
	BodySnippet    []byte
	RedirectLoc    string
	MetadataDelta  *TargetMetadata
	Edge           *EdgeHints
	SSLCert        *SSLCertSnapshot
	Error          string
	UsedMethod     string
	UsedRange      bool
}

// TelemetryRow is one stream element fed into Sink A.
type TelemetryRow struct {
	ID           string // target id + millisecond timestamp + monotonic tiebreaker
	TargetID     string
	UserID       string
	Timestamp    time.Time
	Status       Status
	StatusCode   int
	ResponseTime time.Duration
	Error        string
	Stages       StageTimings
	Metadata     TargetMetadata
	Edge         *EdgeHints
}

// MutationUpdate is one stream element fed into Sink B: a sparse set of
// field -> new value for one target, merged last-write-wins per field.
type MutationUpdate struct {
	TargetID string
	Fields   map[string]any
}

// FailureMeta is Sink A's per-row bookkeeping (internal to the sink, but
// exported here because both the sink and its tests need to construct and
// inspect it).
type FailureMeta struct {
	FailureCount  int
	NextRetryAt   time.Time
	FirstFailedAt time.Time
	LastErrorCode int
	LastErrorMsg  string
}
