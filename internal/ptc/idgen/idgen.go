// Package idgen generates and parses the identifiers PTC attaches to
// messages, correlations, traces, and spans.
package idgen

import (
	"crypto/rand"
	"encoding/base32"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Options customize message id generation.
type Options struct {
	Prefix         string
	IncludeTimestamp bool
}

// Parsed holds the decomposed parts of an id produced by NewMessageID.
type Parsed struct {
	Prefix    string
	Timestamp int64
	HasTime   bool
	Random    string
}

var uuidLike = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// randomToken returns a base32-encoded 128-bit random token, matching the
// teacher's use of uuid.New() for random ids but exposing the raw token so
// Parse can recover it.
func randomToken() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is unrecoverable; fall back to a uuid which
		// draws from the same source and panics identically on failure.
		return strings.ToLower(strings.ReplaceAll(uuid.New().String(), "-", ""))
	}
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf[:]))
}

// NewMessageID builds an id as <prefix?>-<base36 timestamp?>-<random>.
func NewMessageID(opts Options) string {
	parts := make([]string, 0, 3)
	if opts.Prefix != "" {
		parts = append(parts, opts.Prefix)
	}
	if opts.IncludeTimestamp {
		parts = append(parts, strconv.FormatInt(time.Now().UTC().UnixMilli(), 36))
	}
	parts = append(parts, randomToken())
	return strings.Join(parts, "-")
}

// NewCorrelationID returns an id shaped corr-<base36 timestamp>-<random>,
// guaranteeing at least 7 random characters as required by spec §4.1.
func NewCorrelationID() string {
	ts := strconv.FormatInt(time.Now().UTC().UnixMilli(), 36)
	rnd := randomToken()
	if len(rnd) < 7 {
		rnd = rnd + randomToken()
	}
	return "corr-" + ts + "-" + rnd
}

// Parse decomposes an id produced by NewMessageID. It is best-effort: ids
// not produced by this package still parse, with Random set to the whole
// trailing segment.
func Parse(id string) Parsed {
	segments := strings.Split(id, "-")
	if len(segments) == 0 {
		return Parsed{}
	}

	random := segments[len(segments)-1]
	rest := segments[:len(segments)-1]

	var p Parsed
	if len(rest) > 0 {
		if ts, err := strconv.ParseInt(rest[len(rest)-1], 36, 64); err == nil && len(rest[len(rest)-1]) > 0 {
			p.Timestamp = ts
			p.HasTime = true
			rest = rest[:len(rest)-1]
		}
	}
	if len(rest) > 0 {
		p.Prefix = strings.Join(rest, "-")
	}
	p.Random = random
	return p
}

// IsValid is intentionally lenient: spec §9.a preserves the source's
// leniency so that both freshly generated PTC ids and bare upstream UUIDs
// (e.g. dl-<uuid> identifiers minted by other components) validate.
func IsValid(id string) bool {
	if id == "" {
		return false
	}
	if uuidLike.MatchString(id) {
		return true
	}
	return strings.Contains(id, "-")
}
