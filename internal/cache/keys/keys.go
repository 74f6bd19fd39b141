// Package keys builds the Redis keys of the estimate result cache.
package keys

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const prefix = "dims"

// Params are the request inputs besides the body that change a result.
type Params struct {
	CRS                  string
	Rasters              []string
	StoreyHeight         float64
	BufferSize           float64
	GroundLevelThreshold float64
}

// ResultKey identifies the estimate of body under p. Raster order and
// surrounding whitespace in the CRS do not matter.
func ResultKey(p Params, body []byte) string {
	crsSafe := sanitizeForKey(strings.ToUpper(strings.TrimSpace(p.CRS)))
	const maxCRSLen = 48
	if len(crsSafe) > maxCRSLen {
		crsSafe = crsSafe[:maxCRSLen]
	}

	rasters := slices.Clone(p.Rasters)
	slices.Sort(rasters)
	rasters = slices.Compact(rasters)

	h := xxhash.New()
	for _, r := range rasters {
		_, _ = h.WriteString(r)
		_, _ = h.WriteString("\x00")
	}
	for _, f := range []float64{p.StoreyHeight, p.BufferSize, p.GroundLevelThreshold} {
		_, _ = h.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		_, _ = h.WriteString("\x00")
	}
	paramSum := h.Sum64()
	bodySum := xxhash.Sum64(body)

	return fmt.Sprintf("%s:result:crs=%s:p=%016x:b=%016x", prefix, crsSafe, paramSum, bodySum)
}

// RasterKey names the set of result keys computed from one raster.
func RasterKey(raster string) string {
	id := strings.TrimSpace(raster)
	safe := sanitizeForKey(id)
	const maxIDLen = 120
	if len(safe) > maxIDLen {
		safe = safe[len(safe)-maxIDLen:]
	}
	return fmt.Sprintf("%s:raster:%s:h=%016x", prefix, safe, xxhash.Sum64String(id))
}

func sanitizeForKey(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-' || r == '.':
			out = r
		default:
			// Any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r < unicode.MaxASCII && unicode.IsDigit(r))
}
