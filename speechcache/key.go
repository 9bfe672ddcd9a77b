// Package speechcache stores synthesized audio artifacts on disk under
// content-addressed keys, with a pluggable metadata index and oldest-first
// eviction when the entry cap is reached.
package speechcache

import (
	"crypto/md5" //nolint:gosec // content addressing, not security
	"encoding/hex"
	"strings"

	"github.com/bellhopd/bellhop/tts"
)

// NormalizeText canonicalizes notification text for cache keying: leading
// and trailing space is dropped, internal runs of whitespace collapse to a
// single space, and case is folded. Texts differing only in whitespace or
// case share one artifact.
func NormalizeText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// Key derives the content-addressed cache key for a synthesis request.
// Equal normalized text, provider, and parameters always yield the same key
// across runs; any difference yields a different key.
func Key(text, provider string, params tts.Params) string {
	return keyFrom(NormalizeText(text), provider, params.Canonical())
}

// keyFrom derives the key from already-canonical components, as recorded on
// an index entry.
func keyFrom(normalizedText, provider, canonicalParams string) string {
	h := md5.New() //nolint:gosec // content addressing, not security
	h.Write([]byte(normalizedText))
	h.Write([]byte{'|'})
	h.Write([]byte(provider))
	h.Write([]byte{'|'})
	h.Write([]byte(canonicalParams))
	return hex.EncodeToString(h.Sum(nil))
}
