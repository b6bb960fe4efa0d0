// Package cachekey derives the deterministic storage key shared by every cache tier.
package cachekey

import (
	"encoding/hex"
	"errors"
	"regexp"
	"strings"

	"github.com/zeebo/blake3"

	"media-cdn/internal/mediatypes"
	"media-cdn/internal/modifiers"
)

// Root is the prefix under which every derivative is stored.
const Root = "cache"

// hashLen is the number of hex characters kept from the digest (128 bits).
const hashLen = 32

// ErrInvalidKey is returned when a key does not look like a derived cache key.
var ErrInvalidKey = errors.New("invalid cache key")

var (
	extSanitizer = regexp.MustCompile(`[^a-z0-9]`)
	keyPattern   = regexp.MustCompile(`^cache/[a-z]+/[0-9a-f]{32}\.[a-z0-9]+$`)
)

// Namespace returns the key prefix for a media kind, e.g. "cache/image".
func Namespace(kind mediatypes.Kind) string {
	return Root + "/" + string(kind)
}

// Derive returns "<namespace>/<hash>.<format>".
//
// The hash covers the namespace, the origin id and the canonical modifier
// serialization, so token order in the request never changes the key.
func Derive(namespace, originID string, set modifiers.Set, format string) string {
	h := blake3.New()
	writeField(h, namespace)
	writeField(h, originID)
	writeField(h, set.Canonical())
	sum := h.Sum(nil)

	return namespace + "/" + hex.EncodeToString(sum)[:hashLen] + "." + Extension(format)
}

// ForRequest derives the key for a resolved modifier set. The format option
// supplies the extension.
func ForRequest(kind mediatypes.Kind, originID string, set modifiers.Set) string {
	return Derive(Namespace(kind), originID, set, set.Get(modifiers.Format))
}

// Extension sanitizes a format into a file extension; empty or unusable
// formats become "bin".
func Extension(format string) string {
	ext := extSanitizer.ReplaceAllString(strings.ToLower(format), "")
	if ext == "" {
		return "bin"
	}
	return ext
}

// Validate checks that key has the shape produced by Derive.
func Validate(key string) error {
	if !keyPattern.MatchString(key) {
		return ErrInvalidKey
	}
	return nil
}

// writeField length-delimits each field so ("ab","c") and ("a","bc") differ.
func writeField(h *blake3.Hasher, s string) {
	_, _ = h.Write([]byte(s))
	_, _ = h.Write([]byte{0})
}
