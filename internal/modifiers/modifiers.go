package modifiers

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Canonical option names.
const (
	Format     = "format"
	Width      = "width"
	Height     = "height"
	Resize     = "resize"
	Position   = "position"
	Quality    = "quality"
	Animated   = "animated"
	Codec      = "codec"
	Fit        = "fit"
	Background = "background"
	Rotate     = "rotate"
	Flip       = "flip"
	Flop       = "flop"
	Blur       = "blur"
	Sharpen    = "sharpen"
	Grayscale  = "grayscale"
	Negate     = "negate"
	Normalize  = "normalize"
	Device     = "device"
	Time       = "time"
)

// Auto asks the server to negotiate a value from the Accept header.
const Auto = "auto"

// aliases maps short codes to canonical names. Keys not listed are kept as-is.
var aliases = map[string]string{
	"f":   Format,
	"w":   Width,
	"h":   Height,
	"s":   Resize,
	"pos": Position,
	"q":   Quality,
	"a":   Animated,
	"c":   Codec,
	"b":   Background,
	"d":   Device,
	"t":   Time,
}

// caseInsensitive lists options whose values are keywords or hex colors, so
// "f_MP4" and "f_mp4" produce the same Set.
var caseInsensitive = map[string]bool{
	Format:     true,
	Codec:      true,
	Device:     true,
	Fit:        true,
	Position:   true,
	Background: true,
}

var (
	separators = regexp.MustCompile(`[&,]`)
	sizeValue  = regexp.MustCompile(`^(\d+)x(\d+)$`)
)

// Set is a canonical, order-independent collection of transform options.
type Set map[string]string

// Parse turns a raw argument segment into a Set.
//
// Tokens are split on ',' or '&' (including an encoded %2C) and on the first
// ':', '=' or '_' into key and value. Whitespace is ignored. A key without a
// value is a boolean flag set to "true". "s_WxH" expands into width and height.
// Empty input or "_" yields an empty Set. Malformed tokens are skipped.
// Keyword values such as format, codec and device are lowercased.
//
// When a canonical name appears more than once, a long-form key beats its
// alias. Between tokens of the same form the lexicographically smallest token
// wins, so the result never depends on token order.
func Parse(raw string) Set {
	set := Set{}
	fromAlias := map[string]bool{}

	assign := func(name, value string, alias bool) {
		if _, exists := set[name]; exists && !(fromAlias[name] && !alias) {
			return
		}
		if caseInsensitive[name] {
			value = strings.ToLower(value)
		}
		set[name] = value
		fromAlias[name] = alias
	}

	for _, tok := range Tokens(raw) {
		key, value := splitToken(tok)
		if key == "" {
			continue
		}

		name, alias := canonicalName(key)
		if name == Resize {
			if m := sizeValue.FindStringSubmatch(value); m != nil {
				assign(Width, m[1], alias)
				assign(Height, m[2], alias)
				continue
			}
		}
		assign(name, value, alias)
	}
	return set
}

// Tokens normalizes a raw argument segment into its sorted, non-empty tokens.
func Tokens(raw string) []string {
	if raw == "" || raw == "_" {
		return nil
	}

	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	decoded = strings.NewReplacer("%2C", ",", "%2c", ",").Replace(decoded)
	decoded = strings.Join(strings.Fields(decoded), "")

	var tokens []string
	for _, p := range separators.Split(decoded, -1) {
		if p != "" && p != "_" {
			tokens = append(tokens, p)
		}
	}
	sort.Strings(tokens)
	return tokens
}

// NormalizeArgs returns the sorted token string used for logging and signatures.
func NormalizeArgs(raw string) string {
	return strings.Join(Tokens(raw), ",")
}

func splitToken(tok string) (string, string) {
	idx := strings.IndexAny(tok, ":=_")
	if idx < 0 {
		return strings.ToLower(tok), "true"
	}
	key := strings.ToLower(tok[:idx])
	value := strings.NewReplacer(":", "_", "=", "_").Replace(tok[idx+1:])
	if value == "" {
		value = "true"
	}
	return key, value
}

func canonicalName(key string) (string, bool) {
	if name, ok := aliases[key]; ok {
		return name, true
	}
	return key, false
}

// Canonical serializes the set as sorted "key_value" pairs joined by ','.
func (s Set) Canonical() string {
	keys := s.Keys()
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"_"+s[k])
	}
	return strings.Join(parts, ",")
}

// Keys returns the option names in lexicographic order.
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value for name, or "" when absent.
func (s Set) Get(name string) string {
	return s[name]
}

// Has reports whether name is present.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Int returns the value for name as a positive integer.
func (s Set) Int(name string) (int, bool) {
	v, ok := s[name]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Float returns the value for name as a float.
func (s Set) Float(name string) (float64, bool) {
	v, ok := s[name]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Bool reports whether name is present with a truthy value.
func (s Set) Bool(name string) bool {
	switch strings.ToLower(s[name]) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// IsAuto reports whether name is absent or explicitly "auto".
func (s Set) IsAuto(name string) bool {
	v, ok := s[name]
	return !ok || v == "" || strings.EqualFold(v, Auto)
}

// Clone returns an independent copy of the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// With returns a copy of the set with name set to value.
func (s Set) With(name, value string) Set {
	out := s.Clone()
	out[name] = value
	return out
}
