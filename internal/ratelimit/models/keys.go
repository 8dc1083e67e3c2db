package models

import (
	"fmt"
	"strings"
)

// KeyPrefix namespaces every counter: rl:<class>:<identity>.
const KeyPrefix = "rl"

// Key is a value object for counter key construction. It centralizes the key
// format and sanitization so user-controlled identities cannot collide.
type Key struct {
	class    Class
	identity string
}

// NewKey builds the counter key for identity (normally the client IP) under class.
func NewKey(class Class, identity string) Key {
	return Key{class: class, identity: sanitizeKeySegment(identity)}
}

// String returns the formatted key for storage lookup.
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", KeyPrefix, k.class, k.identity)
}

// Class returns the action class the key counts.
func (k Key) Class() Class {
	return k.class
}

// sanitizeKeySegment escapes delimiter characters so an identity containing ':'
// (IPv6 addresses, forged headers) cannot address another bucket.
//
// Escape rules (order matters):
//  1. '_' becomes '__'
//  2. ':' becomes '_c'
//
// Examples:
//   - "2001:db8::1" → "2001_cdb8_c_c1"
//   - "a_b"         → "a__b"
//   - "a_:b"        → "a___cb"
func sanitizeKeySegment(s string) string {
	s = strings.ReplaceAll(s, "_", "__")
	s = strings.ReplaceAll(s, ":", "_c")
	return s
}
