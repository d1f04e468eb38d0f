// Package checksum fingerprints rendered migration scripts so two renders
// can be compared without diffing them.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var ErrMismatch = errors.New("script checksum mismatch")

func SHA256(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Script fingerprints a rendered script. Line endings are normalized so a
// script checked out with CRLF endings matches.
func Script(s string) string {
	return SHA256([]byte(strings.ReplaceAll(s, "\r\n", "\n")))
}

// Verify compares the fingerprint of script with want, ignoring case.
func Verify(script, want string) error {
	got := Script(script)
	if !strings.EqualFold(got, strings.TrimSpace(want)) {
		return fmt.Errorf("%w: got %s, want %s", ErrMismatch, got, want)
	}
	return nil
}
