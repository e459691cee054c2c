// Package cookie loads the fixed-size authentication cookie spec §6
// describes: a binary file in the user's home directory, consulted before
// the AUTH handshake step (spec §4.1 connect precondition).
package cookie

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/singleflight"
)

// Size is the fixed length of a pulse authentication cookie in bytes.
const Size = 256

// loadGroup collapses concurrent [Load] calls for the same path into a
// single disk read: a process that opens several sessions against the same
// daemon at startup reads the cookie file once rather than once per
// session.
var loadGroup singleflight.Group

// DefaultPath returns the well-known per-user cookie path, honoring the
// PULSE_COOKIE environment variable override before falling back to
// ~/.config/pulse/cookie, matching how the real client resolves it.
func DefaultPath() (string, error) {
	if p := os.Getenv("PULSE_COOKIE"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cookie: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "pulse", "cookie"), nil
}

// Load reads exactly Size bytes from path. A missing file or a short read
// both map to the same failure, which the Context surfaces as the AuthKey
// error (spec §4.1, §6, §7 "Configuration").
func Load(path string) ([Size]byte, error) {
	v, err, _ := loadGroup.Do(path, func() (any, error) {
		var out [Size]byte
		f, err := os.Open(path)
		if err != nil {
			return out, fmt.Errorf("cookie: open %q: %w", path, err)
		}
		defer f.Close()

		if _, err := io.ReadFull(f, out[:]); err != nil {
			return out, fmt.Errorf("cookie: read %q: %w", path, err)
		}
		return out, nil
	})
	return v.([Size]byte), err
}
