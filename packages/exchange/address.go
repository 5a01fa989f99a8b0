package exchange

import (
	"crypto/sha256"
	"math/big"
	"path/filepath"
	"strings"
)

// alphabet spells base-32 digits with lowercase letters first so that
// addresses are safe in file names.
const alphabet = "abcdefghijklmnopqrstuvwxyz234567"

// DefaultDir is where sockets live when no directory is configured.
const DefaultDir = "/tmp"

// Address derives the exchange address for a config file and profile. The
// SHA-256 digest of "configPath;profile" is written as a base-32 number
// using alphabet, so every process that loads the same config with the
// same profile computes the same address.
func Address(configPath, profile string) string {
	sum := sha256.Sum256([]byte(configPath + ";" + profile))
	digits := new(big.Int).SetBytes(sum[:]).Text(32)

	var b strings.Builder
	b.Grow(len(digits))
	for _, d := range digits {
		var i int
		switch {
		case d >= '0' && d <= '9':
			i = int(d - '0')
		default:
			i = int(d-'a') + 10
		}
		b.WriteByte(alphabet[i])
	}
	return b.String()
}

// SocketPath returns the Unix socket path for address inside dir.
func SocketPath(dir, address string) string {
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, "envex."+address+".sock")
}
