// Package identity derives a stable default identity for the local machine.
package identity

import (
	"encoding/hex"
	"net"
	"os"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/crypto/blake2b"
)

// Default returns a short hex token that is stable across restarts on the
// same machine: an 8-byte blake2b digest of the hostname and the hardware
// addresses of all interfaces. If no machine fingerprint is available at
// all, a random token is returned instead.
func Default() string {
	h, _ := blake2b.New(8, nil)

	var wrote bool
	if name, err := os.Hostname(); err == nil && name != "" {
		h.Write([]byte(name))
		h.Write([]byte{0})
		wrote = true
	}
	if ifaces, err := net.Interfaces(); err == nil {
		for _, ifc := range ifaces {
			if len(ifc.HardwareAddr) == 0 {
				continue
			}
			h.Write(ifc.HardwareAddr)
			h.Write([]byte{0})
			wrote = true
		}
	}

	if !wrote {
		return gonanoid.Must(16)
	}
	return hex.EncodeToString(h.Sum(nil))
}
