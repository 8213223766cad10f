// SPDX-License-Identifier: MPL-2.0

package containerspec

import (
	"fmt"
	"io"

	"github.com/opencontainers/go-digest"
)

// Fingerprint returns the lock identity of s: the hex-encoded SHA-256 of the
// root url, then every Containerfile from the root outwards, then every format
// token in the same order. Each element is length-prefixed so that moving text
// between levels never yields the same input.
//
// The result depends only on the structural value of s.
func Fingerprint(s Spec) string {
	return FingerprintDigest(s).Encoded()
}

// FingerprintDigest is Fingerprint with the algorithm prefix kept ("sha256:...").
func FingerprintDigest(s Spec) digest.Digest {
	d := digest.SHA256.Digester()
	h := d.Hash()

	writeField(h, "url", Root(s).RawURL())
	levels := Chain(s)
	for _, level := range levels {
		writeField(h, "containerfile", level.containerfile)
	}
	for _, level := range levels {
		writeField(h, "format", level.format.String())
	}

	return d.Digest()
}

func writeField(w io.Writer, name, value string) {
	// hash.Hash writes never fail
	_, _ = fmt.Fprintf(w, "%s:%d:%s\n", name, len(value), value)
}
