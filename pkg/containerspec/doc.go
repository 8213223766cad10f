// SPDX-License-Identifier: MPL-2.0

// Package containerspec defines the declarative description of a container image
// used as a test fixture, and the fingerprint that identifies it.
//
// A Spec is either a DirectContainer (an existing image reference, pulled or
// already present in local storage) or a DerivedContainer (a base Spec plus
// Containerfile instructions that are built on top of it). Derived containers
// may be nested; the chain always ends in a DirectContainer.
//
// Every Spec computes its lock identity once at construction:
//
//	base, _ := containerspec.NewDirectContainer("registry.opensuse.org/opensuse/busybox:latest")
//	spec, _ := containerspec.NewDerivedContainer(base,
//		containerspec.WithContainerfile("ENV foobar=1"),
//	)
//	fmt.Println(spec.LockIdentity()) // stable hex token, safe as a file name
//
// This package is a leaf dependency: it never imports the lock or prepare packages.
package containerspec
