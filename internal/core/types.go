// Package core implements box source classification, metadata resolution,
// and the add pipeline.
package core

import "context"

// SourceKind classifies a user-supplied box source string.
type SourceKind int

const (
	// SourceDirect is a URL or path naming the box artifact itself.
	SourceDirect SourceKind = iota

	// SourceMetadata is a URL or path naming a metadata document that
	// lists available versions and providers.
	SourceMetadata

	// SourceShorthand is an "owner/name" identifier that expands to a
	// metadata document URL on the configured box server.
	SourceShorthand
)

func (k SourceKind) String() string {
	switch k {
	case SourceDirect:
		return "direct"
	case SourceMetadata:
		return "metadata"
	case SourceShorthand:
		return "shorthand"
	default:
		return "unknown"
	}
}

// Source is a classified box source.
type Source struct {
	Raw  string
	Kind SourceKind
}

// BoxSpec describes the box a caller wants installed. Sources are tried
// in order until one yields a usable artifact.
type BoxSpec struct {
	// Name is the logical box name. Required when every source is a
	// direct artifact; otherwise it is checked against the metadata
	// document's declared name.
	Name string

	// Sources are URLs or local paths. At most one may be a metadata
	// document, and then it must be the only entry.
	Sources []string

	// VersionConstraint restricts acceptable versions, e.g. "~> 1.0".
	// Empty means any version.
	VersionConstraint string

	// Providers restricts acceptable providers. Empty means any.
	Providers []string

	// Force replaces an already-installed box instead of failing.
	Force bool

	// AsMetadata forces every source to be treated as a metadata
	// document regardless of extension or content type.
	AsMetadata bool
}

// Metadata is a parsed box metadata document.
type Metadata struct {
	Name        string
	Description string
	Versions    []VersionEntry
}

// VersionEntry is one version listed in a metadata document. Providers
// keep document order; Versions carry no order guarantee.
type VersionEntry struct {
	Version   string
	Status    string
	Providers []ProviderEntry
}

// ProviderEntry is one provider-specific artifact within a version.
type ProviderEntry struct {
	Name         string
	URL          string
	ChecksumType string
	Checksum     string
}

// ResolvedBox is the single concrete artifact selected by resolution.
type ResolvedBox struct {
	// Path is the artifact location: a local path or a remote URL.
	Path string

	Name     string
	Version  string
	Provider string

	// ChecksumType and Checksum are the declared digest for the
	// artifact, verified by the store on add. Empty when undeclared.
	ChecksumType string
	Checksum     string

	// MetadataURL is set only when the source was a metadata document.
	MetadataURL string

	Force bool
}

// Box is a handle to an installed box.
type Box struct {
	Name      string
	Version   string
	Provider  string
	Directory string

	// MetadataURL is the metadata document the box was installed from,
	// if any. Used for update checks by the consuming layer.
	MetadataURL string
}

// AddOptions carries optional parameters for BoxStore.Add.
type AddOptions struct {
	// Provider to record for the box. Empty means the store derives it
	// from the archive's own metadata.
	Provider string

	// Force replaces an existing box with the same identity.
	Force bool

	// MetadataURL to record alongside the installed box.
	MetadataURL string

	// ChecksumType and Checksum, when set, are verified against the
	// artifact before anything is unpacked.
	ChecksumType string
	Checksum     string
}

// BoxStore is the installed-box collection the pipeline hands artifacts
// to. Find returns nil when no matching box is installed; an empty
// providers slice matches any provider.
type BoxStore interface {
	Find(name string, providers []string, version string) (*Box, error)
	Add(ctx context.Context, path, name, version string, opts AddOptions) (*Box, error)
}

// Chooser disambiguates between multiple matching providers. It receives
// the candidate provider names in document order and a 1-based default,
// and returns the 1-based index of the chosen provider. Tests supply a
// stub; interactive callers wire a terminal prompt.
type Chooser func(names []string, def int) (int, error)
