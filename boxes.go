// Package boxes resolves a box specification — a name, one or more
// sources, an optional version constraint, and an optional provider
// constraint — into exactly one downloadable artifact, and installs it
// into a box store.
//
// Basic usage:
//
//	import (
//		"context"
//		"github.com/git-pkgs/boxes"
//		"github.com/git-pkgs/boxes/store"
//	)
//
//	st, err := store.NewStore("/var/lib/boxes")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	box, err := boxes.Add(context.Background(), st, boxes.BoxSpec{
//		Name:              "hashicorp/bionic64",
//		Sources:           []string{"https://boxes.example.com/hashicorp/bionic64.json"},
//		VersionConstraint: "~> 1.0",
//	}, boxes.WithServerURL("https://boxes.example.com"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(box.Name, box.Version, box.Provider)
//
// Sources may be direct artifact URLs or paths, metadata document URLs
// or paths, or "owner/name" shorthands expanded against the configured
// box server. PURL-form references are also supported:
//
//	box, err := boxes.AddFromRef(ctx, st, "pkg:box/hashicorp/bionic64@1.0.282?provider=virtualbox")
package boxes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/git-pkgs/purl"

	"github.com/git-pkgs/boxes/client"
	"github.com/git-pkgs/boxes/fetch"
	"github.com/git-pkgs/boxes/internal/core"
)

// Re-export types from internal/core
type (
	// BoxSpec describes the box a caller wants installed.
	BoxSpec = core.BoxSpec

	// Metadata is a parsed box metadata document.
	Metadata = core.Metadata

	// VersionEntry is one version listed in a metadata document.
	VersionEntry = core.VersionEntry

	// ProviderEntry is one provider-specific artifact within a version.
	ProviderEntry = core.ProviderEntry

	// ResolvedBox is the single concrete artifact selected by resolution.
	ResolvedBox = core.ResolvedBox

	// Box is a handle to an installed box.
	Box = core.Box

	// AddOptions carries optional parameters for BoxStore.Add.
	AddOptions = core.AddOptions

	// BoxStore is the installed-box collection artifacts are handed to.
	BoxStore = core.BoxStore

	// Chooser disambiguates between multiple matching providers.
	Chooser = core.Chooser

	// SourceKind classifies a box source string.
	SourceKind = core.SourceKind
)

// Re-export constants
const (
	SourceDirect    = core.SourceDirect
	SourceMetadata  = core.SourceMetadata
	SourceShorthand = core.SourceShorthand

	// DirectVersion is the version assigned to direct artifact sources.
	DirectVersion = core.DirectVersion
)

// Re-export errors
var (
	ErrNameRequired       = core.ErrNameRequired
	ErrServerNotSet       = core.ErrServerNotSet
	ErrShorthandNotFound  = core.ErrShorthandNotFound
	ErrMetadataMultiURL   = core.ErrMetadataMultiURL
	ErrNameMismatch       = core.ErrNameMismatch
	ErrNoMatchingVersion  = core.ErrNoMatchingVersion
	ErrNoMatchingProvider = core.ErrNoMatchingProvider
	ErrAlreadyExists      = core.ErrAlreadyExists
	ErrMalformedMetadata  = core.ErrMalformedMetadata
)

// Error types
type (
	NameMismatchError       = core.NameMismatchError
	NoMatchingVersionError  = core.NoMatchingVersionError
	NoMatchingProviderError = core.NoMatchingProviderError
	AlreadyExistsError      = core.AlreadyExistsError
	ShorthandNotFoundError  = core.ShorthandNotFoundError
	MalformedMetadataError  = core.MalformedMetadataError
	DownloadError           = fetch.DownloadError
)

// Option configures the add pipeline.
type Option func(*core.Pipeline)

// WithFetcher sets the artifact fetcher. Defaults to fetch.NewFetcher().
func WithFetcher(f fetch.FetcherInterface) Option {
	return func(p *core.Pipeline) {
		p.Fetcher = f
	}
}

// WithClient sets the metadata document client. Defaults to
// client.DefaultClient().
func WithClient(c *client.Client) Option {
	return func(p *core.Pipeline) {
		p.Client = c
	}
}

// WithChooser sets the provider disambiguation capability. Without one,
// resolution fails when multiple providers match.
func WithChooser(ch Chooser) Option {
	return func(p *core.Pipeline) {
		p.Choose = ch
	}
}

// WithServerURL sets the box server base URL for shorthand expansion.
func WithServerURL(url string) Option {
	return func(p *core.Pipeline) {
		p.ServerURL = url
	}
}

// WithTempDir sets the directory downloads are staged in.
func WithTempDir(dir string) Option {
	return func(p *core.Pipeline) {
		p.TempDir = dir
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *core.Pipeline) {
		p.Logger = l
	}
}

// Add resolves spec and installs the selected box artifact into st.
func Add(ctx context.Context, st BoxStore, spec BoxSpec, opts ...Option) (*Box, error) {
	p := &core.Pipeline{
		Store:   st,
		Fetcher: fetch.NewFetcher(),
		Client:  client.DefaultClient(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p.Run(ctx, spec)
}

// ParseBoxRef parses a PURL-form box reference such as
// "pkg:box/hashicorp/bionic64@1.0.282?provider=virtualbox" into a
// BoxSpec. An exact version pins the version constraint; the
// repository_url qualifier overrides the configured box server and is
// returned separately.
func ParseBoxRef(ref string) (BoxSpec, string, error) {
	p, err := purl.Parse(ref)
	if err != nil {
		return BoxSpec{}, "", fmt.Errorf("parsing box reference: %w", err)
	}
	if p.Type != "box" {
		return BoxSpec{}, "", fmt.Errorf("box reference must have type \"box\", got %q", p.Type)
	}
	if p.Namespace == "" {
		return BoxSpec{}, "", fmt.Errorf("box reference %q needs the owner/name form", ref)
	}

	name := p.Namespace + "/" + p.Name
	spec := BoxSpec{
		Name:    name,
		Sources: []string{name},
	}
	if p.Version != "" {
		spec.VersionConstraint = "= " + p.Version
	}

	qualifiers := p.Qualifiers.Map()
	if provider := qualifiers["provider"]; provider != "" {
		spec.Providers = []string{provider}
	}
	return spec, qualifiers["repository_url"], nil
}

// AddFromRef resolves and installs a box from a PURL-form reference.
func AddFromRef(ctx context.Context, st BoxStore, ref string, opts ...Option) (*Box, error) {
	spec, serverURL, err := ParseBoxRef(ref)
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		opts = append(opts, WithServerURL(serverURL))
	}
	return Add(ctx, st, spec, opts...)
}
