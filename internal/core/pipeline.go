package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/git-pkgs/boxes/client"
	"github.com/git-pkgs/boxes/fetch"
)

// Pipeline resolves a BoxSpec to a single artifact and installs it.
// Stages run strictly in order: classify, expand, fetch metadata,
// resolve, duplicate check, acquire, store add. Acquisition never starts
// before the duplicate check passes, so an already-installed box costs
// no download.
type Pipeline struct {
	Store   BoxStore
	Fetcher fetch.FetcherInterface
	Client  *client.Client
	Choose  Chooser

	// ServerURL is the box server base URL used for shorthand
	// expansion. Empty means shorthands are unusable.
	ServerURL string

	// TempDir holds downloads in flight. Empty means the system
	// default.
	TempDir string

	Logger *slog.Logger
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Run executes the add pipeline and returns the installed box handle.
// Sources are tried in order; the first that yields a usable artifact
// wins. Availability failures (not found, transport) move on to the next
// source, content failures abort immediately.
func (p *Pipeline) Run(ctx context.Context, spec BoxSpec) (*Box, error) {
	if len(spec.Sources) == 0 {
		return nil, errors.New("at least one box source is required")
	}

	// Precondition: a direct artifact carries no inherent name. When no
	// source could possibly resolve to a metadata document, a missing
	// name fails before any fetch is attempted.
	if spec.Name == "" && !metadataPossible(spec) {
		return nil, ErrNameRequired
	}

	sources, err := ClassifySources(ctx, spec, p.Fetcher)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, src := range sources {
		p.logger().Debug("trying box source", "source", src.Raw, "kind", src.Kind.String())
		box, err := p.runSource(ctx, spec, src)
		if err == nil {
			return box, nil
		}
		if sourceUnavailable(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// metadataPossible reports whether any source could still turn out to be
// a metadata document without network I/O having happened yet.
func metadataPossible(spec BoxSpec) bool {
	for _, raw := range spec.Sources {
		kind, needsProbe := classifyStatic(raw, spec.AsMetadata)
		if kind != SourceDirect || needsProbe {
			return true
		}
	}
	return false
}

// sourceUnavailable reports whether an error means this particular
// source could not be reached, as opposed to a content or state error
// that no other source can fix.
func sourceUnavailable(err error) bool {
	var de *fetch.DownloadError
	return errors.Is(err, fetch.ErrNotFound) ||
		errors.Is(err, client.ErrNotFound) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.As(err, &de)
}

func (p *Pipeline) runSource(ctx context.Context, spec BoxSpec, src Source) (*Box, error) {
	log := p.logger().With("source", src.Raw)

	var (
		m           *Metadata
		metadataURL string
		err         error
	)

	switch src.Kind {
	case SourceShorthand:
		metadataURL, err = ExpandShorthand(ctx, src.Raw, p.ServerURL, p.Fetcher)
		if err != nil {
			return nil, err
		}
		log.Debug("shorthand expanded", "url", metadataURL)
		m, err = FetchMetadata(ctx, metadataURL, p.Client)
		if err != nil {
			return nil, err
		}

	case SourceMetadata:
		metadataURL = src.Raw
		m, err = FetchMetadata(ctx, metadataURL, p.Client)
		if err != nil {
			return nil, err
		}

	case SourceDirect:
		if spec.Name == "" {
			return nil, ErrNameRequired
		}
		m = SyntheticMetadata(spec.Name, src.Raw)
	}

	if src.Kind != SourceDirect && spec.Name != "" && spec.Name != m.Name {
		return nil, &NameMismatchError{Requested: spec.Name, Declared: m.Name}
	}

	ve, pe, err := Resolve(m, spec.VersionConstraint, spec.Providers, p.Choose)
	if err != nil {
		return nil, err
	}

	resolved := ResolvedBox{
		Path:         pe.URL,
		Name:         m.Name,
		Version:      ve.Version,
		Provider:     pe.Name,
		ChecksumType: pe.ChecksumType,
		Checksum:     pe.Checksum,
		MetadataURL:  metadataURL,
		Force:        spec.Force,
	}
	log.Info("box resolved", "name", resolved.Name, "version", resolved.Version, "provider", resolved.Provider)

	if err := p.checkDuplicate(spec, resolved); err != nil {
		return nil, err
	}

	return p.acquire(ctx, resolved)
}

// checkDuplicate asks the store whether the resolved box is already
// installed. The provider set queried is the caller's full provider
// constraint when given, otherwise the single resolved provider.
func (p *Pipeline) checkDuplicate(spec BoxSpec, resolved ResolvedBox) error {
	providers := spec.Providers
	if len(providers) == 0 && resolved.Provider != "" {
		providers = []string{resolved.Provider}
	}

	existing, err := p.Store.Find(resolved.Name, providers, resolved.Version)
	if err != nil {
		return fmt.Errorf("checking for installed box: %w", err)
	}
	if existing == nil {
		return nil
	}
	if !spec.Force {
		return &AlreadyExistsError{
			Name:     existing.Name,
			Provider: existing.Provider,
			Version:  existing.Version,
		}
	}
	p.logger().Info("replacing installed box",
		"name", existing.Name, "version", existing.Version, "provider", existing.Provider)
	return nil
}

// acquire obtains a local copy of the resolved artifact and hands it to
// the store. Remote artifacts are fully downloaded to a temp file first;
// the temp file is removed on every exit path.
func (p *Pipeline) acquire(ctx context.Context, resolved ResolvedBox) (*Box, error) {
	path := resolved.Path

	if strings.Contains(path, "://") {
		local, cleanup, err := fetch.DownloadTemp(ctx, p.Fetcher, path, p.TempDir)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		p.logger().Debug("box downloaded", "url", path, "tmp", local)
		path = local
	}

	box, err := p.Store.Add(ctx, path, resolved.Name, resolved.Version, AddOptions{
		Provider:     resolved.Provider,
		Force:        resolved.Force,
		MetadataURL:  resolved.MetadataURL,
		ChecksumType: resolved.ChecksumType,
		Checksum:     resolved.Checksum,
	})
	if err != nil {
		return nil, err
	}
	p.logger().Info("box installed",
		"name", box.Name, "version", box.Version, "provider", box.Provider, "dir", box.Directory)
	return box, nil
}
