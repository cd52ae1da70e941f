package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/git-pkgs/boxes/fetch"
)

// shorthandPattern matches "owner/name" identifiers: exactly one slash,
// no scheme, no file extension.
var shorthandPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*/[A-Za-z0-9][A-Za-z0-9_-]*$`)

// classifyStatic applies the network-free classification rules.
// needsProbe is true when only a remote content-type probe can
// distinguish a metadata document from a direct artifact.
func classifyStatic(raw string, asMetadata bool) (kind SourceKind, needsProbe bool) {
	if asMetadata {
		return SourceMetadata, false
	}

	remote := strings.Contains(raw, "://")

	if !remote && shorthandPattern.MatchString(raw) {
		// A relative path that happens to look like owner/name is
		// still a path if it exists on disk.
		if _, err := os.Stat(raw); err != nil {
			return SourceShorthand, false
		}
	}

	if ext := strings.ToLower(pathExt(raw)); ext == ".json" {
		return SourceMetadata, false
	}

	if !remote {
		if looksLikeJSONFile(raw) {
			return SourceMetadata, false
		}
		return SourceDirect, false
	}

	// Remote URL with a recognizable non-json extension is an artifact.
	if pathExt(raw) != "" {
		return SourceDirect, false
	}
	return SourceDirect, true
}

// Classify determines the kind of a single source string, probing the
// remote content type when the static rules are inconclusive. Probe
// failures fall back to the direct-artifact classification; the fetch
// error surfaces later, during acquisition.
func Classify(ctx context.Context, raw string, asMetadata bool, f fetch.FetcherInterface) Source {
	kind, needsProbe := classifyStatic(raw, asMetadata)
	if needsProbe && f != nil {
		if _, contentType, err := f.Head(ctx, raw); err == nil {
			if strings.Contains(contentType, "json") {
				kind = SourceMetadata
			}
		}
	}
	return Source{Raw: raw, Kind: kind}
}

// pathExt returns the extension of the last path segment, handling both
// URLs (ignoring query strings) and filesystem paths.
func pathExt(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
		return path.Ext(u.Path)
	}
	return path.Ext(raw)
}

// looksLikeJSONFile reports whether a local file starts with a JSON
// object. Box archives are gzip tarballs, so the first byte cleanly
// separates the two.
func looksLikeJSONFile(p string) bool {
	f, err := os.Open(p)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 64)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return false
	}
	trimmed := strings.TrimLeft(string(buf[:n]), " \t\r\n")
	return strings.HasPrefix(trimmed, "{")
}

// ClassifySources classifies every source in spec and enforces the
// single-metadata-source rule: a metadata document (or a shorthand,
// which expands to one) must be the only source given.
func ClassifySources(ctx context.Context, spec BoxSpec, f fetch.FetcherInterface) ([]Source, error) {
	sources := make([]Source, 0, len(spec.Sources))
	for _, raw := range spec.Sources {
		src := Classify(ctx, raw, spec.AsMetadata, f)
		if len(spec.Sources) > 1 && src.Kind != SourceDirect {
			return nil, fmt.Errorf("source %q: %w", raw, ErrMetadataMultiURL)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// ExpandShorthand converts an "owner/name" identifier into the metadata
// document URL on the configured box server and confirms the document
// exists.
func ExpandShorthand(ctx context.Context, shorthand, serverURL string, f fetch.FetcherInterface) (string, error) {
	if serverURL == "" {
		return "", fmt.Errorf("cannot expand %q: %w", shorthand, ErrServerNotSet)
	}

	expanded := strings.TrimSuffix(serverURL, "/") + "/" + shorthand + ".json"

	if _, _, err := f.Head(ctx, expanded); err != nil {
		if errors.Is(err, fetch.ErrNotFound) {
			return "", &ShorthandNotFoundError{Shorthand: shorthand, URL: expanded}
		}
		return "", err
	}
	return expanded, nil
}
