// Package store implements the installed-box collection on the local
// filesystem. Boxes live under <root>/boxes/<name>/<version>/<provider>,
// with in-flight work staged under <root>/tmp and renamed into place.
package store

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/git-pkgs/boxes/internal/checksum"
	"github.com/git-pkgs/boxes/internal/core"
)

// Directory and file names within the store root.
const (
	boxesDir = "boxes"
	tmpDir   = "tmp"

	// metadataURLFile records the metadata document a box came from.
	metadataURLFile = "metadata_url"

	// boxMetadataFile is the manifest inside every box archive. It
	// declares the provider when the caller did not.
	boxMetadataFile = "metadata.json"
)

// Store is a filesystem-backed box collection. It is safe for
// concurrent reads; concurrent adds of the same box are the caller's
// responsibility to serialize.
type Store struct {
	root string
}

// NewStore creates a Store rooted at the given directory, creating the
// directory structure if needed.
func NewStore(root string) (*Store, error) {
	for _, dir := range []string{
		root,
		filepath.Join(root, boxesDir),
		filepath.Join(root, tmpDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

// escapeName makes a box name usable as a single directory component.
// Box names routinely contain slashes ("hashicorp/bionic64").
func escapeName(name string) string {
	return url.PathEscape(name)
}

func (s *Store) boxDir(name, version, provider string) string {
	return filepath.Join(s.root, boxesDir, escapeName(name), version, provider)
}

// Find returns the installed box matching name and version and any of
// the given providers, or nil when none is installed. An empty providers
// slice matches any provider.
func (s *Store) Find(name string, providers []string, version string) (*core.Box, error) {
	versionDir := filepath.Join(s.root, boxesDir, escapeName(name), version)
	entries, err := os.ReadDir(versionDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", versionDir, err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		provider := e.Name()
		if len(providers) > 0 && !containsString(providers, provider) {
			continue
		}
		dir := filepath.Join(versionDir, provider)
		return &core.Box{
			Name:        name,
			Version:     version,
			Provider:    provider,
			Directory:   dir,
			MetadataURL: readMetadataURL(dir),
		}, nil
	}
	return nil, nil
}

// Add verifies, unpacks, and installs a box artifact from a local path.
// When opts.Provider is empty the provider is read from the archive's
// own metadata.json. The staging directory is removed on every exit
// path; the final directory appears atomically via rename.
func (s *Store) Add(ctx context.Context, path, name, version string, opts core.AddOptions) (*core.Box, error) {
	if opts.ChecksumType != "" && opts.Checksum != "" {
		if err := checksum.Verify(opts.ChecksumType, path, opts.Checksum); err != nil {
			return nil, err
		}
	}

	staging, err := os.MkdirTemp(filepath.Join(s.root, tmpDir), "box-add-*")
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	if err := unpack(ctx, path, staging); err != nil {
		return nil, err
	}

	provider := opts.Provider
	if provider == "" {
		provider, err = archiveProvider(staging)
		if err != nil {
			return nil, err
		}
	}

	dest := s.boxDir(name, version, provider)
	if _, err := os.Stat(dest); err == nil {
		if !opts.Force {
			return nil, &core.AlreadyExistsError{Name: name, Provider: provider, Version: version}
		}
		if err := os.RemoveAll(dest); err != nil {
			return nil, fmt.Errorf("removing existing box: %w", err)
		}
	}

	if opts.MetadataURL != "" {
		urlPath := filepath.Join(staging, metadataURLFile)
		if err := os.WriteFile(urlPath, []byte(opts.MetadataURL+"\n"), 0o644); err != nil {
			return nil, fmt.Errorf("recording metadata URL: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("creating box directory: %w", err)
	}
	if err := os.Rename(staging, dest); err != nil {
		return nil, fmt.Errorf("installing box: %w", err)
	}

	return &core.Box{
		Name:        name,
		Version:     version,
		Provider:    provider,
		Directory:   dest,
		MetadataURL: opts.MetadataURL,
	}, nil
}

// List enumerates every installed box.
func (s *Store) List() ([]core.Box, error) {
	var boxes []core.Box

	names, err := os.ReadDir(filepath.Join(s.root, boxesDir))
	if err != nil {
		return nil, fmt.Errorf("reading store: %w", err)
	}
	for _, nameEntry := range names {
		if !nameEntry.IsDir() {
			continue
		}
		name, err := url.PathUnescape(nameEntry.Name())
		if err != nil {
			name = nameEntry.Name()
		}
		nameDir := filepath.Join(s.root, boxesDir, nameEntry.Name())
		versions, err := os.ReadDir(nameDir)
		if err != nil {
			return nil, err
		}
		for _, versionEntry := range versions {
			if !versionEntry.IsDir() {
				continue
			}
			versionDir := filepath.Join(nameDir, versionEntry.Name())
			providers, err := os.ReadDir(versionDir)
			if err != nil {
				return nil, err
			}
			for _, providerEntry := range providers {
				if !providerEntry.IsDir() {
					continue
				}
				dir := filepath.Join(versionDir, providerEntry.Name())
				boxes = append(boxes, core.Box{
					Name:        name,
					Version:     versionEntry.Name(),
					Provider:    providerEntry.Name(),
					Directory:   dir,
					MetadataURL: readMetadataURL(dir),
				})
			}
		}
	}
	return boxes, nil
}

// Remove deletes an installed box and prunes empty parent directories.
func (s *Store) Remove(name, provider, version string) error {
	dir := s.boxDir(name, version, provider)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("box %s (%s, %s) is not installed", name, provider, version)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing box: %w", err)
	}
	// Prune version and name directories if now empty.
	for _, parent := range []string{filepath.Dir(dir), filepath.Dir(filepath.Dir(dir))} {
		entries, err := os.ReadDir(parent)
		if err != nil || len(entries) > 0 {
			break
		}
		_ = os.Remove(parent)
	}
	return nil
}

// unpack extracts a gzip-compressed tar archive into dest, refusing
// entries that would escape it.
func unpack(ctx context.Context, archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening box artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("box artifact is not gzip-compressed: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading box archive: %w", err)
		}

		name := filepath.Clean(hdr.Name)
		if !filepath.IsLocal(name) {
			return fmt.Errorf("box archive entry %q escapes the box directory", hdr.Name)
		}
		target := filepath.Join(dest, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("extracting %s: %w", name, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("extracting %s: %w", name, err)
			}
			mode := hdr.FileInfo().Mode().Perm()
			out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
			if err != nil {
				return fmt.Errorf("extracting %s: %w", name, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				_ = out.Close()
				return fmt.Errorf("extracting %s: %w", name, err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("extracting %s: %w", name, err)
			}
		default:
			// Box archives contain plain files and directories only.
		}
	}
	return nil
}

// archiveProvider reads the provider name from the unpacked archive's
// metadata.json manifest.
func archiveProvider(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, boxMetadataFile))
	if err != nil {
		return "", fmt.Errorf("box archive has no %s declaring a provider: %w", boxMetadataFile, err)
	}
	var manifest struct {
		Provider string `json:"provider"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return "", fmt.Errorf("parsing box %s: %w", boxMetadataFile, err)
	}
	if manifest.Provider == "" {
		return "", fmt.Errorf("box %s does not declare a provider", boxMetadataFile)
	}
	return manifest.Provider, nil
}

func readMetadataURL(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, metadataURLFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
