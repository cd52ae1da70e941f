package store

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/git-pkgs/boxes/internal/checksum"
	"github.com/git-pkgs/boxes/internal/core"
)

// writeBoxArchive builds a gzip tarball on disk and returns its path.
func writeBoxArchive(t *testing.T, files map[string]string) string {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "test.box")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func defaultArchive(t *testing.T) string {
	t.Helper()
	return writeBoxArchive(t, map[string]string{
		"metadata.json": `{"provider": "virtualbox"}`,
		"box.ovf":       "<ovf/>",
	})
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAddAndFind(t *testing.T) {
	s := newTestStore(t)
	archive := defaultArchive(t)

	box, err := s.Add(context.Background(), archive, "hashicorp/bionic64", "0.7", core.AddOptions{
		Provider:    "virtualbox",
		MetadataURL: "https://boxes.example.com/hashicorp/bionic64.json",
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if box.Name != "hashicorp/bionic64" || box.Version != "0.7" || box.Provider != "virtualbox" {
		t.Errorf("box = %+v", box)
	}

	// Unpacked contents are in place.
	if _, err := os.Stat(filepath.Join(box.Directory, "box.ovf")); err != nil {
		t.Errorf("box.ovf missing: %v", err)
	}

	found, err := s.Find("hashicorp/bionic64", []string{"virtualbox"}, "0.7")
	if err != nil {
		t.Fatal(err)
	}
	if found == nil {
		t.Fatal("Find returned nil for installed box")
	}
	if found.MetadataURL != "https://boxes.example.com/hashicorp/bionic64.json" {
		t.Errorf("MetadataURL = %q", found.MetadataURL)
	}
}

func TestFindMissing(t *testing.T) {
	s := newTestStore(t)

	box, err := s.Find("nobody/nothing", nil, "1.0")
	if err != nil {
		t.Fatal(err)
	}
	if box != nil {
		t.Errorf("Find = %+v, want nil", box)
	}
}

func TestFindProviderFilter(t *testing.T) {
	s := newTestStore(t)
	archive := defaultArchive(t)

	if _, err := s.Add(context.Background(), archive, "foo", "1.0", core.AddOptions{Provider: "virtualbox"}); err != nil {
		t.Fatal(err)
	}

	box, err := s.Find("foo", []string{"vmware"}, "1.0")
	if err != nil {
		t.Fatal(err)
	}
	if box != nil {
		t.Errorf("vmware lookup found %+v", box)
	}

	// Empty providers matches any.
	box, err = s.Find("foo", nil, "1.0")
	if err != nil {
		t.Fatal(err)
	}
	if box == nil || box.Provider != "virtualbox" {
		t.Errorf("any-provider lookup = %+v", box)
	}
}

func TestAddProviderFromArchive(t *testing.T) {
	s := newTestStore(t)
	archive := writeBoxArchive(t, map[string]string{
		"metadata.json": `{"provider": "libvirt"}`,
	})

	box, err := s.Add(context.Background(), archive, "foo", "0", core.AddOptions{})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if box.Provider != "libvirt" {
		t.Errorf("Provider = %q, want libvirt", box.Provider)
	}
}

func TestAddNoProviderAnywhere(t *testing.T) {
	s := newTestStore(t)
	archive := writeBoxArchive(t, map[string]string{
		"box.ovf": "<ovf/>",
	})

	if _, err := s.Add(context.Background(), archive, "foo", "0", core.AddOptions{}); err == nil {
		t.Fatal("expected error for archive without a provider")
	}
}

func TestAddDuplicate(t *testing.T) {
	s := newTestStore(t)
	archive := defaultArchive(t)

	opts := core.AddOptions{Provider: "virtualbox"}
	if _, err := s.Add(context.Background(), archive, "foo", "1.0", opts); err != nil {
		t.Fatal(err)
	}

	_, err := s.Add(context.Background(), archive, "foo", "1.0", opts)
	if !errors.Is(err, core.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}

	// Force replaces the existing install.
	opts.Force = true
	if _, err := s.Add(context.Background(), archive, "foo", "1.0", opts); err != nil {
		t.Fatalf("forced Add failed: %v", err)
	}
}

func TestAddChecksum(t *testing.T) {
	s := newTestStore(t)
	archive := defaultArchive(t)

	digest, err := checksum.File("sha256", archive)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Add(context.Background(), archive, "foo", "1.0", core.AddOptions{
		Provider:     "virtualbox",
		ChecksumType: "sha256",
		Checksum:     digest,
	}); err != nil {
		t.Fatalf("Add with matching checksum failed: %v", err)
	}

	_, err = s.Add(context.Background(), archive, "bar", "1.0", core.AddOptions{
		Provider:     "virtualbox",
		ChecksumType: "sha256",
		Checksum:     "0000000000000000000000000000000000000000000000000000000000000000",
	})
	var mismatch *checksum.MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("err = %v, want MismatchError", err)
	}
}

func TestAddNotAnArchive(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(t.TempDir(), "plain.box")
	if err := os.WriteFile(path, []byte("not a tarball"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Add(context.Background(), path, "foo", "0", core.AddOptions{Provider: "virtualbox"}); err == nil {
		t.Fatal("expected error for non-gzip artifact")
	}

	// The failed add leaves no staging debris behind.
	entries, err := os.ReadDir(filepath.Join(s.root, tmpDir))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("staging dir has %d leftover entries", len(entries))
	}
}

func TestAddRejectsTraversal(t *testing.T) {
	s := newTestStore(t)
	archive := writeBoxArchive(t, map[string]string{
		"../escape": "oops",
	})

	if _, err := s.Add(context.Background(), archive, "foo", "0", core.AddOptions{Provider: "virtualbox"}); err == nil {
		t.Fatal("expected error for path traversal entry")
	}
}

func TestListAndRemove(t *testing.T) {
	s := newTestStore(t)
	archive := defaultArchive(t)

	for _, add := range []struct{ name, version, provider string }{
		{"hashicorp/bionic64", "0.7", "virtualbox"},
		{"hashicorp/bionic64", "1.0", "vmware"},
		{"plain", "0", "virtualbox"},
	} {
		if _, err := s.Add(context.Background(), archive, add.name, add.version, core.AddOptions{Provider: add.provider}); err != nil {
			t.Fatal(err)
		}
	}

	boxes, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(boxes) != 3 {
		t.Fatalf("List returned %d boxes, want 3", len(boxes))
	}

	// Names with slashes round-trip through the directory escaping.
	seen := map[string]bool{}
	for _, b := range boxes {
		seen[b.Name] = true
	}
	if !seen["hashicorp/bionic64"] || !seen["plain"] {
		t.Errorf("List names = %v", seen)
	}

	if err := s.Remove("hashicorp/bionic64", "virtualbox", "0.7"); err != nil {
		t.Fatal(err)
	}
	boxes, err = s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(boxes) != 2 {
		t.Errorf("List after Remove returned %d boxes, want 2", len(boxes))
	}

	if err := s.Remove("hashicorp/bionic64", "virtualbox", "0.7"); err == nil {
		t.Error("expected error removing a box twice")
	}
}

func TestRemovePrunesEmptyParents(t *testing.T) {
	s := newTestStore(t)
	archive := defaultArchive(t)

	if _, err := s.Add(context.Background(), archive, "solo", "1.0", core.AddOptions{Provider: "virtualbox"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove("solo", "virtualbox", "1.0"); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(s.root, boxesDir, "solo")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("name directory survived prune: %v", err)
	}
}
