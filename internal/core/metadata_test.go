package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/git-pkgs/boxes/client"
)

const sampleDocument = `{
	"name": "hashicorp/bionic64",
	"description": "Ubuntu 18.04 base image",
	"versions": [
		{
			"version": "1.0.282",
			"status": "active",
			"providers": [
				{
					"name": "virtualbox",
					"url": "https://example.com/bionic64-1.0.282-virtualbox.box",
					"checksum_type": "sha256",
					"checksum": "a0b1c2"
				},
				{
					"name": "vmware_desktop",
					"url": "https://example.com/bionic64-1.0.282-vmware.box"
				}
			]
		},
		{
			"version": "1.0.281",
			"providers": []
		}
	]
}`

func TestParseMetadata(t *testing.T) {
	m, err := ParseMetadata("test", []byte(sampleDocument))
	if err != nil {
		t.Fatalf("ParseMetadata failed: %v", err)
	}

	if m.Name != "hashicorp/bionic64" {
		t.Errorf("Name = %q", m.Name)
	}
	if m.Description != "Ubuntu 18.04 base image" {
		t.Errorf("Description = %q", m.Description)
	}
	if len(m.Versions) != 2 {
		t.Fatalf("got %d versions, want 2", len(m.Versions))
	}

	v := m.Versions[0]
	if v.Version != "1.0.282" || v.Status != "active" {
		t.Errorf("version entry = %+v", v)
	}
	if len(v.Providers) != 2 {
		t.Fatalf("got %d providers, want 2", len(v.Providers))
	}
	if v.Providers[0].Name != "virtualbox" || v.Providers[0].ChecksumType != "sha256" {
		t.Errorf("provider entry = %+v", v.Providers[0])
	}
	if v.Providers[1].Checksum != "" {
		t.Errorf("checksum should be optional, got %q", v.Providers[1].Checksum)
	}

	if len(m.Versions[1].Providers) != 0 {
		t.Errorf("expected empty providers for 1.0.281")
	}
}

func TestParseMetadataMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"invalid JSON", `{"name": "x", "versions": [`},
		{"missing name", `{"versions": []}`},
		{"missing versions", `{"name": "x"}`},
		{"version entry without version", `{"name": "x", "versions": [{"providers": []}]}`},
		{"provider without url", `{"name": "x", "versions": [{"version": "1.0", "providers": [{"name": "virtualbox"}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMetadata("test", []byte(tt.doc))
			if !errors.Is(err, ErrMalformedMetadata) {
				t.Errorf("err = %v, want ErrMalformedMetadata", err)
			}
		})
	}
}

func TestParseMetadataEmptyVersionsList(t *testing.T) {
	// An empty (but present) versions array is well-formed; resolution
	// later fails with a constraint error instead.
	m, err := ParseMetadata("test", []byte(`{"name": "x", "versions": []}`))
	if err != nil {
		t.Fatalf("ParseMetadata failed: %v", err)
	}
	if len(m.Versions) != 0 {
		t.Errorf("got %d versions", len(m.Versions))
	}
}

func TestFetchMetadataRemote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleDocument))
	}))
	defer server.Close()

	m, err := FetchMetadata(context.Background(), server.URL+"/bionic64.json", client.DefaultClient())
	if err != nil {
		t.Fatalf("FetchMetadata failed: %v", err)
	}
	if m.Name != "hashicorp/bionic64" {
		t.Errorf("Name = %q", m.Name)
	}
}

func TestFetchMetadataRemoteNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := FetchMetadata(context.Background(), server.URL+"/missing.json", client.DefaultClient())
	if !errors.Is(err, client.ErrNotFound) {
		t.Errorf("err = %v, want client.ErrNotFound", err)
	}
}

func TestFetchMetadataLocal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bionic64.json")
	if err := os.WriteFile(path, []byte(sampleDocument), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := FetchMetadata(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("FetchMetadata failed: %v", err)
	}
	if m.Name != "hashicorp/bionic64" {
		t.Errorf("Name = %q", m.Name)
	}
}

func TestFetchMetadataLocalMissing(t *testing.T) {
	_, err := FetchMetadata(context.Background(), filepath.Join(t.TempDir(), "nope.json"), nil)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want os.ErrNotExist", err)
	}
}
