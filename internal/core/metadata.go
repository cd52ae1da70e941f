package core

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/git-pkgs/boxes/client"
)

// Wire structs for the metadata document format.
type wireMetadata struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Versions    []wireVersion `json:"versions"`
}

type wireVersion struct {
	Version   string         `json:"version"`
	Status    string         `json:"status"`
	Providers []wireProvider `json:"providers"`
}

type wireProvider struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	ChecksumType string `json:"checksum_type"`
	Checksum     string `json:"checksum"`
}

// ParseMetadata parses a metadata document. source is used only for
// error reporting.
func ParseMetadata(source string, data []byte) (*Metadata, error) {
	var wire wireMetadata
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &MalformedMetadataError{Source: source, Reason: "invalid JSON", Cause: err}
	}
	if wire.Name == "" {
		return nil, &MalformedMetadataError{Source: source, Reason: "missing required field \"name\""}
	}
	if wire.Versions == nil {
		return nil, &MalformedMetadataError{Source: source, Reason: "missing required field \"versions\""}
	}

	m := &Metadata{
		Name:        wire.Name,
		Description: wire.Description,
		Versions:    make([]VersionEntry, 0, len(wire.Versions)),
	}
	for _, wv := range wire.Versions {
		if wv.Version == "" {
			return nil, &MalformedMetadataError{Source: source, Reason: "version entry missing \"version\""}
		}
		ve := VersionEntry{
			Version:   wv.Version,
			Status:    wv.Status,
			Providers: make([]ProviderEntry, 0, len(wv.Providers)),
		}
		for _, wp := range wv.Providers {
			if wp.Name == "" || wp.URL == "" {
				return nil, &MalformedMetadataError{
					Source: source,
					Reason: fmt.Sprintf("provider entry in version %s missing \"name\" or \"url\"", wv.Version),
				}
			}
			ve.Providers = append(ve.Providers, ProviderEntry{
				Name:         wp.Name,
				URL:          wp.URL,
				ChecksumType: wp.ChecksumType,
				Checksum:     wp.Checksum,
			})
		}
		m.Versions = append(m.Versions, ve)
	}
	return m, nil
}

// FetchMetadata retrieves and parses a metadata document from a local
// path or a remote URL. A single attempt is made; transport failures are
// the caller's to retry.
func FetchMetadata(ctx context.Context, source string, c *client.Client) (*Metadata, error) {
	var data []byte
	var err error

	if strings.Contains(source, "://") {
		data, err = c.Get(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("fetching metadata document: %w", err)
		}
	} else {
		data, err = os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("reading metadata document: %w", err)
		}
	}

	return ParseMetadata(source, data)
}
