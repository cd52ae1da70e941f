package core

import (
	"fmt"
	"sort"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// DirectVersion is the fixed version token assigned to a direct artifact
// source with no metadata of its own.
const DirectVersion = "0"

// SyntheticMetadata builds the single-version, single-provider document
// used when a source names the artifact directly.
func SyntheticMetadata(name, url string) *Metadata {
	return &Metadata{
		Name: name,
		Versions: []VersionEntry{{
			Version:   DirectVersion,
			Providers: []ProviderEntry{{URL: url}},
		}},
	}
}

type candidate struct {
	parsed    *goversion.Version
	entry     *VersionEntry
	providers []ProviderEntry
}

// Resolve selects the version and provider to install from a metadata
// document. Versions are filtered by the version constraint, providers
// by the provider constraint; the highest surviving version wins. When
// several providers survive within that version, choose is invoked with
// their names in document order.
func Resolve(m *Metadata, versionConstraint string, providerConstraint []string, choose Chooser) (*VersionEntry, *ProviderEntry, error) {
	var constraints goversion.Constraints
	if versionConstraint != "" {
		var err error
		constraints, err = goversion.NewConstraint(versionConstraint)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing version constraint %q: %w", versionConstraint, err)
		}
	}

	var (
		candidates []candidate
		eliminated []candidate // matched the version constraint, lost all providers
		available  []string
	)

	for i := range m.Versions {
		ve := &m.Versions[i]
		available = append(available, ve.Version)

		parsed, err := goversion.NewVersion(ve.Version)
		if err != nil {
			return nil, nil, &MalformedMetadataError{
				Source: m.Name,
				Reason: fmt.Sprintf("unparseable version %q", ve.Version),
				Cause:  err,
			}
		}
		if constraints != nil && !constraints.Check(parsed) {
			continue
		}

		// A version with no providers at all has nothing to install
		// and does not count toward either error.
		if len(ve.Providers) == 0 {
			continue
		}

		matched := filterProviders(ve.Providers, providerConstraint)
		c := candidate{parsed: parsed, entry: ve, providers: matched}
		if len(matched) == 0 {
			eliminated = append(eliminated, c)
			continue
		}
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		if len(eliminated) > 0 {
			sort.Slice(eliminated, func(i, j int) bool {
				return eliminated[i].parsed.GreaterThan(eliminated[j].parsed)
			})
			top := eliminated[0]
			return nil, nil, &NoMatchingProviderError{
				Version:   top.entry.Version,
				Requested: providerConstraint,
				Available: providerNames(top.entry.Providers),
			}
		}
		return nil, nil, &NoMatchingVersionError{
			Constraint: versionConstraint,
			Available:  available,
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].parsed.GreaterThan(candidates[j].parsed)
	})
	best := candidates[0]

	if len(best.providers) == 1 {
		return best.entry, &best.providers[0], nil
	}

	names := providerNames(best.providers)
	if choose == nil {
		return nil, nil, fmt.Errorf("version %s is available from multiple providers (%s); specify one",
			best.entry.Version, strings.Join(names, ", "))
	}
	idx, err := choose(names, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("choosing provider: %w", err)
	}
	if idx < 1 || idx > len(best.providers) {
		return nil, nil, fmt.Errorf("provider choice %d out of range 1-%d", idx, len(best.providers))
	}
	return best.entry, &best.providers[idx-1], nil
}

func filterProviders(providers []ProviderEntry, constraint []string) []ProviderEntry {
	if len(constraint) == 0 {
		return providers
	}
	var matched []ProviderEntry
	for _, p := range providers {
		for _, want := range constraint {
			if p.Name == want {
				matched = append(matched, p)
				break
			}
		}
	}
	return matched
}

func providerNames(providers []ProviderEntry) []string {
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name
	}
	return names
}
