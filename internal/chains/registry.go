package chains

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Filter narrows ListChains. Empty fields match everything.
type Filter struct {
	Kinds   []ExplorerKind
	Names   []string
	Testnet *bool
}

func (f *Filter) matches(d Descriptor) bool {
	if f == nil {
		return true
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, d.ExplorerKind) {
		return false
	}
	if len(f.Names) > 0 && !slices.ContainsFunc(f.Names, func(n string) bool { return strings.EqualFold(n, d.Name) }) {
		return false
	}
	if f.Testnet != nil && *f.Testnet != d.Testnet {
		return false
	}
	return true
}

// Registry is the read-only catalog of chains. It is built once and never
// mutated afterwards, so concurrent reads need no locking.
type Registry struct {
	byID   map[uint64]Descriptor
	byName map[string]uint64
	sorted []Descriptor
}

// NewRegistry validates descriptors and builds a registry. Missing chain ids,
// duplicate chain ids or duplicate names yield a *ConfigError wrapping the
// sentinel of every kind of problem found.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{
		byID:   make(map[uint64]Descriptor, len(descs)),
		byName: make(map[string]uint64, len(descs)),
	}

	var (
		problems []string
		causes   []error
	)
	fail := func(cause error, problem string) {
		problems = append(problems, problem)
		if !slices.Contains(causes, cause) {
			causes = append(causes, cause)
		}
	}
	for _, d := range descs {
		if d.ChainID == 0 {
			fail(ErrMissingChainID, fmt.Sprintf("%s: chain id is required", d.Name))
			continue
		}
		if d.Name == "" {
			d.Name = strconv.FormatUint(d.ChainID, 10)
		}
		if existing, ok := r.byID[d.ChainID]; ok {
			fail(ErrDuplicateChainID, fmt.Sprintf("chain id %d used by both %s and %s", d.ChainID, existing.Name, d.Name))
			continue
		}
		key := strings.ToLower(d.Name)
		if _, ok := r.byName[key]; ok {
			fail(ErrDuplicateName, fmt.Sprintf("network name %s is defined twice", d.Name))
			continue
		}
		if d.Confirmations == 0 {
			d.Confirmations = DefaultConfirmations
		}
		r.byID[d.ChainID] = d
		r.byName[key] = d.ChainID
		r.sorted = append(r.sorted, d)
	}
	if len(problems) > 0 {
		return nil, &ConfigError{Problems: problems, Err: errors.Join(causes...)}
	}

	sort.Slice(r.sorted, func(i, j int) bool { return r.sorted[i].ChainID < r.sorted[j].ChainID })
	return r, nil
}

// Len returns the number of chains in the registry
func (r *Registry) Len() int {
	return len(r.sorted)
}

// List returns the chains matching filter, ordered by chain id. A nil filter returns all.
func (r *Registry) List(filter *Filter) []Descriptor {
	out := make([]Descriptor, 0, len(r.sorted))
	for _, d := range r.sorted {
		if filter.matches(d) {
			out = append(out, d)
		}
	}
	return out
}

// Resolve looks up a chain by id
func (r *Registry) Resolve(chainID uint64) (Descriptor, error) {
	d, ok := r.byID[chainID]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %d", ErrNotFound, chainID)
	}
	return d, nil
}

// ResolveName looks up a chain by network name (case-insensitive)
func (r *Registry) ResolveName(name string) (Descriptor, error) {
	id, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return r.byID[id], nil
}

// ParseTargets turns user tokens (network names or numeric chain ids) into chain ids
func (r *Registry) ParseTargets(tokens []string) ([]uint64, error) {
	ids := make([]uint64, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if id, err := strconv.ParseUint(tok, 10, 64); err == nil {
			ids = append(ids, id)
			continue
		}
		d, err := r.ResolveName(tok)
		if err != nil {
			return nil, err
		}
		ids = append(ids, d.ChainID)
	}
	return ids, nil
}

// Select resolves the chains of a run. Unknown ids and chains missing a
// required endpoint are all reported together in one *ConfigError.
// Repeated ids are collapsed.
func (r *Registry) Select(chainIDs []uint64) ([]Descriptor, error) {
	if len(chainIDs) == 0 {
		return nil, &ConfigError{Problems: []string{"no target chains"}, Err: ErrEmptySelection}
	}

	seen := make(map[uint64]bool, len(chainIDs))
	var (
		selected []Descriptor
		problems []string
		cause    error
	)
	for _, id := range chainIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		d, ok := r.byID[id]
		if !ok {
			problems = append(problems, fmt.Sprintf("chain %d is not configured", id))
			cause = ErrNotFound
			continue
		}
		if missing := d.missingFields(); len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("%s: missing %s", d, strings.Join(missing, ", ")))
			if cause == nil {
				cause = ErrMissingEndpoint
			}
			continue
		}
		selected = append(selected, d)
	}
	if len(problems) > 0 {
		return nil, &ConfigError{Problems: problems, Err: cause}
	}

	sort.Slice(selected, func(i, j int) bool { return selected[i].ChainID < selected[j].ChainID })
	return selected, nil
}
