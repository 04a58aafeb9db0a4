// Package rules resolves the application-rules catalog produced by the
// (external) rules loader into concrete, per-host-set ProcessRules and
// ApplicationRules records. It owns address-pattern resolution ("*", "#",
// and explicit lists) and the loading-percentage clamp (spec §6); it does
// not parse any particular file format itself — see XMLLoader for the one
// bundled loader implementation.
package rules

import (
	"sort"

	"github.com/cuemby/conclave/pkg/types"
)

// Loader is the contract the (external, out-of-scope) application-rules
// source implements. The core only ever consumes a Catalog.
type Loader interface {
	Load() (*Catalog, error)
}

// ProcessEntry is one process's raw rule record, prior to address
// resolution against cluster membership.
type ProcessEntry struct {
	Name  string
	Rules types.ProcessRules
}

// ApplicationEntry groups an application's own rules with its member
// process entries, in the order the loader produced them.
type ApplicationEntry struct {
	Name      string
	Rules     types.ApplicationRules
	Processes []ProcessEntry
}

// Catalog is the fully-loaded, address-unresolved rules set.
type Catalog struct {
	Applications map[string]*ApplicationEntry
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{Applications: make(map[string]*ApplicationEntry)}
}

// ApplicationNames returns application names in lexical order.
func (c *Catalog) ApplicationNames() []string {
	names := make([]string, 0, len(c.Applications))
	for name := range c.Applications {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClampLoading clamps an expected-loading percentage to the documented
// 1..100 range (spec §6), defaulting non-positive values to 1.
func ClampLoading(pct int) int {
	switch {
	case pct < 1:
		return 1
	case pct > 100:
		return 100
	default:
		return pct
	}
}

// ResolveAddresses expands a process's raw Addresses pattern against the
// current set of known host names (sorted lexically, the same order the
// Context uses for master election and tie-breaks):
//
//   - ["*"]: every known host.
//   - ["#"]: the single host at this process's HomogeneousIndex position
//     in the sorted host list (spec §6's "host index" pattern) — absent
//     if the index is out of range.
//   - anything else: the explicit list, filtered to hosts that are
//     actually known, preserving the rule file's order.
func ResolveAddresses(procRules types.ProcessRules, knownHosts []string) []string {
	sorted := append([]string(nil), knownHosts...)
	sort.Strings(sorted)

	if len(procRules.Addresses) == 1 {
		switch procRules.Addresses[0] {
		case "*":
			return sorted
		case "#":
			idx := procRules.HomogeneousIndex
			if idx < 0 || idx >= len(sorted) {
				return nil
			}
			return []string{sorted[idx]}
		}
	}

	known := make(map[string]bool, len(sorted))
	for _, h := range sorted {
		known[h] = true
	}
	var out []string
	for _, addr := range procRules.Addresses {
		if known[addr] {
			out = append(out, addr)
		}
	}
	return out
}
