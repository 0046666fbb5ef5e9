package command

import (
	"context"

	"github.com/cratery/cratery/internal/domain/crate"
)

// DependencyResolver answers Publish's step-1 question: is a declared
// dependency known to this registry, or to the configured upstream
// allow-list?
type DependencyResolver struct {
	Crates   crate.Repository
	Upstream map[string]struct{} // normalized names allow-listed from the configured upstream registry
}

// NewDependencyResolver constructs a resolver from a static upstream
// allow-list, e.g. loaded once at startup from configuration.
func NewDependencyResolver(crates crate.Repository, upstreamAllowList []string) *DependencyResolver {
	allowed := make(map[string]struct{}, len(upstreamAllowList))
	for _, name := range upstreamAllowList {
		allowed[crate.NormalizeName(name)] = struct{}{}
	}

	return &DependencyResolver{Crates: crates, Upstream: allowed}
}

// DependencyExists implements ResolvedDependencyChecker.
func (r *DependencyResolver) DependencyExists(ctx context.Context, name string) (bool, error) {
	normalized := crate.NormalizeName(name)

	if _, ok := r.Upstream[normalized]; ok {
		return true, nil
	}

	c, err := r.Crates.FindByNormalizedName(ctx, normalized)
	if err != nil {
		return false, err
	}

	return c != nil, nil
}
