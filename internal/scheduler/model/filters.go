package model

import (
	"math"
	"regexp"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/armadaproject/taskhive/internal/common/taskhiveerrors"
)

// NodeFiltersConfig is the user-facing description of which nodes a job may run on.
type NodeFiltersConfig struct {
	// If non-empty, only these node ids pass.
	Whitelist []string
	// If set, only node ids fully matching this expression pass.
	WhitelistRegex string
	// Node ids that never pass.
	Blacklist []string
	// Node ids fully matching this expression never pass.
	BlacklistRegex string
	// If non-empty, a node must carry at least one of these tags.
	TagWhitelist []string
	// Deterministic pseudo-random fraction of nodes that pass, in [0, 1].
	// Zero is treated as unset. The choice is stable for a given job and node.
	FractionOfNodes float64 `validate:"gte=0,lte=1"`
}

// NodeFilters is the compiled form of NodeFiltersConfig.
type NodeFilters struct {
	whitelist       map[string]bool
	whitelistRegex  *regexp.Regexp
	blacklist       map[string]bool
	blacklistRegex  *regexp.Regexp
	tagWhitelist    []string
	fractionOfNodes float64
}

func NewNodeFilters(config NodeFiltersConfig) (*NodeFilters, error) {
	if config.FractionOfNodes < 0 || config.FractionOfNodes > 1 {
		return nil, errors.WithStack(&taskhiveerrors.ErrInvalidArgument{
			Name:    "fractionOfNodes",
			Value:   config.FractionOfNodes,
			Message: "must be between 0 and 1",
		})
	}
	f := &NodeFilters{
		whitelist:       toSet(config.Whitelist),
		blacklist:       toSet(config.Blacklist),
		tagWhitelist:    config.TagWhitelist,
		fractionOfNodes: config.FractionOfNodes,
	}
	if f.fractionOfNodes == 0 {
		f.fractionOfNodes = 1
	}
	var err error
	if f.whitelistRegex, err = compileFullMatch("whitelistRegex", config.WhitelistRegex); err != nil {
		return nil, err
	}
	if f.blacklistRegex, err = compileFullMatch("blacklistRegex", config.BlacklistRegex); err != nil {
		return nil, err
	}
	return f, nil
}

// DoesPass reports whether node passes every filter. salt makes fraction-based selection differ between jobs.
func (f *NodeFilters) DoesPass(salt string, node *Node) bool {
	if len(f.tagWhitelist) > 0 {
		found := false
		for _, tag := range f.tagWhitelist {
			if node.HasTag(tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return f.DoesPassName(salt, node.Id)
}

// DoesPassName applies every filter except the tag whitelist to a bare node id.
func (f *NodeFilters) DoesPassName(salt string, id string) bool {
	if len(f.whitelist) > 0 && !f.whitelist[id] {
		return false
	}
	if f.whitelistRegex != nil && !f.whitelistRegex.MatchString(id) {
		return false
	}
	if f.blacklist[id] {
		return false
	}
	if f.blacklistRegex != nil && f.blacklistRegex.MatchString(id) {
		return false
	}
	if f.fractionOfNodes < 1 {
		h := xxhash.Sum64String(salt + "\x00" + id)
		if float64(h)/float64(math.MaxUint64) >= f.fractionOfNodes {
			return false
		}
	}
	return true
}

func compileFullMatch(name, expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	re, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		return nil, errors.WithStack(&taskhiveerrors.ErrInvalidArgument{
			Name:    name,
			Value:   expr,
			Message: err.Error(),
		})
	}
	return re, nil
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
