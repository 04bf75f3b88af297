package model

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"k8s.io/apimachinery/pkg/api/resource"
)

// Resources maps a resource kind (e.g. "cpu", "slots") to an integral amount.
type Resources map[string]int64

// ParseResources converts configured quantities into Resources, rounding fractional quantities up.
// Negative amounts are rejected.
func ParseResources(quantities map[string]resource.Quantity) (Resources, error) {
	rv := make(Resources, len(quantities))
	for name, q := range quantities {
		if q.Sign() < 0 {
			return nil, errors.Errorf("resource %s has negative amount %s", name, q.String())
		}
		rv[name] = q.Value()
	}
	return rv, nil
}

func (r Resources) DeepCopy() Resources {
	if r == nil {
		return nil
	}
	rv := make(Resources, len(r))
	for k, v := range r {
		rv[k] = v
	}
	return rv
}

// Add adds b to r in place.
func (r Resources) Add(b Resources) {
	for k, v := range b {
		r[k] += v
	}
}

func (r Resources) String() string {
	keys := maps.Keys(r)
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strconv.FormatInt(r[k], 10))
	}
	return strings.Join(parts, ", ")
}
