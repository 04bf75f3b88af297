package policy

import (
	"math/rand"
	"sort"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"

	"github.com/armadaproject/taskhive/internal/common/taskhiveerrors"
)

const (
	LongTail           = "long_tail"
	RankedPriority     = "ranked_priority"
	RoundRobin         = "round_robin"
	RandomizedPriority = "randomized_priority"
)

var factories = map[string]func() SchedulerPolicy{
	LongTail:       func() SchedulerPolicy { return NewLongTailPolicy() },
	RankedPriority: func() SchedulerPolicy { return NewRankedPriorityPolicy() },
	RoundRobin:     func() SchedulerPolicy { return NewRoundRobinPolicy() },
	RandomizedPriority: func() SchedulerPolicy {
		return NewRandomizedPriorityPolicy(rand.New(rand.NewSource(time.Now().UnixNano())))
	},
}

// New returns the policy registered under name.
func New(name string) (SchedulerPolicy, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, errors.WithStack(&taskhiveerrors.ErrInvalidArgument{
			Name:    "schedulingPolicy",
			Value:   name,
			Message: "unknown scheduling policy",
		})
	}
	return factory(), nil
}

// Names returns the names of all registered policies, sorted.
func Names() []string {
	names := maps.Keys(factories)
	sort.Strings(names)
	return names
}
