package configuration

import (
	"github.com/pkg/errors"

	"github.com/armadaproject/taskhive/internal/common/taskhiveerrors"
	"github.com/armadaproject/taskhive/internal/scheduler/model"
)

// BuildJobs converts the enabled configured jobs into their scheduler representation, compiling node filters.
func (c Configuration) BuildJobs() ([]*model.Job, error) {
	jobs := make([]*model.Job, 0, len(c.Jobs))
	seen := map[string]bool{}
	for _, jobConfig := range c.Jobs {
		if seen[jobConfig.Id] {
			return nil, errors.WithStack(&taskhiveerrors.ErrAlreadyExists{Type: "job", Value: jobConfig.Id})
		}
		seen[jobConfig.Id] = true
		if jobConfig.Disabled {
			continue
		}
		resources, err := model.ParseResources(jobConfig.Resources)
		if err != nil {
			return nil, errors.WithMessagef(err, "job %s", jobConfig.Id)
		}
		filters, err := model.NewNodeFilters(jobConfig.Filters)
		if err != nil {
			return nil, errors.WithMessagef(err, "job %s", jobConfig.Id)
		}
		jobs = append(jobs, &model.Job{
			Id:        jobConfig.Id,
			Priority:  jobConfig.Priority,
			Resources: resources,
			Filters:   filters,
			Command:   jobConfig.Command,
		})
	}
	return jobs, nil
}

// BuildNodes returns the configured nodes in configuration order.
func (c Configuration) BuildNodes() ([]*model.Node, error) {
	nodes := make([]*model.Node, 0, len(c.Nodes))
	seen := map[string]bool{}
	for _, nodeConfig := range c.Nodes {
		if seen[nodeConfig.Id] {
			return nil, errors.WithStack(&taskhiveerrors.ErrAlreadyExists{Type: "node", Value: nodeConfig.Id})
		}
		seen[nodeConfig.Id] = true
		if _, ok := c.NodeTypes[nodeConfig.Type]; !ok {
			return nil, errors.WithStack(&taskhiveerrors.ErrInvalidArgument{
				Name:    "type",
				Value:   nodeConfig.Type,
				Message: "node " + nodeConfig.Id + " has a type with no configured capacity",
			})
		}
		nodes = append(nodes, &model.Node{
			Id:     nodeConfig.Id,
			Type:   nodeConfig.Type,
			Worker: nodeConfig.Worker,
			Tags:   nodeConfig.Tags,
		})
	}
	return nodes, nil
}

// BuildCapacity returns the total amount of each resource kind, per node type.
func (c Configuration) BuildCapacity() (map[string]model.Resources, error) {
	capacity := make(map[string]model.Resources, len(c.NodeTypes))
	for nodeType, quantities := range c.NodeTypes {
		resources, err := model.ParseResources(quantities)
		if err != nil {
			return nil, errors.WithMessagef(err, "node type %s", nodeType)
		}
		capacity[nodeType] = resources
	}
	return capacity, nil
}
