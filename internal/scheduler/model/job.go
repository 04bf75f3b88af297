package model

import "fmt"

// Job is a unit of work that runs one task on every node it is allowed on.
// Jobs are immutable for the duration of a scheduling pass.
type Job struct {
	// Unique name of the job.
	Id string
	// Higher priority jobs are attempted first by rank-aware policies.
	// For the randomized policy this is the relative weight of the job.
	Priority float64
	// Amount of each resource kind consumed by one task of this job.
	Resources Resources
	// Restricts which nodes the job may run on. Nil means every node.
	Filters *NodeFilters
	// Command run by the worker for each task.
	Command []string
}

func (j *Job) String() string {
	return fmt.Sprintf("%s (priority %g, resources {%s})", j.Id, j.Priority, j.Resources)
}

// CanRunOn reports whether the job's filters allow node.
func (j *Job) CanRunOn(node *Node) bool {
	if j.Filters == nil {
		return true
	}
	return j.Filters.DoesPass(j.Id, node)
}
