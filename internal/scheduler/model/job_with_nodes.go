package model

// JobWithNodes pairs a job with the nodes that may still receive one of its tasks in the current pass.
// Nodes are removed as they are attempted, whatever the outcome, so each node is attempted at most once per pass.
type JobWithNodes struct {
	Job   *Job
	Nodes []*Node
}

func NewJobWithNodes(job *Job, nodes ...*Node) *JobWithNodes {
	return &JobWithNodes{Job: job, Nodes: nodes}
}

func (j *JobWithNodes) HasNodes() bool {
	return len(j.Nodes) > 0
}

// PopBack removes and returns the last candidate node, or nil if there are none.
func (j *JobWithNodes) PopBack() *Node {
	if len(j.Nodes) == 0 {
		return nil
	}
	node := j.Nodes[len(j.Nodes)-1]
	j.Nodes[len(j.Nodes)-1] = nil
	j.Nodes = j.Nodes[:len(j.Nodes)-1]
	return node
}

// PopFront removes and returns the first candidate node, or nil if there are none.
func (j *JobWithNodes) PopFront() *Node {
	if len(j.Nodes) == 0 {
		return nil
	}
	node := j.Nodes[0]
	j.Nodes[0] = nil
	j.Nodes = j.Nodes[1:]
	return node
}
