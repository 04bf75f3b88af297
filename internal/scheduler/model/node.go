package model

// Node is a schedulable location. A task is the pairing of a job with a node.
// Nodes are immutable for the duration of a scheduling pass.
type Node struct {
	// Unique name of the node.
	Id string
	// Node type, used to look up the resource budget this node draws from.
	Type string
	// Id of the worker that executes tasks placed on this node.
	Worker string
	// Free-form labels matched by tag whitelists.
	Tags []string
}

func (n *Node) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
