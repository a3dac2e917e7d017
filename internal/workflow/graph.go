package workflow

import (
	"fmt"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// Route is the router's decision after each node.
type Route string

const (
	// RouteContinue advances to the next node.
	RouteContinue Route = "continue"
	// RouteStop ends the run: the graph is exhausted, a step failed,
	// or cancellation was requested.
	RouteStop Route = "stop"
	// RouteWaitApproval suspends the run at an approval step.
	RouteWaitApproval Route = "wait_approval"
)

// Node is one step in the compiled graph. Next is the id of the
// successor node, empty for the last node.
type Node struct {
	ID   string
	Step types.Step
	Next string
}

// Graph is a compiled workflow: a linear chain of nodes addressed by
// step id. Branching happens through per-step condition gates rather
// than through edges, so the chain is strictly sequential.
type Graph struct {
	Nodes map[string]*Node
	Order []string
	Start string
}

// BuildGraph compiles a workflow's ordered steps into a graph. Step ids
// must be unique within the workflow.
func BuildGraph(wf *types.Workflow) (*Graph, error) {
	steps := wf.OrderedSteps()

	graph := &Graph{
		Nodes: make(map[string]*Node, len(steps)),
		Order: make([]string, 0, len(steps)),
	}

	for _, step := range steps {
		id := step.ID.String()
		if id == "" {
			return nil, types.NewError(types.WORKFLOW_INVALID,
				fmt.Sprintf("step %q has no id", step.Name))
		}
		if _, exists := graph.Nodes[id]; exists {
			return nil, types.NewError(types.WORKFLOW_INVALID,
				fmt.Sprintf("duplicate step id %q", id))
		}
		graph.Nodes[id] = &Node{ID: id, Step: step}
		graph.Order = append(graph.Order, id)
	}

	for i, id := range graph.Order {
		if i+1 < len(graph.Order) {
			graph.Nodes[id].Next = graph.Order[i+1]
		}
	}
	if len(graph.Order) > 0 {
		graph.Start = graph.Order[0]
	}

	return graph, nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.Order)
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node {
	return g.Nodes[id]
}

// route decides what happens after a node body completes. Checked
// before each node too, so a stop or suspension requested mid-run
// freezes every pending step.
func route(state *ExecutionState) Route {
	if state.ShouldStop {
		return RouteStop
	}
	if state.WaitingApproval {
		return RouteWaitApproval
	}
	return RouteContinue
}
