package diagram

// Model is the intermediate representation handed to renderers.
type Model struct {
	Title string
	Nodes []*Node
	Edges []Edge
}

// Node is one box in the diagram.
type Node struct {
	ID     string
	Label  string
	Status string // run step status, empty without a run overlay
}

// Edge connects two nodes in execution order.
type Edge struct {
	From  string
	To    string
	Label string
}
