// internal/models/order.go
package models

import "fmt"

// NodePosition is optional on a node. Theta and deviations are radians/metres
// and omitted when unspecified.
type NodePosition struct {
	X                     float64  `json:"x"`
	Y                     float64  `json:"y"`
	Theta                 *float64 `json:"theta,omitempty"`
	AllowedDeviationXY    *float64 `json:"allowedDeviationXY,omitempty"`
	AllowedDeviationTheta *float64 `json:"allowedDeviationTheta,omitempty"`
	MapID                 string   `json:"mapId"`
}

// Node is a point of an order. Released nodes belong to the base, the others
// to the horizon.
type Node struct {
	NodeID       string        `json:"nodeId"`
	SequenceID   uint32        `json:"sequenceId"`
	Released     bool          `json:"released"`
	NodePosition *NodePosition `json:"nodePosition,omitempty"`
	Actions      []Action      `json:"actions"`
}

// Edge connects two consecutive nodes of an order.
type Edge struct {
	EdgeID          string   `json:"edgeId"`
	SequenceID      uint32   `json:"sequenceId"`
	Released        bool     `json:"released"`
	StartNodeID     string   `json:"startNodeId"`
	EndNodeID       string   `json:"endNodeId"`
	MaxSpeed        *float64 `json:"maxSpeed,omitempty"`
	Orientation     *float64 `json:"orientation,omitempty"`
	RotationAllowed *bool    `json:"rotationAllowed,omitempty"`
	Length          *float64 `json:"length,omitempty"`
	Actions         []Action `json:"actions"`
}

// Order is a graph of nodes and edges the vehicle has to traverse.
type Order struct {
	Header
	OrderID       string `json:"orderId"`
	OrderUpdateID uint32 `json:"orderUpdateId"`
	Nodes         []Node `json:"nodes"`
	Edges         []Edge `json:"edges"`
}

// FirstNode returns the first node. ValidateOrder guarantees there is one.
func (o *Order) FirstNode() Node {
	return o.Nodes[0]
}

// LastBaseNode returns the last released node, or false if the base is empty.
func (o *Order) LastBaseNode() (Node, bool) {
	for i := len(o.Nodes) - 1; i >= 0; i-- {
		if o.Nodes[i].Released {
			return o.Nodes[i], true
		}
	}
	return Node{}, false
}

// ValidateOrder checks the structural invariants of an order: at least one
// node, edges present iff there is more than one node, and node/edge sequence
// ids interleaved as first+2i / first+2i+1 with edge i joining node i and i+1.
func ValidateOrder(o *Order) error {
	if o == nil {
		return &ValidationError{Field: "order", Message: "must not be nil"}
	}
	if o.OrderID == "" {
		return &ValidationError{Field: "orderId", Message: "must not be empty"}
	}
	if len(o.Nodes) == 0 {
		return &ValidationError{Field: "nodes", Message: "order needs at least one node"}
	}
	if len(o.Edges) != len(o.Nodes)-1 {
		return &ValidationError{
			Field:   "edges",
			Message: fmt.Sprintf("%d nodes need %d edges, got %d", len(o.Nodes), len(o.Nodes)-1, len(o.Edges)),
		}
	}

	first := uint64(o.Nodes[0].SequenceID)
	horizon := false
	for i, n := range o.Nodes {
		if want := first + 2*uint64(i); uint64(n.SequenceID) != want {
			return &ValidationError{
				Field:   fmt.Sprintf("nodes[%d].sequenceId", i),
				Message: fmt.Sprintf("expected %d, got %d", want, n.SequenceID),
			}
		}
		if n.NodeID == "" {
			return &ValidationError{Field: fmt.Sprintf("nodes[%d].nodeId", i), Message: "must not be empty"}
		}
		if !n.Released {
			horizon = true
		} else if horizon {
			return &ValidationError{Field: fmt.Sprintf("nodes[%d].released", i), Message: "base node after horizon node"}
		}
	}
	if !o.Nodes[0].Released {
		return &ValidationError{Field: "nodes[0].released", Message: "first node must be released"}
	}

	for i, e := range o.Edges {
		if want := first + 2*uint64(i) + 1; uint64(e.SequenceID) != want {
			return &ValidationError{
				Field:   fmt.Sprintf("edges[%d].sequenceId", i),
				Message: fmt.Sprintf("expected %d, got %d", want, e.SequenceID),
			}
		}
		if e.StartNodeID != o.Nodes[i].NodeID || e.EndNodeID != o.Nodes[i+1].NodeID {
			return &ValidationError{
				Field:   fmt.Sprintf("edges[%d]", i),
				Message: fmt.Sprintf("must connect %s and %s", o.Nodes[i].NodeID, o.Nodes[i+1].NodeID),
			}
		}
		if e.Released && !o.Nodes[i+1].Released {
			return &ValidationError{Field: fmt.Sprintf("edges[%d].released", i), Message: "released edge ends in horizon"}
		}
	}
	return nil
}
