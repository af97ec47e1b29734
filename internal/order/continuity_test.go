package order_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"vda5050-bridge/internal/models"
	"vda5050-bridge/internal/order"
)

// buildOrder creates a valid order through the given nodes, numbered from
// firstSeq. The last horizon nodes are unreleased.
func buildOrder(orderID string, updateID, firstSeq uint32, horizon int, nodeIDs ...string) *models.Order {
	o := &models.Order{OrderID: orderID, OrderUpdateID: updateID}
	base := len(nodeIDs) - horizon
	for i, id := range nodeIDs {
		o.Nodes = append(o.Nodes, models.Node{
			NodeID:     id,
			SequenceID: firstSeq + uint32(2*i),
			Released:   i < base,
			Actions:    []models.Action{},
		})
		if i == 0 {
			continue
		}
		o.Edges = append(o.Edges, models.Edge{
			EdgeID:      nodeIDs[i-1] + "-" + id,
			SequenceID:  firstSeq + uint32(2*i-1),
			Released:    i < base,
			StartNodeID: nodeIDs[i-1],
			EndNodeID:   id,
			Actions:     []models.Action{},
		})
	}
	return o
}

func reportAt(orderID string, updateID uint32, nodeID string, seq uint32, remaining ...string) *models.State {
	s := &models.State{OrderID: orderID, OrderUpdateID: updateID, LastNodeID: nodeID, LastNodeSequenceID: seq}
	for _, id := range remaining {
		s.NodeStates = append(s.NodeStates, models.NodeState{NodeID: id})
	}
	return s
}

func expectRejected(err error, reason error) {
	ExpectWithOffset(1, err).To(HaveOccurred())
	var rejection *order.RejectionError
	ExpectWithOffset(1, errors.As(err, &rejection)).To(BeTrue())
	ExpectWithOffset(1, errors.Is(err, reason)).To(BeTrue())
}

var _ = Describe("ContinuityTracker", func() {
	var tracker *order.ContinuityTracker

	BeforeEach(func() {
		tracker = order.NewContinuityTracker("agv-1")
	})

	It("starts idle without a continuation", func() {
		Expect(tracker.State()).To(Equal(order.StateIdle))
		Expect(tracker.Continuation()).To(BeNil())
	})

	Describe("literal scenarios", func() {
		BeforeEach(func() {
			Expect(tracker.AcceptNewOrder(buildOrder("A", 0, 0, 0, "n0"))).To(Succeed())
		})

		It("activates on a new order", func() {
			Expect(tracker.State()).To(Equal(order.StateActive))
			Expect(tracker.OrderID()).To(Equal("A"))
			Expect(tracker.OrderUpdateID()).To(BeEquivalentTo(0))
		})

		It("accepts an update that extends the current base", func() {
			Expect(tracker.AcceptOrderUpdate(buildOrder("A", 1, 0, 0, "n0", "n1"))).To(Succeed())
			Expect(tracker.OrderUpdateID()).To(BeEquivalentTo(1))
			Expect(tracker.BaseEnd()).To(Equal(order.NodeRef{NodeID: "n1", SequenceID: 2}))
		})

		It("rejects an update with the same update id and keeps its state", func() {
			err := tracker.AcceptOrderUpdate(buildOrder("A", 0, 0, 0, "n0", "n1"))
			expectRejected(err, order.ErrOrderUpdateConflict)
			Expect(tracker.OrderUpdateID()).To(BeEquivalentTo(0))
			Expect(tracker.BaseEnd()).To(Equal(order.NodeRef{NodeID: "n0", SequenceID: 0}))
		})

		It("rejects a new order while the current one is unfinished", func() {
			err := tracker.AcceptNewOrder(buildOrder("B", 0, 0, 0, "n0"))
			expectRejected(err, order.ErrOrderUpdateConflict)
			Expect(tracker.OrderID()).To(Equal("A"))
			Expect(tracker.State()).To(Equal(order.StateActive))
		})
	})

	Describe("unfinished order updates", func() {
		BeforeEach(func() {
			Expect(tracker.AcceptNewOrder(buildOrder("A", 0, 0, 2, "n0", "n1", "n2", "n3"))).To(Succeed())
			tracker.UpdateFromState(reportAt("A", 0, "n0", 0, "n1", "n2", "n3"))
		})

		It("compares against the last base node, not the last reported node", func() {
			Expect(tracker.BaseEnd()).To(Equal(order.NodeRef{NodeID: "n1", SequenceID: 2}))

			err := tracker.AcceptOrderUpdate(buildOrder("A", 1, 0, 0, "n0", "n1"))
			expectRejected(err, order.ErrNoRoute)

			Expect(tracker.AcceptOrderUpdate(buildOrder("A", 1, 2, 1, "n1", "n2", "n3"))).To(Succeed())
		})

		It("requires the sequence id of the base end as well", func() {
			err := tracker.AcceptOrderUpdate(buildOrder("A", 1, 4, 0, "n1", "n2"))
			expectRejected(err, order.ErrNoRoute)
		})

		It("accepts an update that shrinks the horizon", func() {
			Expect(tracker.AcceptOrderUpdate(buildOrder("A", 1, 2, 0, "n1"))).To(Succeed())
			Expect(tracker.BaseEnd()).To(Equal(order.NodeRef{NodeID: "n1", SequenceID: 2}))
			Expect(tracker.Continuation().FirstNodeID).To(Equal("n1"))
		})

		It("accepts any strictly greater update id", func() {
			Expect(tracker.AcceptOrderUpdate(buildOrder("A", 7, 2, 0, "n1", "n2"))).To(Succeed())
			err := tracker.AcceptOrderUpdate(buildOrder("A", 6, 4, 0, "n2", "n3"))
			expectRejected(err, order.ErrOrderUpdateConflict)
		})

		It("rejects an update for another order id", func() {
			err := tracker.AcceptOrderUpdate(buildOrder("B", 1, 2, 0, "n1", "n2"))
			expectRejected(err, order.ErrOrderUpdateConflict)
		})
	})

	Describe("finished orders", func() {
		BeforeEach(func() {
			Expect(tracker.AcceptNewOrder(buildOrder("A", 0, 0, 0, "n0", "n1"))).To(Succeed())
			tracker.UpdateFromState(reportAt("A", 0, "n1", 2))
		})

		It("marks the order finished when nothing is left", func() {
			Expect(tracker.State()).To(Equal(order.StateFinished))
			c := tracker.Continuation()
			Expect(c).NotTo(BeNil())
			Expect(c.Finished).To(BeTrue())
			Expect(c.FirstNodeID).To(Equal("n1"))
			Expect(c.FirstNodeSequenceID).To(BeEquivalentTo(2))
		})

		It("continues from the last reported node", func() {
			Expect(tracker.AcceptOrderUpdate(buildOrder("A", 1, 2, 0, "n1", "n2"))).To(Succeed())
			Expect(tracker.State()).To(Equal(order.StateActive))
		})

		It("rejects an update that does not start at the last reported node", func() {
			err := tracker.AcceptOrderUpdate(buildOrder("A", 1, 0, 0, "n0", "n1"))
			expectRejected(err, order.ErrNoRoute)
			Expect(tracker.State()).To(Equal(order.StateFinished))
		})

		It("uses the last reported node even when it differs from the base end", func() {
			// The vehicle was repositioned after finishing.
			tracker.UpdateFromState(reportAt("", 0, "n7", 0))
			err := tracker.AcceptOrderUpdate(buildOrder("A", 1, 2, 0, "n1", "n2"))
			expectRejected(err, order.ErrNoRoute)
			Expect(tracker.AcceptOrderUpdate(buildOrder("A", 1, 0, 0, "n7", "n8"))).To(Succeed())
		})

		It("accepts a new order starting at the last reported node", func() {
			Expect(tracker.AcceptNewOrder(buildOrder("B", 0, 0, 0, "n1", "n5"))).To(Succeed())
			Expect(tracker.OrderID()).To(Equal("B"))
		})

		It("rejects a new order starting elsewhere", func() {
			err := tracker.AcceptNewOrder(buildOrder("B", 0, 0, 0, "n4"))
			expectRejected(err, order.ErrNoRoute)
		})
	})

	Describe("state reports", func() {
		It("ignores a finished state of an older update", func() {
			Expect(tracker.AcceptNewOrder(buildOrder("A", 0, 0, 0, "n0", "n1"))).To(Succeed())
			Expect(tracker.AcceptOrderUpdate(buildOrder("A", 1, 2, 0, "n1", "n2"))).To(Succeed())
			tracker.UpdateFromState(reportAt("A", 0, "n1", 2))
			Expect(tracker.State()).To(Equal(order.StateActive))
		})
	})

	Describe("Accept", func() {
		It("dispatches on the order id", func() {
			Expect(tracker.Accept(buildOrder("A", 0, 0, 0, "n0", "n1"))).To(Succeed())
			Expect(tracker.Accept(buildOrder("A", 1, 2, 0, "n1", "n2"))).To(Succeed())
			expectRejected(tracker.Accept(buildOrder("B", 0, 0, 0, "n2")), order.ErrOrderUpdateConflict)
		})

		It("returns validation errors unchanged", func() {
			err := tracker.Accept(&models.Order{OrderID: "A"})
			var vErr *models.ValidationError
			Expect(errors.As(err, &vErr)).To(BeTrue())
			Expect(tracker.State()).To(Equal(order.StateIdle))
		})
	})

	It("returns to idle on Reset and keeps the last reported node", func() {
		Expect(tracker.AcceptNewOrder(buildOrder("A", 0, 0, 0, "n0", "n1"))).To(Succeed())
		tracker.UpdateFromState(reportAt("A", 0, "n0", 0, "n1"))
		tracker.Reset()
		Expect(tracker.State()).To(Equal(order.StateIdle))
		Expect(tracker.LastReported().NodeID).To(Equal("n0"))
		Expect(tracker.AcceptNewOrder(buildOrder("B", 0, 0, 0, "n0"))).To(Succeed())
	})
})
