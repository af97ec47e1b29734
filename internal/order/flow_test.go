package order_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"vda5050-bridge/internal/fleet"
	"vda5050-bridge/internal/order"
)

func commands(lengths ...int64) []fleet.MovementCommand {
	var out []fleet.MovementCommand
	for _, l := range lengths {
		cmd := fleet.MovementCommand{TransportOrder: "T"}
		if l >= 0 {
			cmd.Step.Path = &fleet.Path{Length: l}
		}
		out = append(out, cmd)
	}
	return out
}

var _ = Describe("FlowController", func() {
	It("rejects a limit below one", func() {
		for _, max := range []int64{0, -5} {
			_, err := order.NewFlowController(max)
			Expect(errors.Is(err, order.ErrInvalidMaxDistance)).To(BeTrue())
		}
	})

	It("admits while the queued distance is below the limit", func() {
		fc, err := order.NewFlowController(5000)
		Expect(err).NotTo(HaveOccurred())

		Expect(fc.CanAcceptNextCommand(commands(2000, 1000))).To(BeTrue())
		Expect(fc.CanAcceptNextCommand(commands(4000, 2000))).To(BeFalse())
		Expect(fc.CanAcceptNextCommand(commands(5000))).To(BeFalse())
		Expect(fc.CanAcceptNextCommand(nil)).To(BeTrue())
	})

	It("counts commands without a path as zero", func() {
		fc, err := order.NewFlowController(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(fc.CanAcceptNextCommand(commands(-1, -1))).To(BeTrue())
	})
})
