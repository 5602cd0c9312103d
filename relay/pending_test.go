package relay_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/LukaHietala/live/relay"
)

var _ = Describe("PendingTable", func() {
	noop := func(requestID int, clientID int) {}

	Describe("Create()", func() {
		It("allocates request ids from zero, monotonically", func() {
			table := relay.NewPendingTable(time.Minute)

			Expect(table.Create(7, noop)).To(Equal(0))
			Expect(table.Create(7, noop)).To(Equal(1))
			Expect(table.Create(9, noop)).To(Equal(2))
			Expect(table.Len()).To(Equal(3))
		})

		It("does not reuse ids after entries settle", func() {
			table := relay.NewPendingTable(time.Minute)

			id := table.Create(7, noop)
			table.Complete(id)

			Expect(table.Create(7, noop)).To(Equal(1))
		})
	})

	Describe("Complete()", func() {
		It("returns the originating client and removes the entry", func() {
			table := relay.NewPendingTable(time.Minute)

			id := table.Create(7, noop)

			clientID, ok := table.Complete(id)
			Expect(ok).To(BeTrue())
			Expect(clientID).To(Equal(7))
			Expect(table.Len()).To(Equal(0))
		})

		It("is a no-op for an unknown id", func() {
			table := relay.NewPendingTable(time.Minute)

			_, ok := table.Complete(42)
			Expect(ok).To(BeFalse())
		})

		It("is a no-op the second time around", func() {
			table := relay.NewPendingTable(time.Minute)

			id := table.Create(7, noop)

			_, ok := table.Complete(id)
			Expect(ok).To(BeTrue())

			_, ok = table.Complete(id)
			Expect(ok).To(BeFalse())
		})

		It("disarms the deadline", func() {
			table := relay.NewPendingTable(30 * time.Millisecond)

			fired := make(chan int, 1)
			id := table.Create(7, func(requestID int, clientID int) {
				fired <- requestID
			})
			table.Complete(id)

			Consistently(fired, "100ms").ShouldNot(Receive())
		})
	})

	Describe("the deadline", func() {
		It("fires once with the request id and originator", func() {
			table := relay.NewPendingTable(20 * time.Millisecond)

			type firing struct {
				requestID int
				clientID  int
			}
			fired := make(chan firing, 2)

			table.Create(7, func(requestID int, clientID int) {
				fired <- firing{requestID, clientID}
			})

			Eventually(fired).Should(Receive(Equal(firing{0, 7})))
			Consistently(fired, "60ms").ShouldNot(Receive())
		})

		It("leaves settling to the callback", func() {
			table := relay.NewPendingTable(20 * time.Millisecond)

			fired := make(chan int, 1)
			table.Create(7, func(requestID int, clientID int) {
				fired <- requestID
			})

			Eventually(fired).Should(Receive())

			// The entry is still there until someone calls Complete,
			// which is what the server's expiry action does
			Expect(table.Len()).To(Equal(1))

			_, ok := table.Complete(0)
			Expect(ok).To(BeTrue())
		})
	})

	Describe("PurgeClient()", func() {
		It("settles only the given client's requests", func() {
			table := relay.NewPendingTable(time.Minute)

			table.Create(7, noop)
			table.Create(9, noop)
			table.Create(7, noop)

			table.PurgeClient(7)
			Expect(table.Len()).To(Equal(1))

			clientID, ok := table.Complete(1)
			Expect(ok).To(BeTrue())
			Expect(clientID).To(Equal(9))
		})

		It("disarms the deadlines it settles", func() {
			table := relay.NewPendingTable(30 * time.Millisecond)

			fired := make(chan int, 2)
			table.Create(7, func(requestID int, clientID int) {
				fired <- requestID
			})
			table.Create(7, func(requestID int, clientID int) {
				fired <- requestID
			})

			table.PurgeClient(7)

			Consistently(fired, "100ms").ShouldNot(Receive())
		})
	})
})
