package stream

import (
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Watchdog", func() {
	var fired atomic.Int32

	BeforeEach(func() {
		fired.Store(0)
	})

	newWatchdog := func(check, after time.Duration) *Watchdog {
		return NewWatchdog(check, after, func() {
			fired.Add(1)
		})
	}

	It("does not fire before any payload has arrived", func() {
		w := newWatchdog(5*time.Millisecond, 10*time.Millisecond)
		w.Start()
		defer w.Stop()

		// Quiet for well past the threshold, but never armed.
		Consistently(fired.Load, 60*time.Millisecond).Should(BeZero())
	})

	It("fires exactly once after the quiet period once armed", func() {
		w := newWatchdog(5*time.Millisecond, 15*time.Millisecond)
		w.Start()
		defer w.Stop()

		w.MarkStarted()

		Eventually(fired.Load, time.Second).Should(Equal(int32(1)))
		Consistently(fired.Load, 50*time.Millisecond).Should(Equal(int32(1)))
		Expect(w.Fired()).To(BeTrue())
	})

	It("keeps quiet while activity continues", func() {
		w := newWatchdog(5*time.Millisecond, 30*time.Millisecond)
		w.Start()
		defer w.Stop()

		w.MarkStarted()

		for range 10 {
			time.Sleep(10 * time.Millisecond)
			w.Touch()
		}
		Expect(fired.Load()).To(BeZero())
	})

	It("never fires after Stop", func() {
		w := newWatchdog(5*time.Millisecond, 10*time.Millisecond)
		w.Start()
		w.MarkStarted()
		w.Stop()

		Consistently(fired.Load, 60*time.Millisecond).Should(BeZero())
	})

	It("tolerates Stop being called twice and without Start", func() {
		w := newWatchdog(time.Second, time.Second)
		w.Stop()
		w.Stop()

		w = newWatchdog(time.Second, time.Second)
		w.Start()
		w.Stop()
		w.Stop()
	})
})
