package stream

import (
	"context"
	"errors"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Retry policy", func() {
	Describe("RetryableStatus", func() {
		It("retries request timeout and too-many-requests", func() {
			Expect(RetryableStatus(http.StatusRequestTimeout)).To(BeTrue())
			Expect(RetryableStatus(http.StatusTooManyRequests)).To(BeTrue())
		})

		It("retries the 5xx family", func() {
			for _, status := range []int{500, 502, 503, 504, 599} {
				Expect(RetryableStatus(status)).To(BeTrue(), "status %d", status)
			}
		})

		It("does not retry client errors or success", func() {
			for _, status := range []int{200, 201, 400, 401, 403, 404, 422} {
				Expect(RetryableStatus(status)).To(BeFalse(), "status %d", status)
			}
		})
	})

	Describe("RetryableError", func() {
		It("retries connection errors and stalls", func() {
			Expect(RetryableError(errors.New("connection reset"))).To(BeTrue())
			Expect(RetryableError(ErrStalled)).To(BeTrue())
		})

		It("never retries cancellation", func() {
			Expect(RetryableError(context.Canceled)).To(BeFalse())
			Expect(RetryableError(context.DeadlineExceeded)).To(BeFalse())
		})

		It("does not retry nil", func() {
			Expect(RetryableError(nil)).To(BeFalse())
		})
	})

	Describe("Decide", func() {
		var policy Policy

		BeforeEach(func() {
			policy = Policy{}
		})

		It("doubles the delay per attempt from the base", func() {
			Expect(policy.Decide(0, true).Delay).To(Equal(1 * time.Second))
			Expect(policy.Decide(1, true).Delay).To(Equal(2 * time.Second))
		})

		It("caps the delay", func() {
			policy = Policy{MaxRetries: 10}
			Expect(policy.Decide(9, true).Delay).To(Equal(10 * time.Second))
		})

		It("stops at the attempt cap", func() {
			Expect(policy.Decide(0, true).Retry).To(BeTrue())
			Expect(policy.Decide(1, true).Retry).To(BeTrue())
			Expect(policy.Decide(2, true).Retry).To(BeFalse())
		})

		It("never retries with the NoRetries sentinel", func() {
			policy = Policy{MaxRetries: NoRetries}
			Expect(policy.Decide(0, true).Retry).To(BeFalse())
			Expect(policy.maxAttempts()).To(Equal(1))
		})

		It("never retries a non-retryable failure", func() {
			decision := policy.Decide(0, false)
			Expect(decision.Retry).To(BeFalse())
			Expect(decision.Delay).To(BeZero())
		})
	})
})
