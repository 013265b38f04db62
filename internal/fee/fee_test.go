package fee_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/recurpay/internal/fee"
)

var _ = Describe("Split", func() {
	It("splits a plan amount of 11 tokens into 10 for the merchant and 1 for the platform", func() {
		// Given a 6-decimal plan amount inclusive of the default fee
		// When split
		b, err := fee.Split(11_000_000, fee.DefaultPlatformFee)

		// Then
		Expect(err).NotTo(HaveOccurred())
		Expect(b.MerchantAmount).To(Equal(int64(10_000_000)))
		Expect(b.PlatformFee).To(Equal(int64(1_000_000)))
		Expect(b.TotalAmount).To(Equal(int64(11_000_000)))
	})

	DescribeTable("always conserves the total",
		func(total, platformFee int64) {
			b, err := fee.Split(total, platformFee)
			Expect(err).NotTo(HaveOccurred())
			Expect(b.Balanced()).To(BeTrue())
			Expect(b.MerchantAmount + b.PlatformFee).To(Equal(total))
		},
		Entry("minimum merchant share", int64(1_000_001), int64(1_000_000)),
		Entry("zero fee", int64(42), int64(0)),
		Entry("odd amounts", int64(9_999_999_999), int64(333_333)),
		Entry("large totals", int64(1<<60), int64(1_000_000)),
	)

	Context("when the total does not exceed the fee", func() {
		It("rejects an equal total", func() {
			_, err := fee.Split(1_000_000, 1_000_000)
			Expect(err).To(MatchError(fee.ErrInvalidTotal))
		})

		It("rejects a zero total", func() {
			_, err := fee.Split(0, 0)
			Expect(err).To(MatchError(fee.ErrInvalidTotal))
		})
	})

	It("rejects a negative fee", func() {
		_, err := fee.Split(10, -1)
		Expect(err).To(MatchError(fee.ErrInvalidFee))
	})
})

var _ = Describe("ForProduct", func() {
	It("adds the fee on top of the price", func() {
		b, err := fee.ForProduct(25_000_000, fee.DefaultPlatformFee)

		Expect(err).NotTo(HaveOccurred())
		Expect(b.MerchantAmount).To(Equal(int64(25_000_000)))
		Expect(b.PlatformFee).To(Equal(int64(1_000_000)))
		Expect(b.TotalAmount).To(Equal(int64(26_000_000)))
		Expect(b.Balanced()).To(BeTrue())
	})

	It("produces the same breakdown as splitting the resulting total", func() {
		quote, err := fee.ForProduct(7_500_000, 250_000)
		Expect(err).NotTo(HaveOccurred())

		split, err := fee.Split(quote.TotalAmount, 250_000)
		Expect(err).NotTo(HaveOccurred())
		Expect(quote).To(Equal(split))
	})

	It("rejects non-positive prices", func() {
		_, err := fee.ForProduct(0, fee.DefaultPlatformFee)
		Expect(err).To(MatchError(fee.ErrInvalidPrice))
	})
})
