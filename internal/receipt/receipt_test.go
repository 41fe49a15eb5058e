package receipt

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Record", func() {
	var (
		record Record
		now    time.Time
	)

	BeforeEach(func() {
		now = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
		record = Record{ID: "b-1", Kind: KindBill, Provider: "City Water", AmountCents: 8000, Currency: "USD", State: StateActive}
	})

	It("should return a new value on mutation", func() {
		next, err := record.WithAmount(9000, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(next.AmountCents).To(Equal(int64(9000)))
		Expect(next.UpdatedAt).To(Equal(now))
		Expect(record.AmountCents).To(Equal(int64(8000)))
	})

	It("should reject negative amounts and empty providers", func() {
		_, err := record.WithAmount(-1, now)
		Expect(errors.Is(err, ErrInvalid)).To(BeTrue())
		_, err = record.WithProvider("  ", now)
		Expect(errors.Is(err, ErrInvalid)).To(BeTrue())
	})

	It("should make removal one-way", func() {
		removed, err := record.Remove(now)
		Expect(err).NotTo(HaveOccurred())
		Expect(removed.Active()).To(BeFalse())

		_, err = removed.WithDescription("x", now)
		Expect(errors.Is(err, ErrRemoved)).To(BeTrue())
		_, err = removed.WithProvider("x", now)
		Expect(errors.Is(err, ErrRemoved)).To(BeTrue())
	})

	DescribeTable("ToCents",
		func(amount float64, cents int64) {
			Expect(ToCents(amount)).To(Equal(cents))
		},
		Entry("whole", 45.0, int64(4500)),
		Entry("two decimals", 45.67, int64(4567)),
		Entry("float noise", 0.29, int64(29)),
		Entry("rounds to nearest cent", 19.999, int64(2000)),
	)

	DescribeTable("ParseKind",
		func(in string, kind Kind) {
			k, err := ParseKind(in)
			Expect(err).NotTo(HaveOccurred())
			Expect(k).To(Equal(kind))
		},
		Entry("bill", "bill", KindBill),
		Entry("bills", "bills", KindBill),
		Entry("upper", "RECEIPT", KindReceipt),
		Entry("plural receipts", "receipts", KindReceipt),
	)
})

var _ = Describe("FormatAmount", func() {
	DescribeTable("rendering",
		func(cents int64, currency string, f Format, want string) {
			Expect(FormatAmount(cents, currency, f)).To(Equal(want))
		},
		Entry("US small", int64(4567), "USD", FormatUS, "USD 45.67"),
		Entry("US grouped", int64(123456789), "USD", FormatUS, "USD 1,234,567.89"),
		Entry("EU grouped", int64(123450), "EUR", FormatEU, "1.234,50 EUR"),
		Entry("negative", int64(-5), "USD", FormatUS, "USD -0.05"),
		Entry("no currency", int64(100), "", FormatUS, "1.00"),
	)
})

var _ = Describe("FormatDate", func() {
	It("should default to ISO dates", func() {
		Expect(FormatDate(time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC), "")).To(Equal("2025-01-15"))
	})

	It("should honour a layout", func() {
		Expect(FormatDate(time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC), "02.01.2006")).To(Equal("15.01.2025"))
	})

	It("should render zero dates as empty", func() {
		Expect(FormatDate(time.Time{}, "")).To(BeEmpty())
	})
})
