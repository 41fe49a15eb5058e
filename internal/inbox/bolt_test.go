package inbox

import (
	"path/filepath"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltStore", func() {
	var store *BoltStore

	BeforeEach(func() {
		var err error
		store, err = NewBoltStore(filepath.Join(GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		store.Close()
	})

	Describe("Save and Get", func() {
		It("should round-trip an item", func() {
			Expect(store.Save(newTestItem())).To(Succeed())

			got, err := store.Get("item-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Checksum).To(Equal(testChecksum))
			Expect(got.Status).To(Equal(StatusCreated))
		})

		It("should report missing items", func() {
			_, err := store.Get("nope")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})

		It("should replace an item saved again under the same ID", func() {
			item := newTestItem()
			Expect(store.Save(item)).To(Succeed())
			next, err := item.StartProcessing(t1)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Save(next)).To(Succeed())

			got, err := store.Get("item-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(StatusProcessing))
		})
	})

	Describe("FindByChecksum", func() {
		It("should return nil when nothing matches", func() {
			got, err := store.FindByChecksum(testChecksum)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())
		})

		It("should find a stored item", func() {
			Expect(store.Save(newTestItem())).To(Succeed())
			got, err := store.FindByChecksum(testChecksum)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).NotTo(BeNil())
			Expect(got.ID).To(Equal("item-1"))
		})
	})

	Describe("checksum uniqueness", func() {
		It("should refuse a second item with the same checksum", func() {
			Expect(store.Save(newTestItem())).To(Succeed())

			other := newTestItem()
			other.ID = "item-2"
			other.UserID = "someone-else"
			err := store.Save(other)
			Expect(errors.Is(err, ErrDuplicateChecksum)).To(BeTrue())

			_, err = store.Get("item-2")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})
	})

	Describe("status queries", func() {
		BeforeEach(func() {
			a := newTestItem()
			b := NewItem("item-2", "b.pdf", "/x/b.pdf", "b"+testChecksum[1:], "user-2", t1)
			c := NewItem("item-3", "c.pdf", "/x/c.pdf", "c"+testChecksum[1:], "user-1", t1)
			c.Status = StatusFailed
			for _, i := range []Item{b, a, c} {
				Expect(store.Save(i)).To(Succeed())
			}
		})

		It("should list everything oldest first", func() {
			items, err := store.List()
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(3))
			Expect(items[0].ID).To(Equal("item-1"))
		})

		It("should filter by status", func() {
			items, err := store.FindByStatus(StatusCreated)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(2))
		})

		It("should filter by user and status", func() {
			items, err := store.FindByUserIDAndStatus("user-1", StatusCreated)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(1))
			Expect(items[0].ID).To(Equal("item-1"))
		})
	})
})
