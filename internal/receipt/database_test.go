package receipt

import (
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	newRecord := func(id string, kind Kind, date time.Time) Record {
		return Record{
			ID:          id,
			Kind:        kind,
			Provider:    "Test Provider",
			Date:        date,
			AmountCents: 2599,
			Currency:    "USD",
			State:       StateActive,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
	}

	Describe("SaveRecord", func() {
		var (
			record Record
			err    error
		)

		BeforeEach(func() {
			record = newRecord("test-id", KindReceipt, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
		})

		JustBeforeEach(func() {
			err = db.SaveRecord(record)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should save the record to the database", func() {
				saved, getErr := db.GetRecord(KindReceipt, "test-id")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.ID).To(Equal("test-id"))
				Expect(saved.AmountCents).To(Equal(int64(2599)))
			})

			It("should keep kinds apart", func() {
				_, getErr := db.GetRecord(KindBill, "test-id")
				Expect(errors.Is(getErr, ErrNotFound)).To(BeTrue())
			})
		})

		When("the kind is unknown", func() {
			BeforeEach(func() {
				record.Kind = "INVOICE"
			})

			It("should return an error", func() {
				Expect(errors.Is(err, ErrInvalid)).To(BeTrue())
			})
		})
	})

	Describe("GetRecord", func() {
		When("record does not exist", func() {
			It("should return ErrNotFound", func() {
				_, err := db.GetRecord(KindBill, "nonexistent")
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			})
		})
	})

	Describe("ListRecords", func() {
		When("records exist", func() {
			BeforeEach(func() {
				Expect(db.SaveRecord(newRecord("old", KindBill, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))).To(Succeed())
				Expect(db.SaveRecord(newRecord("new", KindBill, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))).To(Succeed())
				Expect(db.SaveRecord(newRecord("other", KindReceipt, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))).To(Succeed())
			})

			It("should return the records of that kind newest first", func() {
				records, err := db.ListRecords(KindBill)
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(2))
				Expect(records[0].ID).To(Equal("new"))
				Expect(records[1].ID).To(Equal("old"))
			})
		})

		When("no records exist", func() {
			It("should return an empty list", func() {
				records, err := db.ListRecords(KindReceipt)
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(BeEmpty())
			})
		})
	})
})
