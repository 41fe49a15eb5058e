package intake

import (
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/billbox/internal/inbox"
)

type sequentialIDs struct{ n int }

func (s *sequentialIDs) Generate() string {
	s.n++
	return "item-" + string(rune('0'+s.n))
}

// failingRepo wraps a real store and injects save errors
type failingRepo struct {
	Repository
	saveErr error
}

func (f *failingRepo) Save(item inbox.Item) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.Repository.Save(item)
}

var _ = Describe("Service", func() {
	var (
		inboxDir string
		root     string
		store    *inbox.BoltStore
		repo     Repository
		storage  *LocalStorage
		service  *Service
	)

	BeforeEach(func() {
		tmp := GinkgoT().TempDir()
		inboxDir = filepath.Join(tmp, "inbox")
		root = filepath.Join(tmp, "attachments")
		Expect(os.MkdirAll(inboxDir, 0o755)).To(Succeed())

		var err error
		store, err = inbox.NewBoltStore(filepath.Join(tmp, "test.db"))
		Expect(err).NotTo(HaveOccurred())
		storage, err = NewLocalStorageWithTime(root, jan15)
		Expect(err).NotTo(HaveOccurred())
		repo = store
	})

	AfterEach(func() {
		store.Close()
	})

	JustBeforeEach(func() {
		service = NewServiceWithDeps(repo, storage, SHA256{}, &sequentialIDs{}, jan15)
	})

	drop := func(name, content string) string {
		path := filepath.Join(inboxDir, name)
		Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
		return path
	}

	attachments := func() []string {
		entries, err := os.ReadDir(root)
		Expect(err).NotTo(HaveOccurred())
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		return names
	}

	Describe("Process", func() {
		When("a new file arrives", func() {
			It("should move it into dated storage and create a CREATED item", func() {
				src := drop("receipt.jpg", "jpeg bytes")

				out, err := service.Process(src, "user-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(out.Status).To(Equal(StatusCreated))
				Expect(out.Item.Status).To(Equal(inbox.StatusCreated))
				Expect(out.Item.StoragePath).To(Equal(filepath.Join(root, "2025-01-15-receipt.jpg")))
				Expect(out.Item.OriginalFilename).To(Equal("receipt.jpg"))
				Expect(out.Item.Checksum).To(HaveLen(64))
				Expect(out.Item.UserID).To(Equal("user-1"))

				Expect(src).NotTo(BeAnExistingFile())
				Expect(out.Item.StoragePath).To(BeAnExistingFile())

				stored, err := store.Get(out.Item.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(stored.StoragePath).To(Equal(out.Item.StoragePath))
			})
		})

		When("the same content arrives under a different name", func() {
			It("should report a duplicate without a record or a second file", func() {
				first, err := service.Process(drop("receipt.jpg", "jpeg bytes"), "user-1")
				Expect(err).NotTo(HaveOccurred())

				src := drop("copy-of-receipt.jpg", "jpeg bytes")
				out, err := service.Process(src, "user-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(out.Status).To(Equal(StatusDuplicate))
				Expect(out.Existing.ID).To(Equal(first.Item.ID))
				Expect(out.Item).To(BeNil())

				Expect(src).To(BeAnExistingFile())
				Expect(attachments()).To(ConsistOf("2025-01-15-receipt.jpg"))
				items, err := store.List()
				Expect(err).NotTo(HaveOccurred())
				Expect(items).To(HaveLen(1))
			})
		})

		When("another user uploads content that is already stored", func() {
			It("should still be a duplicate because deduplication is global", func() {
				_, err := service.Process(drop("receipt.jpg", "shared bytes"), "user-1")
				Expect(err).NotTo(HaveOccurred())

				out, err := service.Process(drop("mine.jpg", "shared bytes"), "user-2")
				Expect(err).NotTo(HaveOccurred())
				Expect(out.Status).To(Equal(StatusDuplicate))
				Expect(out.Existing.UserID).To(Equal("user-1"))
			})
		})

		When("two different files share a name", func() {
			It("should suffix the second", func() {
				_, err := service.Process(drop("receipt.jpg", "one"), "user-1")
				Expect(err).NotTo(HaveOccurred())
				out, err := service.Process(drop("receipt.jpg", "two"), "user-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(out.Item.StoragePath).To(Equal(filepath.Join(root, "2025-01-15-receipt-1.jpg")))
			})
		})

		When("the file is not ready", func() {
			It("should skip unsupported types", func() {
				out, err := service.Process(drop("notes.txt", "hello"), "user-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(out.Status).To(Equal(StatusNotReady))
				Expect(out.Reason).To(ContainSubstring("unsupported"))
			})

			It("should skip empty files", func() {
				src := drop("empty.pdf", "")
				out, err := service.Process(src, "user-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(out.Status).To(Equal(StatusNotReady))
				Expect(out.Reason).To(Equal("file is empty"))
				Expect(src).To(BeAnExistingFile())
			})

			It("should skip missing files", func() {
				out, err := service.Process(filepath.Join(inboxDir, "gone.pdf"), "user-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(out.Status).To(Equal(StatusNotReady))
			})
		})

		When("saving the item fails", func() {
			BeforeEach(func() {
				repo = &failingRepo{Repository: store, saveErr: errors.New("disk full")}
			})

			It("should put the file back and persist nothing", func() {
				src := drop("receipt.jpg", "jpeg bytes")
				_, err := service.Process(src, "user-1")
				Expect(err).To(MatchError(ContainSubstring("disk full")))
				Expect(src).To(BeAnExistingFile())
				Expect(attachments()).To(BeEmpty())
				items, _ := store.List()
				Expect(items).To(BeEmpty())
			})
		})

		When("the store detects the duplicate at save time", func() {
			BeforeEach(func() {
				existing := inbox.NewItem("other", "x.jpg", "/x", "", "user-9", jan15.t)
				repo = &raceRepo{store: store, existing: existing}
			})

			It("should report a duplicate", func() {
				src := drop("receipt.jpg", "jpeg bytes")
				out, err := service.Process(src, "user-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(out.Status).To(Equal(StatusDuplicate))
				Expect(out.Existing.ID).To(Equal("other"))
				Expect(src).To(BeAnExistingFile())
			})
		})
	})

	Describe("ProcessDirectory", func() {
		It("should aggregate outcomes and skip hidden files", func() {
			drop("a.jpg", "a")
			drop("b.pdf", "b")
			drop("c.jpg", "a")
			drop("notes.txt", "n")
			drop(".hidden.jpg", "h")

			stats, err := service.ProcessDirectory(inboxDir, "user-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stats).To(Equal(Stats{Scanned: 4, Created: 2, Duplicates: 1, NotReady: 1}))
		})
	})
})

// raceRepo simulates another writer storing the same checksum between lookup and save
type raceRepo struct {
	store    *inbox.BoltStore
	existing inbox.Item
	saved    bool
}

func (r *raceRepo) FindByChecksum(checksum string) (*inbox.Item, error) {
	if !r.saved {
		return nil, nil
	}
	e := r.existing
	return &e, nil
}

func (r *raceRepo) Save(item inbox.Item) error {
	r.existing.Checksum = item.Checksum
	r.saved = true
	return inbox.ErrDuplicateChecksum
}
