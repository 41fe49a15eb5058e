package intake

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/billbox/internal/inbox"
)

var _ = Describe("Watch", func() {
	It("should ingest files dropped into the inbox", func() {
		tmp := GinkgoT().TempDir()
		inboxDir := filepath.Join(tmp, "inbox")
		Expect(os.MkdirAll(inboxDir, 0o755)).To(Succeed())

		store, err := inbox.NewBoltStore(filepath.Join(tmp, "test.db"))
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()
		storage, err := NewLocalStorageWithTime(filepath.Join(tmp, "attachments"), jan15)
		Expect(err).NotTo(HaveOccurred())
		service := NewServiceWithDeps(store, storage, SHA256{}, &sequentialIDs{}, jan15)

		var (
			mu       sync.Mutex
			outcomes []Outcome
		)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- service.Watch(ctx, WatchConfig{
				Root:   inboxDir,
				UserID: "user-1",
				Settle: 50 * time.Millisecond,
				OnOutcome: func(path string, out Outcome, err error) {
					mu.Lock()
					defer mu.Unlock()
					outcomes = append(outcomes, out)
				},
			})
		}()

		// give the watcher time to register
		time.Sleep(100 * time.Millisecond)
		Expect(os.WriteFile(filepath.Join(inboxDir, "receipt.jpg"), []byte("jpeg"), 0o644)).To(Succeed())

		Eventually(func() []Outcome {
			mu.Lock()
			defer mu.Unlock()
			return append([]Outcome(nil), outcomes...)
		}, 5*time.Second, 20*time.Millisecond).Should(ContainElement(HaveField("Status", StatusCreated)))

		cancel()
		Eventually(done).Should(Receive(BeNil()))

		items, err := store.List()
		Expect(err).NotTo(HaveOccurred())
		Expect(items).To(HaveLen(1))
	})
})
