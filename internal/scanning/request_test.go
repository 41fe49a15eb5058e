package scanning

import (
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Request", func() {
	var (
		dir  string
		path string
		req  Request
		err  error
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		path = filepath.Join(dir, "receipt.png")
		Expect(os.WriteFile(path, []byte("image bytes"), 0o644)).To(Succeed())
		req = NewRequest(path)
	})

	JustBeforeEach(func() {
		err = req.Validate()
	})

	When("built with defaults", func() {
		It("should be valid", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(req.IsValid()).To(BeTrue())
		})

		It("should use the default retries and timeout", func() {
			Expect(req.MaxRetries).To(Equal(DefaultMaxRetries))
			Expect(req.TimeoutMs).To(Equal(DefaultTimeoutMs))
		})
	})

	When("options are given", func() {
		BeforeEach(func() {
			req = NewRequest(path, WithLanguage(" en "), WithMaxRetries(0), WithTimeoutMs(500), WithHints("bill", " "))
		})

		It("should apply them", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(req.Language).To(Equal("en"))
			Expect(req.MaxRetries).To(Equal(0))
			Expect(req.Timeout().Milliseconds()).To(Equal(int64(500)))
			Expect(req.Hints).To(Equal([]string{"bill"}))
		})
	})

	When("the file does not exist", func() {
		BeforeEach(func() {
			req = NewRequest(filepath.Join(dir, "missing.png"))
		})

		It("should report it", func() {
			Expect(err).To(MatchError(ContainSubstring("file does not exist")))
			Expect(errors.Is(err, ErrInvalidRequest)).To(BeTrue())
			Expect(req.IsValid()).To(BeFalse())
		})
	})

	When("the file is empty", func() {
		BeforeEach(func() {
			empty := filepath.Join(dir, "empty.png")
			Expect(os.WriteFile(empty, nil, 0o644)).To(Succeed())
			req = NewRequest(empty)
		})

		It("should report it", func() {
			Expect(err).To(MatchError(ContainSubstring("file is empty")))
		})
	})

	When("the path is a directory", func() {
		BeforeEach(func() {
			req = NewRequest(dir)
		})

		It("should report it", func() {
			Expect(err).To(MatchError(ContainSubstring("file is a directory")))
		})
	})

	When("retries and timeout are out of range", func() {
		BeforeEach(func() {
			req = NewRequest(path, WithMaxRetries(-1), WithTimeoutMs(0))
		})

		It("should report both", func() {
			Expect(err).To(MatchError(ContainSubstring("max_retries: must be non-negative")))
			Expect(err).To(MatchError(ContainSubstring("timeout_ms: must be positive")))
		})
	})
})

var _ = Describe("Result", func() {
	It("should default a missing raw payload to an empty object", func() {
		s := NewSuccess(Extraction{}, nil, 0)
		Expect(string(s.RawJSON())).To(Equal("{}"))
		Expect(s.Succeeded()).To(BeTrue())
		Expect(s.ErrorMessage()).To(BeEmpty())
	})

	It("should replace malformed raw payloads", func() {
		f := NewFailure("boom", []byte("not json"), 0)
		Expect(string(f.RawJSON())).To(Equal("{}"))
	})

	It("should keep valid raw payloads", func() {
		f := NewFailure("boom", []byte(`{"error":"x"}`), 0)
		Expect(string(f.RawJSON())).To(Equal(`{"error":"x"}`))
	})

	It("should always carry a failure message", func() {
		f := NewFailure("  ", nil, 0)
		Expect(f.Succeeded()).To(BeFalse())
		Expect(f.ErrorMessage()).NotTo(BeEmpty())
	})
})

var _ = Describe("IsPlaceholderKey", func() {
	DescribeTable("classifying keys",
		func(key string, placeholder bool) {
			Expect(IsPlaceholderKey(key)).To(Equal(placeholder))
		},
		Entry("empty", "", true),
		Entry("whitespace", "   ", true),
		Entry("template", "your-api-key", true),
		Entry("prefixed template", "your_openai_key", true),
		Entry("angle brackets", "<API_KEY>", true),
		Entry("changeme", "CHANGEME", true),
		Entry("real looking key", "sk-proj-abc123", false),
	)
})
