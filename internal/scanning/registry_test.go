package scanning

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type stubEngine struct {
	name      string
	available bool
	closed    bool
}

func (s *stubEngine) Name() string    { return s.name }
func (s *stubEngine) Available() bool { return s.available }
func (s *stubEngine) Extract(ctx context.Context, req Request) Result {
	return NewFailure("not implemented", nil, 0)
}
func (s *stubEngine) Close() error {
	s.closed = true
	return nil
}

var _ = Describe("Registry", func() {
	var (
		first, second, offline *stubEngine
		registry               *Registry
	)

	BeforeEach(func() {
		first = &stubEngine{name: "openai", available: true}
		second = &stubEngine{name: "claude", available: true}
		offline = &stubEngine{name: "gemini"}
		registry = NewRegistry(first, nil, offline, second, &stubEngine{name: "openai", available: true})
	})

	It("should keep available engines in registration order", func() {
		Expect(registry.Names()).To(Equal([]string{"openai", "claude"}))
		Expect(registry.Len()).To(Equal(2))
		Expect(registry.Empty()).To(BeFalse())
	})

	It("should look engines up by name", func() {
		e, ok := registry.Lookup("claude")
		Expect(ok).To(BeTrue())
		Expect(e).To(BeIdenticalTo(second))

		_, ok = registry.Lookup("gemini")
		Expect(ok).To(BeFalse())
	})

	It("should return a copy of the engine list", func() {
		engines := registry.Engines()
		engines[0] = nil
		Expect(registry.Engines()[0]).To(BeIdenticalTo(first))
	})

	It("should close engines that hold resources", func() {
		Expect(registry.Close()).To(Succeed())
		Expect(first.closed).To(BeTrue())
		Expect(second.closed).To(BeTrue())
	})

	When("nothing is configured", func() {
		It("should be empty", func() {
			r, err := NewRegistryFromConfig(context.Background(), Config{})
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Empty()).To(BeTrue())
		})
	})

	When("only OpenAI and Claude have keys", func() {
		It("should register them in provider order", func() {
			r, err := NewRegistryFromConfig(context.Background(), Config{
				OpenAI: OpenAIConfig{APIKey: "sk-real"},
				Claude: ClaudeConfig{APIKey: "sk-ant-real"},
				Gemini: GeminiConfig{APIKey: "your-gemini-key"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Names()).To(Equal([]string{"openai", "claude"}))
		})
	})
})
