package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

const replyJSON = `{"provider":"Walmart","amount":45.67,"date":"2025-01-15","currency":"USD","confidence":0.9}`

func writeDocument() string {
	path := filepath.Join(GinkgoT().TempDir(), "receipt.png")
	Expect(os.WriteFile(path, []byte("\x89PNG fake image bytes"), 0o644)).To(Succeed())
	return path
}

func openAIReply(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
}

func claudeReply(content string) map[string]any {
	return map[string]any{
		"content":     []map[string]any{{"type": "text", "text": content}},
		"stop_reason": "end_turn",
	}
}

var _ = Describe("OpenAI", func() {
	var (
		server *ghttp.Server
		engine *OpenAI
		req    Request
		result Result
	)

	BeforeEach(func() {
		retryBackoff = time.Millisecond
		server = ghttp.NewServer()
		var err error
		engine, err = NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL()})
		Expect(err).NotTo(HaveOccurred())
		req = NewRequest(writeDocument())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		result = engine.Extract(context.Background(), req)
	})

	When("the provider returns valid JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/chat/completions"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer sk-test"),
				func(w http.ResponseWriter, r *http.Request) {
					var body openAIRequest
					Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
					Expect(body.Model).To(Equal(OpenAIDefaultModel))
					Expect(body.ResponseFormat.Type).To(Equal("json_object"))
					Expect(body.Messages[0].Content[1].ImageURL.URL).To(HavePrefix("data:image/png;base64,"))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, openAIReply(replyJSON)),
			))
		})

		It("should succeed with the extracted fields", func() {
			Expect(result.Succeeded()).To(BeTrue())
			s := result.(Success)
			Expect(s.Provider).To(HaveValue(Equal("Walmart")))
			Expect(s.Amount).To(HaveValue(Equal(45.67)))
			Expect(s.Date).To(HaveValue(Equal(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))))
			Expect(s.EngineName()).To(Equal("openai"))
		})

		It("should keep the raw response", func() {
			Expect(string(result.RawJSON())).To(ContainSubstring("choices"))
		})
	})

	When("the request is invalid", func() {
		BeforeEach(func() {
			req = NewRequest(filepath.Join(GinkgoT().TempDir(), "missing.png"))
		})

		It("should fail without contacting the provider", func() {
			Expect(result.Succeeded()).To(BeFalse())
			Expect(result.ErrorMessage()).To(ContainSubstring("file does not exist"))
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})

	When("the provider is rate limited once", func() {
		BeforeEach(func() {
			server.AppendHandlers(
				ghttp.RespondWith(http.StatusTooManyRequests, `{"error":{"message":"rate limit"}}`),
				ghttp.RespondWithJSONEncoded(http.StatusOK, openAIReply(replyJSON)),
			)
		})

		It("should retry and succeed", func() {
			Expect(result.Succeeded()).To(BeTrue())
			Expect(server.ReceivedRequests()).To(HaveLen(2))
		})
	})

	When("the provider keeps failing", func() {
		BeforeEach(func() {
			req.MaxRetries = 1
			server.AppendHandlers(
				ghttp.RespondWith(http.StatusServiceUnavailable, `{"error":"down"}`),
				ghttp.RespondWith(http.StatusServiceUnavailable, `{"error":"down"}`),
			)
		})

		It("should give up after the retry budget", func() {
			Expect(result.Succeeded()).To(BeFalse())
			Expect(result.ErrorMessage()).To(ContainSubstring("status 503"))
			Expect(string(result.RawJSON())).To(Equal(`{"error":"down"}`))
			Expect(server.ReceivedRequests()).To(HaveLen(2))
		})
	})

	When("the provider rejects the key", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusUnauthorized, `{"error":"bad key"}`))
		})

		It("should fail without retrying", func() {
			Expect(result.Succeeded()).To(BeFalse())
			Expect(result.ErrorMessage()).To(ContainSubstring("status 401"))
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	When("the reply is not JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, openAIReply("no idea")))
		})

		It("should fail with a parse error", func() {
			Expect(result.Succeeded()).To(BeFalse())
			Expect(result.ErrorMessage()).To(ContainSubstring("parsing response"))
		})
	})

	When("the provider is slower than the timeout", func() {
		BeforeEach(func() {
			req.TimeoutMs = 50
			server.AppendHandlers(func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
			})
		})

		It("should fail with a timeout", func() {
			Expect(result.Succeeded()).To(BeFalse())
			Expect(result.ErrorMessage()).To(ContainSubstring("timed out after 50ms"))
		})
	})
})

var _ = Describe("Claude", func() {
	var (
		server *ghttp.Server
		engine *Claude
		result Result
	)

	BeforeEach(func() {
		retryBackoff = time.Millisecond
		server = ghttp.NewServer()
		var err error
		engine, err = NewClaude(ClaudeConfig{APIKey: "sk-ant-test", BaseURL: server.URL()})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		result = engine.Extract(context.Background(), NewRequest(writeDocument()))
	})

	When("the provider returns valid JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/messages"),
				ghttp.VerifyHeaderKV("x-api-key", "sk-ant-test"),
				ghttp.VerifyHeaderKV("anthropic-version", ClaudeAPIVersion),
				func(w http.ResponseWriter, r *http.Request) {
					var body claudeRequest
					Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
					Expect(body.MaxTokens).To(Equal(claudeMaxTokens))
					Expect(body.Messages[0].Content[0].Source.MediaType).To(Equal("image/png"))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, claudeReply("```json\n"+replyJSON+"\n```")),
			))
		})

		It("should succeed with the extracted fields", func() {
			Expect(result.Succeeded()).To(BeTrue())
			s := result.(Success)
			Expect(s.Provider).To(HaveValue(Equal("Walmart")))
			Expect(s.Currency).To(HaveValue(Equal("USD")))
			Expect(s.EngineName()).To(Equal("claude"))
		})
	})

	When("the provider is overloaded", func() {
		BeforeEach(func() {
			server.AppendHandlers(
				ghttp.RespondWith(529, `{"type":"error","error":{"type":"overloaded_error"}}`),
				ghttp.RespondWithJSONEncoded(http.StatusOK, claudeReply(replyJSON)),
			)
		})

		It("should retry", func() {
			Expect(result.Succeeded()).To(BeTrue())
			Expect(server.ReceivedRequests()).To(HaveLen(2))
		})
	})

	When("the reply has no text", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"content": []any{}}))
		})

		It("should fail", func() {
			Expect(result.Succeeded()).To(BeFalse())
			Expect(result.ErrorMessage()).To(ContainSubstring("no response from claude"))
		})
	})
})

var _ = Describe("engine constructors", func() {
	It("should refuse placeholder keys", func() {
		_, err := NewOpenAI(OpenAIConfig{APIKey: "your-api-key"})
		Expect(errors.Is(err, ErrNotConfigured)).To(BeTrue())

		_, err = NewClaude(ClaudeConfig{})
		Expect(errors.Is(err, ErrNotConfigured)).To(BeTrue())

		_, err = NewGemini(context.Background(), GeminiConfig{APIKey: "changeme"})
		Expect(errors.Is(err, ErrNotConfigured)).To(BeTrue())
	})

	It("should report nil engines as unavailable", func() {
		var o *OpenAI
		var c *Claude
		var g *Gemini
		Expect(o.Available()).To(BeFalse())
		Expect(c.Available()).To(BeFalse())
		Expect(g.Available()).To(BeFalse())
	})
})
