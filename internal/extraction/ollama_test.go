package extraction

import (
	"context"
	"errors"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server    *ghttp.Server
		extractor *Ollama
		img       *Image
		result    *Extraction
		err       error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		extractor, err = NewOllama(server.URL(), "qwen2-vl:7b", 2048)
		Expect(err).NotTo(HaveOccurred())
		img = &Image{Filename: "a.png", ContentType: "image/png", Data: pngFixture()}
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		result, err = extractor.Extract(context.Background(), img)
	})

	When("the model answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				func(w http.ResponseWriter, r *http.Request) {
					var req ollamaChatRequest
					Expect(decodeJSON(r, &req)).To(Succeed())
					Expect(req.Model).To(Equal("qwen2-vl:7b"))
					Expect(req.Stream).To(BeFalse())
					Expect(req.Options.NumPredict).To(Equal(2048))
					Expect(req.Messages).To(HaveLen(1))
					Expect(req.Messages[0].Images).To(ConsistOf(EncodeImage(img.Data)))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"model":             "qwen2-vl:7b",
					"message":           map[string]any{"role": "assistant", "content": "## Invoice 42\n"},
					"done":              true,
					"prompt_eval_count": 300,
					"eval_count":        120,
				}),
			))
		})

		It("should return the content unchanged", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Text).To(Equal("## Invoice 42\n"))
		})

		It("should derive usage from the eval counts", func() {
			Expect(result.Usage).To(Equal(Usage{PromptTokens: 300, CompletionTokens: 120, TotalTokens: 420}))
		})
	})

	When("the model is missing", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, `{"error":"model 'qwen2-vl:7b' not found"}`))
		})

		It("should return a ProviderError", func() {
			var providerErr *ProviderError
			Expect(errors.As(err, &providerErr)).To(BeTrue())
			Expect(providerErr.StatusCode).To(Equal(http.StatusNotFound))
			Expect(err.Error()).To(ContainSubstring("not found"))
		})
	})

	When("the response has no message", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"done":true}`))
		})

		It("should return ErrMalformedResponse", func() {
			Expect(errors.Is(err, ErrMalformedResponse)).To(BeTrue())
		})
	})
})

var _ = Describe("NewOllama", func() {
	It("applies defaults", func() {
		o, err := NewOllama("", "", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(o.baseURL).To(Equal(DefaultOllamaURL))
		Expect(o.model).To(Equal(DefaultOllamaModel))
		Expect(o.maxTokens).To(Equal(DefaultMaxTokens))
	})
})
