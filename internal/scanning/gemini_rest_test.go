package scanning

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("GeminiREST", func() {
	var (
		server *ghttp.Server
		model  *GeminiREST
		text   string
		err    error
		body   geminiRequest
	)

	const path = "/v1beta/models/gemini-1.5-flash:generateContent"

	BeforeEach(func() {
		server = ghttp.NewServer()
		var newErr error
		model, newErr = NewGeminiREST(server.URL()+path, "secret-key", nil)
		Expect(newErr).NotTo(HaveOccurred())
		body = geminiRequest{}
	})

	AfterEach(func() {
		server.Close()
	})

	captureBody := func(w http.ResponseWriter, r *http.Request) {
		raw, readErr := io.ReadAll(r.Body)
		Expect(readErr).NotTo(HaveOccurred())
		Expect(json.Unmarshal(raw, &body)).To(Succeed())
	}

	JustBeforeEach(func() {
		text, err = model.Generate(context.Background(), "extract please", Image{Data: []byte("img"), MIMEType: "image/png"})
	})

	When("the API answers with a candidate", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, path, "key=secret-key"),
				ghttp.VerifyContentType("application/json"),
				captureBody,
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"candidates": []map[string]any{{
						"content": map[string]any{
							"parts": []map[string]any{{"text": "```json\n{\"totalAmount\": 1}\n```"}},
						},
					}},
				}),
			))
		})

		It("returns the candidate text", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("```json\n{\"totalAmount\": 1}\n```"))
		})

		It("sends the prompt and the inline base64 image", func() {
			Expect(body.Contents).To(HaveLen(1))
			parts := body.Contents[0].Parts
			Expect(parts).To(HaveLen(2))
			Expect(parts[0].Text).To(Equal("extract please"))
			Expect(parts[1].InlineData).NotTo(BeNil())
			Expect(parts[1].InlineData.MIMEType).To(Equal("image/png"))
			Expect(parts[1].InlineData.Data).To(Equal(base64.StdEncoding.EncodeToString([]byte("img"))))
		})
	})

	When("the API answers with no candidates", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"candidates": []any{}}))
		})

		It("returns an empty completion", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(BeEmpty())
		})
	})

	When("the API returns an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusForbidden, `{"error": {"message": "API key not valid"}}`))
		})

		It("returns an error with the status", func() {
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("status 403"))
			Expect(err.Error()).To(ContainSubstring("API key not valid"))
		})
	})

	When("the API returns garbage", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, "<html>"))
		})

		It("returns a decode error", func() {
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("decoding response"))
		})
	})
})

var _ = Describe("NewGeminiREST", func() {
	It("requires an API key", func() {
		_, err := NewGeminiREST("", "", nil)
		Expect(err).To(HaveOccurred())
	})

	It("defaults the endpoint", func() {
		model, err := NewGeminiREST("", "k", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(model.endpoint).To(Equal(DefaultGeminiEndpoint))
	})
})
