package scanning

import (
	"context"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server *ghttp.Server
		model  *Ollama
		text   string
		err    error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var newErr error
		model, newErr = NewOllama(server.URL(), "llava")
		Expect(newErr).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = model.Generate(context.Background(), "read this", Image{Data: []byte("img"), MIMEType: "image/png"})
	})

	When("the chat call succeeds", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyJSONRepresenting(ollamaChatRequest{
					Model:  "llava",
					Stream: false,
					Format: "json",
					Messages: []ollamaMessage{
						{
							Role:    "system",
							Content: "You are an expert at reading sales receipts, payment summaries and vendor bills. Read all text in the image carefully and report it accurately.",
						},
						{Role: "user", Content: "read this", Images: []string{"aW1n"}},
					},
				}),
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Role: "assistant", Content: `{"totalAmount": 3}`},
					Done:    true,
				}),
			))
		})

		It("returns the message content", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal(`{"totalAmount": 3}`))
		})
	})

	When("the chat call fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, "model not found"))
		})

		It("returns the status and body", func() {
			Expect(err).To(MatchError(ContainSubstring("status 404")))
			Expect(err).To(MatchError(ContainSubstring("model not found")))
		})
	})
})

var _ = Describe("Ollama deadlines", func() {
	var server *ghttp.Server

	BeforeEach(func() {
		server = ghttp.NewServer()
		server.AppendHandlers(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		})
	})

	AfterEach(func() {
		server.CloseClientConnections()
		server.Close()
	})

	It("has no client timeout of its own", func() {
		model, err := NewOllama(server.URL(), "llava")
		Expect(err).NotTo(HaveOccurred())
		Expect(model.client.Timeout).To(BeZero())
	})

	It("stops when the caller's context ends", func() {
		model, err := NewOllama(server.URL(), "llava")
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err = model.Generate(ctx, "read this", Image{Data: []byte("img"), MIMEType: "image/png"})
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})
})
