package scanning

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockModel is a mock implementation of Model
type mockModel struct {
	text        string
	err         error
	prompts     []string
	images      []Image
	sawDeadline bool
	closed      bool
}

func (m *mockModel) Generate(ctx context.Context, prompt string, img Image) (string, error) {
	m.prompts = append(m.prompts, prompt)
	m.images = append(m.images, img)
	_, m.sawDeadline = ctx.Deadline()
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

func (m *mockModel) Close() error {
	m.closed = true
	return nil
}

func tinyJPEG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	Expect(jpeg.Encode(&buf, img, nil)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Extractor", func() {
	var (
		model     *mockModel
		extractor *Extractor
		img       Image
		ctx       context.Context
	)

	BeforeEach(func() {
		model = &mockModel{}
		extractor = NewExtractor(model, 0)
		img = Image{Data: []byte("png bytes"), MIMEType: "image/png"}
		ctx = context.Background()
	})

	Describe("ScanReceipt", func() {
		var receipt *ExtractedReceipt

		JustBeforeEach(func() {
			receipt = extractor.ScanReceipt(ctx, img)
		})

		When("the model returns fenced JSON", func() {
			BeforeEach(func() {
				model.text = "```json\n" + teaReceiptJSON + "\n```"
			})

			It("returns the receipt", func() {
				Expect(receipt).NotTo(BeNil())
				Expect(receipt.TotalAmount.String()).To(Equal("500"))
			})

			It("sends the receipt prompt", func() {
				Expect(model.prompts).To(HaveLen(1))
				Expect(model.prompts[0]).To(ContainSubstring(`"totalAmount"`))
				Expect(model.prompts[0]).To(ContainSubstring("Return ONLY the JSON object"))
			})

			It("passes PNG images through unchanged", func() {
				Expect(model.images[0].Data).To(Equal([]byte("png bytes")))
				Expect(model.images[0].MIMEType).To(Equal("image/png"))
			})
		})

		When("the model returns text that is not JSON", func() {
			BeforeEach(func() {
				model.text = "Sorry, the image is too blurry."
			})

			It("returns nil instead of failing", func() {
				Expect(receipt).To(BeNil())
			})
		})

		When("the model returns malformed JSON", func() {
			BeforeEach(func() {
				model.text = `{"totalAmount": 500, "items": [}`
			})

			It("returns nil", func() {
				Expect(receipt).To(BeNil())
			})
		})

		When("the model returns an empty completion", func() {
			BeforeEach(func() {
				model.text = "   "
			})

			It("returns nil", func() {
				Expect(receipt).To(BeNil())
			})
		})

		When("the model call fails", func() {
			BeforeEach(func() {
				model.err = errors.New("gemini API error (status 500)")
			})

			It("returns nil", func() {
				Expect(receipt).To(BeNil())
			})
		})

		When("the image cannot be decoded", func() {
			BeforeEach(func() {
				img = Image{Data: []byte("not an image"), MIMEType: "image/jpeg"}
				model.text = teaReceiptJSON
			})

			It("returns nil without calling the model", func() {
				Expect(receipt).To(BeNil())
				Expect(model.prompts).To(BeEmpty())
			})
		})

		When("the image is a JPEG", func() {
			BeforeEach(func() {
				img = Image{Data: tinyJPEG(), MIMEType: "image/jpeg"}
				model.text = teaReceiptJSON
			})

			It("converts it to PNG before sending", func() {
				Expect(receipt).NotTo(BeNil())
				Expect(model.images[0].MIMEType).To(Equal("image/png"))
				Expect(model.images[0].Data[:4]).To(Equal([]byte("\x89PNG")))
			})
		})

		When("a timeout is configured", func() {
			BeforeEach(func() {
				extractor = NewExtractor(model, time.Minute)
				model.text = teaReceiptJSON
			})

			It("bounds the model call with a deadline", func() {
				Expect(model.sawDeadline).To(BeTrue())
			})
		})
	})

	Describe("ScanBill", func() {
		var bill *ExtractedBill

		JustBeforeEach(func() {
			bill = extractor.ScanBill(ctx, img)
		})

		When("the bill has a positive total", func() {
			BeforeEach(func() {
				model.text = `{"vendor_name": "Dairy Products Ltd.", "total_amount": 8900, "currency": "INR", "payment_mode": "upi", "expense_category": "raw_material"}`
			})

			It("grades it high", func() {
				Expect(bill).NotTo(BeNil())
				Expect(bill.ConfidenceScore).To(Equal(0.92))
			})

			It("sends the bill prompt", func() {
				Expect(model.prompts[0]).To(ContainSubstring("vendor_name"))
				Expect(strings.Contains(model.prompts[0], "confidence_score")).To(BeFalse())
			})
		})

		When("the bill total is zero", func() {
			BeforeEach(func() {
				model.text = `{"vendor_name": "Dairy Products Ltd.", "total_amount": 0}`
			})

			It("grades it medium", func() {
				Expect(bill).NotTo(BeNil())
				Expect(bill.ConfidenceScore).To(Equal(0.75))
			})
		})

		When("the bill fails validation", func() {
			BeforeEach(func() {
				model.text = `{"total_amount": 100}`
			})

			It("returns nil", func() {
				Expect(bill).To(BeNil())
			})
		})
	})

	Describe("Close", func() {
		It("closes the model", func() {
			Expect(extractor.Close()).To(Succeed())
			Expect(model.closed).To(BeTrue())
		})
	})
})

var _ = Describe("Confidence", func() {
	It("maps levels to the legacy scores", func() {
		Expect(ConfidenceHigh.Score()).To(Equal(0.92))
		Expect(ConfidenceMedium.Score()).To(Equal(0.75))
		Expect(ConfidenceLow.Score()).To(Equal(0.5))
	})

	It("encodes as the level name", func() {
		text, err := ConfidenceMedium.MarshalText()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(text)).To(Equal("medium"))
	})
})
