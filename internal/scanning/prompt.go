package scanning

import (
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/shopspring/decimal"
)

const receiptInstructions = `Analyze this sales receipt/invoice image and extract the following information in JSON format:
{
  "date": "YYYY-MM-DD format",
  "totalAmount": number (total amount paid),
  "items": [
    {
      "name": "item name",
      "quantity": number,
      "price": number (unit price)
    }
  ],
  "paymentMethod": "Cash/Card/UPI/Other",
  "notes": "any additional notes"
}

Extract all visible items. If information is missing, use reasonable defaults or null.
Amounts must be numbers, not strings, without currency symbols.`

const billInstructions = `You are reviewing a vendor bill submitted to a small business for payment approval. Read every piece of text in the image and extract:

- vendor_name: the business that issued the bill
- bill_number: the invoice or bill number, or null
- bill_date: the bill date in YYYY-MM-DD format, or null
- total_amount: the final amount payable as a number
- tax_amount: the total tax (GST, VAT, sales tax) as a number, or null
- currency: the ISO 4217 currency code (for example INR, USD)
- payment_mode: one of cash, card, upi, bank_transfer, unknown
- expense_category: one of raw_material, utility, rent, maintenance, packaging, others
- source_document_required: true when the bill is a tax invoice that must be kept for audit`

const jsonOnlyInstruction = `Return ONLY the JSON object, no additional text.`

var (
	receiptPrompt = buildPrompt(receiptInstructions, &ExtractedReceipt{})
	billPrompt    = buildPrompt(billInstructions, &ExtractedBill{})
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

// schemaFor reflects a JSON schema for v, describing decimals as plain numbers
func schemaFor(v any) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == decimalType || (t.Kind() == reflect.Pointer && t.Elem() == decimalType) {
				return &jsonschema.Schema{Type: "number"}
			}
			return nil
		},
	}
	return reflector.Reflect(v)
}

func buildPrompt(instructions string, v any) string {
	schema, err := json.MarshalIndent(schemaFor(v), "", "  ")
	if err != nil {
		panic(err)
	}
	return instructions + "\n\nThe JSON object must match this JSON Schema:\n" + string(schema) + "\n\n" + jsonOnlyInstruction
}
