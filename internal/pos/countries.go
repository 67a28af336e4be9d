package pos

import "strings"

// Country is an entry of the outlet registration catalogue
type Country struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	Currency string `json:"currency"`
}

// Countries lists the countries an outlet can be registered in
var Countries = []Country{
	{Name: "United States", Code: "US", Currency: "USD"},
	{Name: "India", Code: "IN", Currency: "INR"},
	{Name: "United Kingdom", Code: "GB", Currency: "GBP"},
	{Name: "Eurozone", Code: "EU", Currency: "EUR"},
	{Name: "Canada", Code: "CA", Currency: "CAD"},
	{Name: "Australia", Code: "AU", Currency: "AUD"},
	{Name: "Japan", Code: "JP", Currency: "JPY"},
	{Name: "China", Code: "CN", Currency: "CNY"},
	{Name: "Switzerland", Code: "CH", Currency: "CHF"},
	{Name: "New Zealand", Code: "NZ", Currency: "NZD"},
	{Name: "Singapore", Code: "SG", Currency: "SGD"},
	{Name: "Hong Kong", Code: "HK", Currency: "HKD"},
	{Name: "South Korea", Code: "KR", Currency: "KRW"},
	{Name: "Sweden", Code: "SE", Currency: "SEK"},
	{Name: "Norway", Code: "NO", Currency: "NOK"},
	{Name: "Mexico", Code: "MX", Currency: "MXN"},
	{Name: "Brazil", Code: "BR", Currency: "BRL"},
	{Name: "Russia", Code: "RU", Currency: "RUB"},
	{Name: "South Africa", Code: "ZA", Currency: "ZAR"},
	{Name: "Turkey", Code: "TR", Currency: "TRY"},
	{Name: "Saudi Arabia", Code: "SA", Currency: "SAR"},
	{Name: "United Arab Emirates", Code: "AE", Currency: "AED"},
	{Name: "Thailand", Code: "TH", Currency: "THB"},
	{Name: "Malaysia", Code: "MY", Currency: "MYR"},
	{Name: "Indonesia", Code: "ID", Currency: "IDR"},
	{Name: "Vietnam", Code: "VN", Currency: "VND"},
	{Name: "Philippines", Code: "PH", Currency: "PHP"},
}

// LookupCountry finds a country by name or two-letter code, ignoring case
func LookupCountry(nameOrCode string) (Country, bool) {
	key := strings.TrimSpace(nameOrCode)
	for _, c := range Countries {
		if strings.EqualFold(c.Name, key) || strings.EqualFold(c.Code, key) {
			return c, true
		}
	}
	return Country{}, false
}
