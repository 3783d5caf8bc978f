package importer

import (
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/pouch-ops/internal/types"
)

var testRates = map[string]decimal.Decimal{
	"USD": decimal.NewFromInt(1),
	"GBP": decimal.RequireFromString("1.27"),
	"EUR": decimal.RequireFromString("1.08"),
}

var testCodes = map[string]string{
	"US": "United States",
	"JM": "Jamaica",
}

func TestConvertUSD(t *testing.T) {
	tests := []struct {
		name     string
		gross    string
		currency string
		wantUSD  string
		known    bool
	}{
		{"thousands separator GBP", "1,234.56", "GBP", "1567.89", true},
		{"plain USD", "250.00", "USD", "250", true},
		{"lower-case code", "10", "eur", "10.8", true},
		{"half rounds away from zero", "0.125", "USD", "0.13", true},
		{"unknown currency is 1:1", "42.10", "XYZ", "42.1", false},
		{"empty currency is 1:1", "5", "", "5", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, usd, known, err := ConvertUSD(tt.gross, tt.currency, testRates)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.wantUSD).Equal(usd), "got %s", usd)
			assert.Equal(t, tt.known, known)
		})
	}
}

func TestConvertUSD_Invalid(t *testing.T) {
	for _, gross := range []string{"", "abc", "12.3.4"} {
		_, _, _, err := ConvertUSD(gross, "USD", testRates)
		assert.Error(t, err, gross)
	}
}

func TestResolveCountry(t *testing.T) {
	tests := []struct {
		name     string
		country  string
		shipping string
		code     string
		want     string
		ok       bool
	}{
		{"column wins", "Canada", "1 Main St, Kingston, Jamaica", "JM", "Canada", true},
		{"address suffix", "", "1 King St, Kingston, Jamaica", "US", "Jamaica", true},
		{"address suffix with spaces", "", "Unit 4, Harbour Rd ,  New Zealand  ", "", "New Zealand", true},
		{"postcode suffix falls through to code", "", "12 High St, London SW1A 1AA", "JM", "Jamaica", true},
		{"no address falls through to code", "", "", "jm", "Jamaica", true},
		{"everything fails", "", "no commas here", "ZZ", "", false},
		{"all empty", "", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveCountry(tt.country, tt.shipping, tt.code, testCodes)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestParseTimestamp_DayBeforeMonth(t *testing.T) {
	ts := ParseTimestamp("03/04/2024", "09:30:15", "", time.UTC)
	require.NotNil(t, ts)

	assert.Equal(t, 2024, ts.Year())
	assert.Equal(t, time.April, ts.Month())
	assert.Equal(t, 3, ts.Day())
	assert.Equal(t, 9, ts.Hour())
	assert.Equal(t, 30, ts.Minute())
	assert.Equal(t, 15, ts.Second())
}

func TestParseTimestamp_Zones(t *testing.T) {
	ts := ParseTimestamp("15/03/2024", "10:00:00", "PDT", time.UTC)
	require.NotNil(t, ts)
	assert.Equal(t, "America/Los_Angeles", ts.Location().String())
	assert.Equal(t, 17, ts.UTC().Hour())

	ts = ParseTimestamp("15/03/2024", "10:00:00", "Europe/London", time.UTC)
	require.NotNil(t, ts)
	assert.Equal(t, "Europe/London", ts.Location().String())

	kingston, err := time.LoadLocation("America/Jamaica")
	require.NoError(t, err)
	ts = ParseTimestamp("15/03/2024", "10:00:00", "Mars/Olympus", kingston)
	require.NotNil(t, ts)
	assert.Equal(t, kingston, ts.Location())
}

func TestParseTimestamp_Invalid(t *testing.T) {
	assert.Nil(t, ParseTimestamp("", "10:00:00", "", time.UTC))
	assert.Nil(t, ParseTimestamp("2024-03-15", "10:00:00", "", time.UTC))
	assert.Nil(t, ParseTimestamp("31/02/2024", "10:00:00", "", time.UTC))
	assert.Nil(t, ParseTimestamp("15/03/2024", "25:00:00", "", time.UTC))

	midnight := ParseTimestamp("1/2/2024", "", "", time.UTC)
	require.NotNil(t, midnight)
	assert.True(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC).Equal(*midnight))
}

func TestNormalize(t *testing.T) {
	n := NewNormalizer(testRates, testCodes, time.UTC)

	tx, err := n.Normalize(types.PayPalRow{
		Line:          2,
		TransactionID: "TXN9",
		Type:          "General Payment",
		FromEmail:     "  Bob@Example.COM ",
		Gross:         "1,234.56",
		Currency:      "GBP",
		Name:          "Bob",
		CountryCode:   "JM",
		Date:          "15/03/2024",
		Time:          "10:00:00",
	}, "a.csv")
	require.NoError(t, err)

	assert.Equal(t, "bob@example.com", tx.Email)
	assert.Equal(t, "General Payment", tx.Subject)
	assert.Equal(t, "1567.89", tx.AmountUSD.StringFixed(2))
	assert.Equal(t, types.CustomerFull, tx.CustomerType)
	assert.Equal(t, "Jamaica", tx.Country)
	assert.True(t, tx.HasCountry)
	assert.Equal(t, "a.csv", tx.SourceFile)
	require.NotNil(t, tx.Timestamp)

	_, err = n.Normalize(types.PayPalRow{Line: 7, TransactionID: "X", Gross: "n/a"}, "a.csv")
	var rowErr *types.RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, 7, rowErr.Line)
	assert.Equal(t, types.ColGross, rowErr.Column)
}

func TestBuildInquiry(t *testing.T) {
	runTime := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	created := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	customer := types.Transaction{
		PayPalTransactionID: "TXN1",
		Name:                "Alice",
		Email:               "a@x.com",
		Type:                "General Payment",
		Subject:             "Stand-up pouch 500",
		ItemTitle:           "Stand-up pouch 500",
		GrossAmount:         decimal.RequireFromString("250"),
		Currency:            "USD",
		AmountUSD:           decimal.RequireFromString("250"),
		KnownCurrency:       true,
		CustomerType:        types.CustomerFull,
		Country:             "Jamaica",
		HasCountry:          true,
		ShippingAddress:     "1 King St, Kingston, Jamaica",
		Timestamp:           &created,
	}

	inq := BuildInquiry(customer, "paypal", runTime)
	assert.Equal(t, "Alice", inq.Name)
	assert.Equal(t, "paypal", inq.Source)
	assert.Equal(t, "new", inq.Status)
	assert.Equal(t, "high", inq.Priority)
	assert.Equal(t, "Stand-up pouch 500", inq.Message)
	assert.Equal(t, "Stand-up pouch 500", inq.PackagingType)
	assert.Equal(t, created, inq.CreatedAt)
	assert.Equal(t, runTime, inq.UpdatedAt)
	assert.Equal(t,
		"Classification: customer | Amount: 250.00 USD | USD: 250.00 | PayPal ID: TXN1 | Address: 1 King St, Kingston, Jamaica | Country: Jamaica",
		inq.Notes)

	sample := types.Transaction{
		PayPalTransactionID: "TXN2",
		Email:               "s@x.com",
		Type:                "Mobile Payment",
		Subject:             "Mobile Payment",
		GrossAmount:         decimal.RequireFromString("12"),
		Currency:            "XYZ",
		AmountUSD:           decimal.RequireFromString("12"),
		CustomerType:        types.CustomerSample,
	}

	inq = BuildInquiry(sample, "paypal", runTime)
	assert.Equal(t, "medium", inq.Priority)
	assert.Equal(t, "PayPal transaction TXN2", inq.Message)
	assert.Equal(t, runTime, inq.CreatedAt)
	assert.True(t, strings.Contains(inq.Notes, "converted 1:1"))
	assert.NotContains(t, inq.Notes, "Address:")
}
