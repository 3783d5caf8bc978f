// =============================================================================
// pouch-ops - Shared Types
// =============================================================================
//
// This package holds the types shared by the importer stages so that the
// filter, the normalizer and the store clients do not import each other:
//   - PayPalRow   : one typed row of a PayPal activity export
//   - Transaction : a normalized, classified sale ready for the CRM
//   - CustomerType: the sample/customer classification
//
// =============================================================================

package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYPAL EXPORT COLUMNS
// =============================================================================

// Column names in PayPal's standard transaction export.
const (
	ColTransactionID = "Transaction ID"
	ColType          = "Type"
	ColFromEmail     = "From Email Address"
	ColGross         = "Gross"
	ColCurrency      = "Currency"
	ColName          = "Name"
	ColPhone         = "Contact Phone Number"
	ColItemTitle     = "Item Title"
	ColCountry       = "Country"
	ColShipping      = "Shipping Address"
	ColCountryCode   = "Country Code"
	ColDate          = "Date"
	ColTime          = "Time"
	ColTimeZone      = "TimeZone"
)

// =============================================================================
// ROW SCHEMA
// =============================================================================

// PayPalRow is one data row of a PayPal export, with the columns the importer
// reads pulled out of the untyped CSV map.
type PayPalRow struct {
	// Line is the line in the source file, for error reporting.
	Line int

	TransactionID string
	Type          string
	FromEmail     string
	Gross         string
	Currency      string
	Name          string
	Phone         string
	ItemTitle     string
	Country       string
	Shipping      string
	CountryCode   string
	Date          string
	Time          string
	TimeZone      string
}

// RowError reports a row that cannot be turned into a PayPalRow.
type RowError struct {
	Line   int
	Column string
	Reason string
}

// Error implements the error interface.
func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: column %q %s", e.Line, e.Column, e.Reason)
}

// ParseRow converts a header -> value map into a PayPalRow.
//
// Only the transaction id is structurally required: without it the row can
// neither be deduplicated nor traced back to PayPal. Every other column may be
// absent and is judged later by the filter and normalizer.
func ParseRow(line int, fields map[string]string) (PayPalRow, error) {
	get := func(col string) string {
		return strings.TrimSpace(fields[col])
	}

	row := PayPalRow{
		Line:          line,
		TransactionID: get(ColTransactionID),
		Type:          get(ColType),
		FromEmail:     get(ColFromEmail),
		Gross:         get(ColGross),
		Currency:      strings.ToUpper(get(ColCurrency)),
		Name:          get(ColName),
		Phone:         get(ColPhone),
		ItemTitle:     get(ColItemTitle),
		Country:       get(ColCountry),
		Shipping:      get(ColShipping),
		CountryCode:   strings.ToUpper(get(ColCountryCode)),
		Date:          get(ColDate),
		Time:          get(ColTime),
		TimeZone:      get(ColTimeZone),
	}

	if row.TransactionID == "" {
		return PayPalRow{}, &RowError{Line: line, Column: ColTransactionID, Reason: "is empty"}
	}

	return row, nil
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// CustomerType is the two-tier classification of an imported sale.
type CustomerType string

const (
	// CustomerSample is a sample-pack purchase (under the threshold).
	CustomerSample CustomerType = "sample"

	// CustomerFull is a production order.
	CustomerFull CustomerType = "customer"
)

// SampleThresholdUSD is the exclusive upper bound of a sample purchase.
var SampleThresholdUSD = decimal.NewFromInt(100)

// Classify returns CustomerSample when amountUSD < 100, else CustomerFull.
func Classify(amountUSD decimal.Decimal) CustomerType {
	if amountUSD.LessThan(SampleThresholdUSD) {
		return CustomerSample
	}
	return CustomerFull
}

// =============================================================================
// TRANSACTION
// =============================================================================

// Transaction is a filtered, normalized PayPal sale.
type Transaction struct {
	// PayPalTransactionID is the dedup key, stable across re-imports.
	PayPalTransactionID string

	Name  string
	Email string // always lower-cased
	Phone string

	// Type is the PayPal transaction type; Subject is the item title when
	// present, else the type.
	Type      string
	Subject   string
	ItemTitle string

	// GrossAmount is the original-currency amount, commas removed.
	GrossAmount decimal.Decimal
	Currency    string

	// AmountUSD is GrossAmount converted with the static rate table and
	// rounded to cents.
	AmountUSD decimal.Decimal

	// KnownCurrency is false when Currency was missing from the rate table
	// and a 1:1 rate was assumed.
	KnownCurrency bool

	CustomerType CustomerType

	// Country is empty when HasCountry is false.
	Country    string
	HasCountry bool

	ShippingAddress string

	// Timestamp is nil when the Date/Time columns could not be parsed.
	Timestamp *time.Time

	SourceFile string
}
