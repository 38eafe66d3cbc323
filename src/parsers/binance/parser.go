// Package binance parses trade history CSV exports from the Binance exchange.
package binance

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/identity"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/models"
)

// Exchange is the ledger partition name rows from this parser belong to.
const Exchange = "Binance"

// Required columns of the Binance export, exact and case-sensitive.
var requiredColumns = []string{"Date(UTC)", "Pair", "Side", "Price", "Executed", "Amount", "Fee"}

const dateLayout = "2006-01-02 15:04:05"

// Parser implements the parsers.Parser interface for Binance CSV exports.
// Export timestamps are already UTC.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse reads a Binance CSV export and converts its rows into canonical
// trades. Trades carry a content-hash ID and an empty OriginalID.
func (p *Parser) Parse(file io.Reader) ([]models.Trade, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("binance parser: failed to read CSV header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("binance parser: missing required columns: %s", strings.Join(missing, ", "))
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("binance parser: failed to read CSV records: %w", err)
	}

	var trades []models.Trade
	usedHashes := make(map[string]struct{}, len(records))
	for i, record := range records {
		trade, err := parseRow(record, cols)
		if err != nil {
			return nil, fmt.Errorf("binance parser: row %d: %w", i+2, err)
		}
		trade, err = identity.AssignHash(trade, usedHashes)
		if err != nil {
			return nil, fmt.Errorf("binance parser: row %d: %w", i+2, err)
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

func parseRow(record []string, cols map[string]int) (models.Trade, error) {
	field := func(name string) (string, error) {
		idx := cols[name]
		if idx >= len(record) {
			return "", fmt.Errorf("missing value for column %s", name)
		}
		return strings.TrimSpace(record[idx]), nil
	}

	dateStr, err := field("Date(UTC)")
	if err != nil {
		return models.Trade{}, err
	}
	sideStr, err := field("Side")
	if err != nil {
		return models.Trade{}, err
	}
	priceStr, err := field("Price")
	if err != nil {
		return models.Trade{}, err
	}
	executedStr, err := field("Executed")
	if err != nil {
		return models.Trade{}, err
	}
	amountStr, err := field("Amount")
	if err != nil {
		return models.Trade{}, err
	}
	feeStr, err := field("Fee")
	if err != nil {
		return models.Trade{}, err
	}

	utcTime, err := time.ParseInLocation(dateLayout, dateStr, time.UTC)
	if err != nil {
		return models.Trade{}, fmt.Errorf("unparsable Date(UTC) %q: %w", dateStr, err)
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return models.Trade{}, fmt.Errorf("unparsable Price %q: %w", priceStr, err)
	}
	executed, executedCurrency, err := splitAmountCurrency(executedStr)
	if err != nil {
		return models.Trade{}, fmt.Errorf("unparsable Executed %q: %w", executedStr, err)
	}
	amount, amountCurrency, err := splitAmountCurrency(amountStr)
	if err != nil {
		return models.Trade{}, fmt.Errorf("unparsable Amount %q: %w", amountStr, err)
	}
	fee, feeCurrency, err := splitAmountCurrency(feeStr)
	if err != nil {
		return models.Trade{}, fmt.Errorf("unparsable Fee %q: %w", feeStr, err)
	}

	var boughtCurrency, soldCurrency string
	var boughtAmount, soldAmount decimal.Decimal
	switch strings.ToUpper(sideStr) {
	case "BUY":
		boughtCurrency = executedCurrency
		soldCurrency = amountCurrency
		boughtAmount = executed
		soldAmount = amount.Neg()
	case "SELL":
		boughtCurrency = amountCurrency
		soldCurrency = executedCurrency
		boughtAmount = amount
		soldAmount = executed.Neg()
	default:
		return models.Trade{}, fmt.Errorf("unknown Side %q", sideStr)
	}

	// Same double-count quirk as the Kanga export: the fee is folded into
	// the amount on its own side in addition to the fee column.
	if feeCurrency == soldCurrency {
		soldAmount = soldAmount.Sub(fee)
	}
	if feeCurrency == boughtCurrency {
		boughtAmount = boughtAmount.Add(fee)
	}

	return models.Trade{
		OriginalID:     "",
		Exchange:       Exchange,
		UTCTime:        utcTime,
		BoughtCurrency: boughtCurrency,
		BoughtAmount:   boughtAmount,
		SoldCurrency:   soldCurrency,
		SoldAmount:     soldAmount,
		Price:          price,
		FeeCurrency:    feeCurrency,
		FeeAmount:      fee,
	}, nil
}

// splitAmountCurrency splits values like "0.00120000BTC" into the numeric
// amount and the trailing currency code. The export format gives no separator,
// so tickers starting with a digit ("1.51INCH") cannot be told apart from the
// amount and split one character short.
func splitAmountCurrency(s string) (decimal.Decimal, string, error) {
	split := len(s)
	for split > 0 && unicode.IsLetter(rune(s[split-1])) {
		split--
	}
	if split == 0 || split == len(s) {
		return decimal.Decimal{}, "", fmt.Errorf("expected \"<amount><currency>\"")
	}
	amount, err := decimal.NewFromString(s[:split])
	if err != nil {
		return decimal.Decimal{}, "", err
	}
	return amount, s[split:], nil
}
