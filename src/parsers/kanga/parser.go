// Package kanga parses trade history CSV exports from the Kanga exchange.
package kanga

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/identity"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/models"
)

// Exchange is the ledger partition name rows from this parser belong to.
const Exchange = "Kanga"

// Required columns of the Kanga export, exact and case-sensitive.
var requiredColumns = []string{"Data", "Para", "Strona", "Ilość", "Cena", "Opłata", "Suma"}

const (
	sideBuyer  = "Kupujący"
	sideSeller = "Sprzedający"
)

// currencyAliases maps Kanga's stablecoin markers to their canonical codes.
var currencyAliases = map[string]string{
	"PLN°": "oPLN",
	"EUR°": "oEUR",
	"USD°": "oUSD",
}

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
}

// Parser implements the parsers.Parser interface for Kanga CSV exports.
// Exported timestamps are local to loc and converted to UTC.
type Parser struct {
	loc *time.Location
}

func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{loc: loc}
}

// AliasCurrencies rewrites aliased currency codes inside a pair string,
// e.g. "BTC/PLN°" becomes "BTC/oPLN".
func AliasCurrencies(pair string) string {
	for alias, canonical := range currencyAliases {
		pair = strings.ReplaceAll(pair, alias, canonical)
	}
	return pair
}

// Parse reads a Kanga CSV export and converts its rows into canonical trades.
// Trades carry a content-hash ID and an empty OriginalID; batch-local hash
// collisions are disambiguated by the one-second timestamp bump.
func (p *Parser) Parse(file io.Reader) ([]models.Trade, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("kanga parser: failed to read CSV header: %w", err)
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
		return nil, fmt.Errorf("kanga parser: missing required columns: %s", strings.Join(missing, ", "))
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("kanga parser: failed to read CSV records: %w", err)
	}

	var trades []models.Trade
	usedHashes := make(map[string]struct{}, len(records))
	for i, record := range records {
		trade, err := p.parseRow(record, cols)
		if err != nil {
			return nil, fmt.Errorf("kanga parser: row %d: %w", i+2, err)
		}
		trade, err = identity.AssignHash(trade, usedHashes)
		if err != nil {
			return nil, fmt.Errorf("kanga parser: row %d: %w", i+2, err)
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

func (p *Parser) parseRow(record []string, cols map[string]int) (models.Trade, error) {
	field := func(name string) (string, error) {
		idx := cols[name]
		if idx >= len(record) {
			return "", fmt.Errorf("missing value for column %s", name)
		}
		return strings.TrimSpace(record[idx]), nil
	}

	dataStr, err := field("Data")
	if err != nil {
		return models.Trade{}, err
	}
	pairStr, err := field("Para")
	if err != nil {
		return models.Trade{}, err
	}
	sideStr, err := field("Strona")
	if err != nil {
		return models.Trade{}, err
	}
	quantityStr, err := field("Ilość")
	if err != nil {
		return models.Trade{}, err
	}
	priceStr, err := field("Cena")
	if err != nil {
		return models.Trade{}, err
	}
	feeStr, err := field("Opłata")
	if err != nil {
		return models.Trade{}, err
	}
	totalStr, err := field("Suma")
	if err != nil {
		return models.Trade{}, err
	}

	baseAmount, err := decimal.NewFromString(firstToken(quantityStr))
	if err != nil {
		return models.Trade{}, fmt.Errorf("unparsable Ilość %q: %w", quantityStr, err)
	}
	quoteAmount, err := decimal.NewFromString(firstToken(totalStr))
	if err != nil {
		return models.Trade{}, fmt.Errorf("unparsable Suma %q: %w", totalStr, err)
	}
	price, err := decimal.NewFromString(firstToken(priceStr))
	if err != nil {
		return models.Trade{}, fmt.Errorf("unparsable Cena %q: %w", priceStr, err)
	}

	feeParts := strings.Fields(feeStr)
	if len(feeParts) != 2 {
		return models.Trade{}, fmt.Errorf("unparsable Opłata %q: expected \"<amount> <currency>\"", feeStr)
	}
	fee, err := decimal.NewFromString(feeParts[0])
	if err != nil {
		return models.Trade{}, fmt.Errorf("unparsable Opłata amount %q: %w", feeParts[0], err)
	}
	feeCurrency := feeParts[1]

	pairParts := strings.Split(AliasCurrencies(pairStr), "/")
	if len(pairParts) != 2 {
		return models.Trade{}, fmt.Errorf("unparsable Para %q: expected BASE/QUOTE", pairStr)
	}
	baseCurrency, quoteCurrency := pairParts[0], pairParts[1]

	var boughtCurrency, soldCurrency string
	var boughtAmount, soldAmount decimal.Decimal
	switch sideStr {
	case sideBuyer:
		boughtCurrency = baseCurrency
		soldCurrency = quoteCurrency
		boughtAmount = baseAmount
		soldAmount = quoteAmount.Neg()
	case sideSeller:
		boughtCurrency = quoteCurrency
		soldCurrency = baseCurrency
		boughtAmount = quoteAmount
		soldAmount = baseAmount.Neg()
	default:
		return models.Trade{}, fmt.Errorf("unknown Strona %q", sideStr)
	}

	// Kanga exports count the fee twice: once folded into the amount on the
	// side the fee is charged in, once in the fee column. Undo the fold so
	// the signed amounts reflect the raw swap.
	if feeCurrency == soldCurrency {
		soldAmount = soldAmount.Sub(fee)
	}
	if feeCurrency == boughtCurrency {
		boughtAmount = boughtAmount.Add(fee)
	}

	utcTime, err := p.parseTime(dataStr)
	if err != nil {
		return models.Trade{}, err
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

func (p *Parser) parseTime(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, p.loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable Data %q", s)
}

func firstToken(s string) string {
	if fields := strings.Fields(s); len(fields) > 0 {
		return fields[0]
	}
	return s
}
