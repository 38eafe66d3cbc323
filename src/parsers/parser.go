// Package parsers selects the offline trade normalizer for an import source.
package parsers

import (
	"fmt"
	"io"
	"time"

	binanceparser "github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/parsers/binance"
	kangaparser "github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/parsers/kanga"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/models"
)

// Parser converts one exported file into canonical trades. A parser either
// returns every row normalized or fails the whole import; partially parsed
// rows are never returned.
type Parser interface {
	Parse(file io.Reader) ([]models.Trade, error)
}

// GetParser returns the parser registered for the given source. loc is the
// local timezone exported timestamps are interpreted in; sources whose
// exports are already UTC ignore it.
func GetParser(source string, loc *time.Location) (Parser, error) {
	switch source {
	case "kanga":
		return kangaparser.NewParser(loc), nil
	case "binance":
		return binanceparser.NewParser(), nil
	default:
		return nil, fmt.Errorf("unsupported import source: %s", source)
	}
}
