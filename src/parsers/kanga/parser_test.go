package kanga

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/logger"
	"github.com/WisniowskiMariusz/CryptoPortfolioTracker/src/models"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	m.Run()
}

const header = "Data,Para,Strona,Ilość,Cena,Opłata,Suma\n"

func parse(t *testing.T, csv string) ([]models.Trade, error) {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)
	return NewParser(loc).Parse(strings.NewReader(csv))
}

func TestParseBuyerRow(t *testing.T) {
	// Fee charged in the quote (sold) currency: the export folded it into
	// Suma, so the parser subtracts it again.
	csv := header + "2024-05-10 15:30,BTC/PLN,Kupujący,0.5 BTC,250000 PLN,12.5 PLN,125000 PLN\n"
	trades, err := parse(t, csv)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	tr := trades[0]
	assert.Equal(t, "BTC", tr.BoughtCurrency)
	assert.Equal(t, "0.5", tr.BoughtAmount.String())
	assert.Equal(t, "PLN", tr.SoldCurrency)
	assert.Equal(t, "-125012.5", tr.SoldAmount.String())
	assert.Equal(t, "250000", tr.Price.String())
	assert.Equal(t, "PLN", tr.FeeCurrency)
	assert.Equal(t, "12.5", tr.FeeAmount.String())
	assert.Empty(t, tr.OriginalID)
	assert.NotEmpty(t, tr.ID)
	// Warsaw is UTC+2 in May.
	assert.Equal(t, time.Date(2024, 5, 10, 13, 30, 0, 0, time.UTC), tr.UTCTime)
}

func TestParseSellerRow(t *testing.T) {
	// Fee charged in the quote (bought) currency: the export deducted it
	// from Suma, so the parser adds it back.
	csv := header + "2024-01-15 10:00,ETH/USDT,Sprzedający,2 ETH,3000 USDT,6 USDT,6000 USDT\n"
	trades, err := parse(t, csv)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	tr := trades[0]
	assert.Equal(t, "USDT", tr.BoughtCurrency)
	assert.Equal(t, "6006", tr.BoughtAmount.String())
	assert.Equal(t, "ETH", tr.SoldCurrency)
	assert.Equal(t, "-2", tr.SoldAmount.String())
	// Warsaw is UTC+1 in January.
	assert.Equal(t, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC), tr.UTCTime)
}

func TestParseAliasesPairOnly(t *testing.T) {
	// Aliasing rewrites the pair; the fee column keeps the export's raw
	// code, so the fee-fold correction does not fire across the alias.
	csv := header + "2024-05-10 15:30,BTC/PLN°,Kupujący,0.5 BTC,250000 PLN°,12.5 PLN°,125000 PLN°\n"
	trades, err := parse(t, csv)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	tr := trades[0]
	assert.Equal(t, "oPLN", tr.SoldCurrency)
	assert.Equal(t, "PLN°", tr.FeeCurrency)
	assert.Equal(t, "-125000", tr.SoldAmount.String())
}

func TestParseMissingColumn(t *testing.T) {
	csv := "Data,Para,Strona,Ilość,Cena,Opłata\n2024-05-10 15:30,BTC/PLN,Kupujący,0.5 BTC,250000 PLN,12.5 PLN\n"
	_, err := parse(t, csv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required columns")
	assert.Contains(t, err.Error(), "Suma")
}

func TestParseBadRowFailsWholeImport(t *testing.T) {
	csv := header +
		"2024-05-10 15:30,BTC/PLN,Kupujący,0.5 BTC,250000 PLN,12.5 PLN,125000 PLN\n" +
		"2024-05-11 15:30,BTC/PLN,Obserwator,0.5 BTC,250000 PLN,12.5 PLN,125000 PLN\n"
	_, err := parse(t, csv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 3")
	assert.Contains(t, err.Error(), "Obserwator")
}

func TestParseIdenticalRowsGetDistinctHashes(t *testing.T) {
	row := "2024-05-10 15:30,BTC/PLN,Kupujący,0.5 BTC,250000 PLN,12.5 PLN,125000 PLN\n"
	trades, err := parse(t, header+row+row)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.NotEqual(t, trades[0].ID, trades[1].ID)
	assert.Equal(t, trades[0].UTCTime.Add(time.Second), trades[1].UTCTime)
}

func TestAliasCurrencies(t *testing.T) {
	assert.Equal(t, "BTC/oPLN", AliasCurrencies("BTC/PLN°"))
	assert.Equal(t, "oEUR/oUSD", AliasCurrencies("EUR°/USD°"))
	assert.Equal(t, "BTC/USDT", AliasCurrencies("BTC/USDT"))
}

func TestParseDottedDateLayout(t *testing.T) {
	csv := header + "10.05.2024 15:30:45,BTC/PLN,Kupujący,0.5 BTC,250000 PLN,0 PLN,125000 PLN\n"
	trades, err := parse(t, csv)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, time.Date(2024, 5, 10, 13, 30, 45, 0, time.UTC), trades[0].UTCTime)
}
