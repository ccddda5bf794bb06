package tips

import (
	"context"
	"time"

	"tipflow-ledger/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// Row is a tip prepared for display in the history grid
type Row struct {
	Index         int    `json:"index"`
	SenderAddress string `json:"sender_address"`
	SenderName    string `json:"sender_name"`
	Message       string `json:"message"`
	Amount        string `json:"amount"`
	Time          string `json:"time"`
}

// GetRowsParams is one pull request from an infinite-scroll style consumer.
// Exactly one of Success or Fail is called.
type GetRowsParams struct {
	StartRow int
	EndRow   int
	Success  func(rows []Row, totalCount int)
	Fail     func()
}

// Datasource serves tip rows for one ledger contract
type Datasource struct {
	Fetcher  *Fetcher
	Contract common.Address
	Decimals uint8
	Symbol   string
}

func NewDatasource(fetcher *Fetcher, contract common.Address, decimals uint8, symbol string) *Datasource {
	return &Datasource{
		Fetcher:  fetcher,
		Contract: contract,
		Decimals: decimals,
		Symbol:   symbol,
	}
}

func (d *Datasource) GetRows(ctx context.Context, params GetRowsParams) {
	window, err := d.Fetcher.GetWindow(ctx, d.Contract, params.StartRow, params.EndRow)
	if err != nil {
		if params.Fail != nil {
			params.Fail()
		}
		return
	}

	if params.Success != nil {
		start := params.StartRow
		if start < 0 {
			start = 0
		}
		params.Success(RowsFromTips(window.Rows, start, d.Decimals, d.Symbol), window.TotalCount)
	}
}

// RowsFromTips formats tips for display; offset is the index of the first tip
func RowsFromTips(tips []models.TipRecord, offset int, decimals uint8, symbol string) []Row {
	rows := make([]Row, 0, len(tips))
	for i, tip := range tips {
		amount := models.FormatUnits(tip.Amount, decimals)
		if symbol != "" {
			amount += " " + symbol
		}
		rows = append(rows, Row{
			Index:         offset + i,
			SenderAddress: tip.SenderAddress.Hex(),
			SenderName:    tip.SenderName,
			Message:       tip.Message,
			Amount:        amount,
			Time:          tip.Time().Format(time.RFC3339),
		})
	}
	return rows
}
