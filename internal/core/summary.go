package core

import "github.com/shopspring/decimal"

// Overview holds credit/debit totals for a user over an optional date range.
type Overview struct {
	TotalCredit decimal.Decimal `json:"totalCredit"`
	TotalDebit  decimal.Decimal `json:"totalDebit"`
	CreditCount int64           `json:"creditCount"`
	DebitCount  int64           `json:"debitCount"`
	NetAmount   decimal.Decimal `json:"netAmount"`
}

// CategoryTotal is one row of the per-category breakdown.
type CategoryTotal struct {
	Category string          `json:"category"`
	Debit    decimal.Decimal `json:"debit"`
	Credit   decimal.Decimal `json:"credit"`
	Count    int64           `json:"count"`
}

type Summary struct {
	Overview   Overview        `json:"overview"`
	Categories []CategoryTotal `json:"categories"`
}

// Page is one slice of a filtered query plus the unbounded match count.
type Page struct {
	Items   []Transaction `json:"items"`
	Total   int64         `json:"total"`
	Limit   int           `json:"limit"`
	Skip    int           `json:"skip"`
	HasMore bool          `json:"hasMore"`
}

// NewPage computes HasMore from the returned slice and the total.
func NewPage(items []Transaction, total int64, limit, skip int) Page {
	if items == nil {
		items = []Transaction{}
	}
	return Page{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Skip:    skip,
		HasMore: int64(skip+len(items)) < total,
	}
}
