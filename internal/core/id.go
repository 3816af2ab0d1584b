package core

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const idDescriptionPrefix = 50

// NewTransactionID derives a stable identity from the record content, so
// re-reading the same statement line always yields the same id. The amount is
// rendered the way the upstream extractor prints floats ("100.0", "10.5"), so
// both producers derive the same id for the same line.
func NewTransactionID(userID string, date Date, amount decimal.Decimal, description string) string {
	desc := []rune(description)
	if len(desc) > idDescriptionPrefix {
		desc = desc[:idDescriptionPrefix]
	}
	key := fmt.Sprintf("%s_%s_%s_%s", userID, date.String(), floatString(RoundAmount(amount)), string(desc))
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// floatString formats d as the shortest float repr, keeping one decimal
// digit for whole numbers and switching to exponent form from 1e16 up.
func floatString(d decimal.Decimal) string {
	f := d.InexactFloat64()
	if math.Abs(f) >= 1e16 {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// AssignID fills in a content-derived id when the record carries none.
func (t *Transaction) AssignID() {
	if t.ID == "" {
		t.ID = NewTransactionID(t.UserID, t.Date, t.Amount, t.Description)
	}
}
