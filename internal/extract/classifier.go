package extract

import (
	"strings"

	"fintrack/internal/core"
)

// Rule maps description keywords to a category.
type Rule struct {
	Category string
	Keywords []string
}

// Classifier assigns the first category whose keyword appears in the
// description. Rule order matters.
type Classifier struct {
	rules []Rule
}

var DefaultRules = []Rule{
	{"Food", []string{"swiggy", "zomato", "restaurant", "cafe", "food", "pizza", "burger", "dominos", "mcdonalds", "kfc"}},
	{"Shopping", []string{"amazon", "flipkart", "myntra", "ajio", "shopping", "mall", "store", "retail", "market"}},
	{"Bills", []string{"electricity", "water", "gas", "bill", "utility", "recharge", "mobile", "broadband", "internet"}},
	{"Transportation", []string{"uber", "ola", "rapido", "petrol", "fuel", "parking", "toll", "metro", "bus", "train"}},
	{"Entertainment", []string{"netflix", "spotify", "hotstar", "prime", "movie", "cinema", "theatre", "gaming", "game"}},
	{"Healthcare", []string{"hospital", "pharmacy", "medical", "doctor", "clinic", "medicine", "health", "apollo", "medplus"}},
	{"Education", []string{"school", "college", "university", "course", "tuition", "education", "book", "fees"}},
	{"Investment", []string{"mutual fund", "sip", "stock", "equity", "investment", "trading", "zerodha", "groww"}},
	{"Transfer", []string{"transfer", "upi", "imps", "neft", "rtgs", "sent to", "received from"}},
	{"ATM", []string{"atm", "cash withdrawal", "withdrawal"}},
	{"Salary", []string{"salary", "wage", "income", "payroll"}},
}

func NewClassifier(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Classifier{rules: rules}
}

// Classify returns the matching category or core.DefaultCategory.
func (c *Classifier) Classify(description string) string {
	d := strings.ToLower(description)
	for _, r := range c.rules {
		for _, k := range r.Keywords {
			if strings.Contains(d, k) {
				return r.Category
			}
		}
	}
	return core.DefaultCategory
}

// Apply fills in the category of every unclassified record.
func (c *Classifier) Apply(txs []core.Transaction) {
	for i := range txs {
		if strings.TrimSpace(txs[i].Category) == "" || txs[i].Category == core.DefaultCategory {
			txs[i].Category = c.Classify(txs[i].Description)
		}
	}
}
