package dashboard

import (
	"cmp"
	"slices"
	"strings"

	"github.com/jrsteele09/go-bank-dashboard/bankapi"
	"github.com/jrsteele09/go-bank-dashboard/internal/utils"
)

const (
	topUpMerchant = "Top-up"
	uncategorised = "uncategorised"
	monthLayout   = "2006-01"
)

// Row is one transaction with the account balance immediately after it
type Row struct {
	bankapi.Transaction
	RunningBalance int64
	MerchantName   string
	Refunded       bool // part of a charge/refund pair
}

type CategoryTotal struct {
	Month    string // set only in CategoriesByMonth
	Category string
	Count    int
	Total    int64
}

type MonthTotal struct {
	Month    string // YYYY-MM
	Inbound  int64
	Outbound int64 // negative
}

type MerchantTotal struct {
	Month string // set only in MerchantsByMonth
	Name  string
	Count int
	Total int64
}

// RefundPair is a charge and a later transaction with the same merchant and the opposite amount
type RefundPair struct {
	Merchant string
	Amount   int64 // absolute value
	ChargeID string
	RefundID string
}

// View is the read model rendered by the dashboard page. Amounts are minor units of Currency.
type View struct {
	Currency string
	Balance  int64
	Opening  int64 // Balance before the oldest listed transaction; declines never moved money
	TotalIn  int64
	TotalOut int64

	Rows       []Row // newest first
	Categories []CategoryTotal
	Months     []MonthTotal
	Merchants  []MerchantTotal
	Refunds    []RefundPair

	CategoriesByMonth []CategoryTotal // ordered by month, then as Categories
	MerchantsByMonth  []MerchantTotal // ordered by month, then as Merchants
}

// BuildView orders transactions newest first and derives running balances and summaries.
// It is deterministic: equal inputs produce equal views whatever the input order.
// Declined and zero-amount transactions are listed but left out of every summary.
func BuildView(balance bankapi.Balance, txs []bankapi.Transaction) View {
	v := View{
		Currency: balance.Currency,
		Balance:  balance.Balance,
		Rows:     make([]Row, len(txs)),
	}

	ordered := slices.Clone(txs)
	slices.SortStableFunc(ordered, func(a, b bankapi.Transaction) int {
		if c := b.Created.Compare(a.Created); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	running := balance.Balance
	for i, tx := range ordered {
		v.Rows[i] = Row{Transaction: tx, RunningBalance: running, MerchantName: merchantName(tx)}
		if !tx.Declined() {
			running -= tx.Amount
		}
	}
	v.Opening = running

	refunded := v.summarise()
	for i := range v.Rows {
		v.Rows[i].Refunded = refunded[v.Rows[i].ID]
	}
	return v
}

// summarise fills the totals from Rows and returns the ids of matched refund pairs
func (v *View) summarise() map[string]bool {
	categories := map[string]*CategoryTotal{}
	months := map[string]*MonthTotal{}
	merchants := map[string]*MerchantTotal{}
	monthCategories := map[[2]string]*CategoryTotal{}
	monthMerchants := map[[2]string]*MerchantTotal{}
	refunded := map[string]bool{}

	type matchKey struct {
		merchant string
		amount   int64
	}
	open := map[matchKey]string{}

	// Oldest first, so a refund is always matched to the earlier charge
	for i := len(v.Rows) - 1; i >= 0; i-- {
		tx := v.Rows[i].Transaction
		if tx.Amount == 0 || tx.Declined() {
			continue
		}

		if tx.Amount > 0 {
			v.TotalIn += tx.Amount
		} else {
			v.TotalOut += tx.Amount
		}

		month := tx.Created.UTC().Format(monthLayout)
		mt := months[month]
		if mt == nil {
			mt = &MonthTotal{Month: month}
			months[month] = mt
		}
		if tx.Amount > 0 {
			mt.Inbound += tx.Amount
		} else {
			mt.Outbound += tx.Amount
		}

		category := tx.Category
		if category == "" {
			category = uncategorised
		}
		ct := categories[category]
		if ct == nil {
			ct = &CategoryTotal{Category: category}
			categories[category] = ct
		}
		ct.Count++
		ct.Total += tx.Amount

		mct := monthCategories[[2]string{month, category}]
		if mct == nil {
			mct = &CategoryTotal{Month: month, Category: category}
			monthCategories[[2]string{month, category}] = mct
		}
		mct.Count++
		mct.Total += tx.Amount

		name := v.Rows[i].MerchantName
		mc := merchants[name]
		if mc == nil {
			mc = &MerchantTotal{Name: name}
			merchants[name] = mc
		}
		mc.Count++
		mc.Total += tx.Amount

		mmc := monthMerchants[[2]string{month, name}]
		if mmc == nil {
			mmc = &MerchantTotal{Month: month, Name: name}
			monthMerchants[[2]string{month, name}] = mmc
		}
		mmc.Count++
		mmc.Total += tx.Amount

		counterpart := partyName(tx)
		if chargeID, ok := open[matchKey{counterpart, -tx.Amount}]; ok {
			delete(open, matchKey{counterpart, -tx.Amount})
			refunded[chargeID] = true
			refunded[tx.ID] = true
			v.Refunds = append(v.Refunds, RefundPair{
				Merchant: v.Rows[i].MerchantName,
				Amount:   abs(tx.Amount),
				ChargeID: chargeID,
				RefundID: tx.ID,
			})
		} else {
			open[matchKey{counterpart, tx.Amount}] = tx.ID
		}
	}

	compareCategories := func(a, b CategoryTotal) int {
		return cmp.Or(cmp.Compare(a.Month, b.Month), cmp.Compare(a.Category, b.Category))
	}
	v.Categories = sortedValues(categories, compareCategories)
	v.CategoriesByMonth = sortedValues(monthCategories, compareCategories)
	v.Months = sortedValues(months, func(a, b MonthTotal) int {
		return cmp.Compare(a.Month, b.Month)
	})
	compareMerchants := func(a, b MerchantTotal) int {
		return cmp.Or(
			cmp.Compare(a.Month, b.Month),
			cmp.Compare(a.Total, b.Total),
			cmp.Compare(a.Name, b.Name),
		)
	}
	v.Merchants = sortedValues(merchants, compareMerchants)
	v.MerchantsByMonth = sortedValues(monthMerchants, compareMerchants)
	return refunded
}

// partyName is the merchant, or failing that the counterparty, of a transaction
func partyName(tx bankapi.Transaction) string {
	if name := utils.Value(tx.Merchant).Name; name != "" {
		return name
	}
	return strings.TrimSpace(tx.Counterparty.Name)
}

func merchantName(tx bankapi.Transaction) string {
	if name := partyName(tx); name != "" {
		return name
	}
	if tx.IsLoad {
		return topUpMerchant
	}
	return ""
}

func sortedValues[K comparable, T any](m map[K]*T, compare func(a, b T) int) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, *v)
	}
	slices.SortFunc(out, compare)
	return out
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
