package bankapi

import (
	"bytes"
	"encoding/json"
	"time"
)

type WhoAmI struct {
	Authenticated bool   `json:"authenticated"`
	ClientID      string `json:"client_id"`
	UserID        string `json:"user_id"`
}

type Account struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	Currency    string    `json:"currency"`
	Created     time.Time `json:"created"`
	Closed      bool      `json:"closed"`
}

type accountsResponse struct {
	Accounts []Account `json:"accounts"`
}

// Balance amounts are in minor units of Currency
type Balance struct {
	Balance      int64  `json:"balance"`
	TotalBalance int64  `json:"total_balance"`
	Currency     string `json:"currency"`
	SpendToday   int64  `json:"spend_today"`
}

type Transaction struct {
	ID            string       `json:"id"`
	AccountID     string       `json:"account_id"`
	Amount        int64        `json:"amount"` // signed minor units, negative is money out
	Currency      string       `json:"currency"`
	Description   string       `json:"description"`
	Created       time.Time    `json:"created"`
	Category      string       `json:"category"`
	Settled       OptionalTime `json:"settled"`
	DeclineReason string       `json:"decline_reason,omitempty"`
	IsLoad        bool         `json:"is_load"`
	Merchant      *Merchant    `json:"merchant"`
	Counterparty  Counterparty `json:"counterparty"`
	Notes         string       `json:"notes,omitempty"`
}

func (t Transaction) Declined() bool {
	return t.DeclineReason != ""
}

func (t Transaction) Pending() bool {
	return !t.Declined() && t.Settled.IsZero()
}

type Merchant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Logo     string `json:"logo,omitempty"`
}

// UnmarshalJSON also accepts the bare merchant id sent when the merchant isn't expanded
func (m *Merchant) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &m.ID)
	}
	type plain Merchant
	return json.Unmarshal(data, (*plain)(m))
}

type Counterparty struct {
	Name          string `json:"name,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	SortCode      string `json:"sort_code,omitempty"`
}

// OptionalTime decodes the empty string and null as the zero time
type OptionalTime struct {
	time.Time
}

func (t *OptionalTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`""`)) {
		t.Time = time.Time{}
		return nil
	}
	return json.Unmarshal(data, &t.Time)
}

type transactionsPage struct {
	Transactions []Transaction `json:"transactions"`
	NextCursor   string        `json:"next_cursor,omitempty"`
}
