package accounts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Nature states whether a debit or a credit increases the account balance.
type Nature string

const (
	NatureDebit  Nature = "debit"
	NatureCredit Nature = "credit"
)

// Role names a semantic system account used by the orchestrators.
type Role string

const (
	RoleCash       Role = "cash"
	RoleReceivable Role = "receivable"
	RoleSales      Role = "sales"
	RoleInventory  Role = "inventory"
	RolePayable    Role = "payable"
)

// Account models a ledger account with its denormalized running balance.
// Accounts are created lazily, mutated only by the posting engine and never
// deleted.
type Account struct {
	ID        int64           `json:"id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Nature    Nature          `json:"nature"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// systemAccount describes one lazily created system account.
type systemAccount struct {
	Role   Role
	Code   string
	Name   string
	Nature Nature
}

var systemAccounts = []systemAccount{
	{RoleCash, "1010", "Cash", NatureDebit},
	{RoleReceivable, "1100", "Accounts Receivable", NatureDebit},
	{RoleInventory, "1200", "Inventory", NatureDebit},
	{RolePayable, "2100", "Accounts Payable", NatureCredit},
	{RoleSales, "4100", "Sales Revenue", NatureCredit},
}

// CodeForRole resolves the fixed chart code for a system role.
func CodeForRole(role Role) (string, bool) {
	for _, sys := range systemAccounts {
		if sys.Role == role {
			return sys.Code, true
		}
	}
	return "", false
}
