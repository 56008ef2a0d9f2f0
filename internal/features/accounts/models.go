// Package accounts: пользователи и их балансы.
// models.go описывает учётную запись участника.
package accounts

import (
	"time"

	"github.com/shopspring/decimal"
)

// User: участник платформы и его финансовое состояние.
//
// Инвариант: CommissionEarned == CommissionLocked + CommissionWithdrawable.
// Все изменения комиссии восстанавливают его в том же UPDATE (и в БД стоит CHECK).
type User struct {
	ID             int64   `json:"id" db:"id"`
	OwnCode        string  `json:"ownCode" db:"own_code"`                 // Собственный реферальный код
	ReferredByCode *string `json:"referredByCode" db:"referred_by_code"` // Код пригласившего (не ID!)
	Username       string  `json:"username" db:"username"`
	Rank           int     `json:"rank" db:"rank"` // Порядковый номер ранга
	Tier           int     `json:"tier" db:"tier"`

	WalletBalance          decimal.Decimal `json:"walletBalance" db:"wallet_balance"`
	CryptoWallet           decimal.Decimal `json:"cryptoWallet" db:"crypto_wallet"`
	CurrentBalance         decimal.Decimal `json:"currentBalance" db:"current_balance"` // Сюда начисляются бонусы
	CommissionLocked       decimal.Decimal `json:"commissionLocked" db:"commission_locked"`
	CommissionWithdrawable decimal.Decimal `json:"commissionWithdrawable" db:"commission_withdrawable"`
	CommissionEarned       decimal.Decimal `json:"commissionEarned" db:"commission_earned"`
	PendingCommissions     decimal.Decimal `json:"pendingCommissions" db:"pending_commissions"`

	IsActive  bool      `json:"isActive" db:"is_active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// CommissionConsistent проверяет инвариант комиссии.
func (u *User) CommissionConsistent() bool {
	return u.CommissionEarned.Equal(u.CommissionLocked.Add(u.CommissionWithdrawable))
}
