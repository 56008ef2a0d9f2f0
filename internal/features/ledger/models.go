// Package ledger: журнал движения денег между участниками и системой.
// models.go описывает записи журнала, их типы и статусы.
//
// Журнал только дописывается: запись, однажды созданная, не меняется.
// Каждая попытка выплаты (успешная или сгоревшая) даёт ровно одну запись.
package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Actor: сторона операции: конкретный пользователь или система.
// Нулевое значение Actor равно System().
type Actor struct {
	id   int64
	user bool
}

// User возвращает участника с указанным ID.
func User(id int64) Actor { return Actor{id: id, user: true} }

// System возвращает системного участника (админские и системные операции).
func System() Actor { return Actor{} }

// IsSystem сообщает, что сторона является системой.
func (a Actor) IsSystem() bool { return !a.user }

// UserID возвращает ID пользователя; ok=false для системы.
func (a Actor) UserID() (int64, bool) { return a.id, a.user }

func (a Actor) String() string {
	if !a.user {
		return "system"
	}
	return "user:" + strconv.FormatInt(a.id, 10)
}

// MarshalJSON: пользователь: числом, система: строкой "system".
func (a Actor) MarshalJSON() ([]byte, error) {
	if !a.user {
		return []byte(`"system"`), nil
	}
	return []byte(strconv.FormatInt(a.id, 10)), nil
}

// nullable: представление для колонки BIGINT NULL (NULL = система).
func (a Actor) nullable() *int64 {
	if !a.user {
		return nil
	}
	id := a.id
	return &id
}

func actorFromNullable(id *int64) Actor {
	if id == nil {
		return System()
	}
	return User(*id)
}

// Type: закрытый список видов операций.
type Type string

const (
	TypeDirectCommission                 Type = "direct_commission"
	TypeCommunityBuildingBonus           Type = "community_building_bonus"
	TypeSelfMintingBonus                 Type = "self_minting_bonus"
	TypeAutoMintingBonus                 Type = "auto_minting_bonus"
	TypeCommunitySelfMintingBonus        Type = "community_self_minting_bonus"
	TypeCommunityAutoMintingBonus        Type = "community_auto_minting_bonus"
	TypePackagePurchase                  Type = "package_purchase"
	TypeSwitchFee                        Type = "switch_fee"
	TypeAdminCredit                      Type = "admin_credit"
	TypeAdminDebit                       Type = "admin_debit"
	TypeDeposit                          Type = "deposit"
	TypeDirectCommissionFlushed          Type = TypeDirectCommission + flushedSuffix
	TypeCommunityBuildingBonusFlushed    Type = TypeCommunityBuildingBonus + flushedSuffix
	TypeSelfMintingBonusFlushed          Type = TypeSelfMintingBonus + flushedSuffix
	TypeAutoMintingBonusFlushed          Type = TypeAutoMintingBonus + flushedSuffix
	TypeCommunitySelfMintingBonusFlushed Type = TypeCommunitySelfMintingBonus + flushedSuffix
	TypeCommunityAutoMintingBonusFlushed Type = TypeCommunityAutoMintingBonus + flushedSuffix
)

const flushedSuffix = "_flushed"

// MaxLevelCommission: сколько уровней level_commission_N бывает в принципе.
const MaxLevelCommission = 10

// LevelCommission возвращает тип level_commission_{level}.
func LevelCommission(level int) Type {
	return Type(fmt.Sprintf("level_commission_%d", level))
}

// Flushed возвращает «сгоревший» вариант бонусного типа.
// Для типов без такого варианта возвращается сам тип.
func (t Type) Flushed() Type {
	switch t {
	case TypeDirectCommission, TypeCommunityBuildingBonus,
		TypeSelfMintingBonus, TypeAutoMintingBonus,
		TypeCommunitySelfMintingBonus, TypeCommunityAutoMintingBonus:
		return t + flushedSuffix
	}
	return t
}

// Valid сообщает, входит ли тип в закрытый список.
func (t Type) Valid() bool {
	switch t {
	case TypeDirectCommission, TypeCommunityBuildingBonus,
		TypeSelfMintingBonus, TypeAutoMintingBonus,
		TypeCommunitySelfMintingBonus, TypeCommunityAutoMintingBonus,
		TypePackagePurchase, TypeSwitchFee, TypeAdminCredit, TypeAdminDebit, TypeDeposit,
		TypeDirectCommissionFlushed, TypeCommunityBuildingBonusFlushed,
		TypeSelfMintingBonusFlushed, TypeAutoMintingBonusFlushed,
		TypeCommunitySelfMintingBonusFlushed, TypeCommunityAutoMintingBonusFlushed:
		return true
	}
	for level := 1; level <= MaxLevelCommission; level++ {
		if t == LevelCommission(level) {
			return true
		}
	}
	return false
}

// Status: статус записи журнала.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusFlushed   Status = "flushed"
	StatusCompleted Status = "completed"
)

// Paid: деньги по записи реально ушли получателю.
func (s Status) Paid() bool { return s == StatusApproved || s == StatusCompleted }

// Details: подробности начисления (commissionDetails).
// Level = 0 означает «уровень не применим».
type Details struct {
	Level           int             `json:"level,omitempty"`
	Percentage      decimal.Decimal `json:"percentage"`
	BuyerID         *int64          `json:"buyerId,omitempty"`
	InvestmentID    *int64          `json:"investmentId,omitempty"`
	MintingID       *int64          `json:"mintingId,omitempty"`
	SourceMintingID *int64          `json:"sourceMintingId,omitempty"`
	Note            string          `json:"note,omitempty"`
}

// Entry: одна запись журнала.
type Entry struct {
	ID        int64           `json:"id" db:"id"`
	EventID   uuid.UUID       `json:"eventId" db:"event_id"` // Все записи одного события
	Sender    Actor           `json:"senderId" db:"sender_id"`
	Receiver  Actor           `json:"receiverId" db:"receiver_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"` // Всегда неотрицательная
	Type      Type            `json:"transactionType" db:"transaction_type"`
	Status    Status          `json:"status" db:"status"`
	Details   Details         `json:"commissionDetails"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
}

var _ json.Marshaler = Actor{}

// Ref: удобный конструктор указателя для полей Details.
func Ref(id int64) *int64 { return &id }
