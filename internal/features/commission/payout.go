package commission

import (
	"context"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mlm-platform/internal/features/ledger"
)

// Причины сгорания бонуса (пишутся в note записи журнала).
const (
	NoteNotEligible  = "нет Green ID: у получателя нет инвестиций или активного минтинга"
	NoteBuildingCap  = "лимит бонуса за построение: получено не меньше суммы инвестиций"
	NoteMintingCap   = "достигнут лимит заработка активности"
	noteLevel1Reason = "у реферера меньше %d своих рефералов"
)

// gate решает, платить ли получателю. ok=false: бонус сгорает с причиной reason.
type gate func(ctx context.Context, st Store) (ok bool, reason string, err error)

// allOf проверяет условия по порядку; первое невыполненное даёт причину.
func allOf(gates ...gate) gate {
	return func(ctx context.Context, st Store) (bool, string, error) {
		for _, g := range gates {
			ok, reason, err := g(ctx, st)
			if err != nil || !ok {
				return ok, reason, err
			}
		}
		return true, "", nil
	}
}

// deny возвращает условие, которое никогда не выполняется.
func deny(reason string) gate {
	return func(context.Context, Store) (bool, string, error) {
		return false, reason, nil
	}
}

// creditKind: какой баланс пополняет выплата.
type creditKind int

const (
	creditCommission creditKind = iota // current_balance (+ withdrawable/earned)
	creditWallet                       // wallet_balance
)

// payout описывает одного кандидата на выплату.
type payout struct {
	Receiver int64
	Amount   decimal.Decimal
	Type     ledger.Type
	Details  ledger.Details
	Gate     gate // nil: платить без условий
	Credit   creditKind
	// Статус оплаченной записи: approved для бонусов, completed для комиссии с депозита
	PaidStatus ledger.Status
	// Вызывается после зачисления в той же транзакции
	OnPaid func(ctx context.Context, st Store, amount decimal.Decimal) error
}

// distribute остаётся единственным местом, где решается «оплачено или сгорело».
// На каждого кандидата с ненулевой суммой пишется ровно одна запись журнала:
// оплаченная с зачислением на баланс, либо flushed с причиной и без движения денег.
// Нулевая сумма не является кандидатом: записи нет, возвращается nil.
func (e *Engine) distribute(ctx context.Context, st Store, ev *event, p payout) (*ledger.Entry, error) {
	if !p.Amount.IsPositive() {
		return nil, nil
	}

	ok, reason := true, ""
	if p.Gate != nil {
		var err error
		if ok, reason, err = p.Gate(ctx, st); err != nil {
			return nil, err
		}
	}

	entry := &ledger.Entry{
		Sender:   ledger.System(),
		Receiver: ledger.User(p.Receiver),
		Amount:   p.Amount,
		Details:  p.Details,
	}

	if !ok {
		entry.Type = p.Type.Flushed()
		entry.Status = ledger.StatusFlushed
		entry.Details.Note = reason
		log.WithFields(log.Fields{
			"event_id": ev.id,
			"receiver": p.Receiver,
			"type":     entry.Type,
			"amount":   p.Amount.String(),
			"reason":   reason,
		}).Debug("Бонус сгорел")
		return entry, e.append(ctx, st, ev, entry)
	}

	var err error
	switch p.Credit {
	case creditWallet:
		err = st.CreditWallet(ctx, p.Receiver, p.Amount)
	default:
		err = st.CreditCommission(ctx, p.Receiver, p.Amount)
	}
	if err != nil {
		return nil, err
	}
	if p.OnPaid != nil {
		if err := p.OnPaid(ctx, st, p.Amount); err != nil {
			return nil, err
		}
	}

	entry.Type = p.Type
	entry.Status = p.PaidStatus
	if entry.Status == "" {
		entry.Status = ledger.StatusApproved
	}
	return entry, e.append(ctx, st, ev, entry)
}
