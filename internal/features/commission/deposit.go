package commission

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mlm-platform/internal/common"
	"serotonyl.ru/mlm-platform/internal/features/ledger"
)

// DepositInput: одобренный депозит.
// CreditDeposit=true: движок сам зачисляет депозит на кошелёк (запись deposit);
// иначе считается, что это уже сделал вызывающий.
type DepositInput struct {
	ReceiverID    int64           `json:"receiverId"`
	Amount        decimal.Decimal `json:"amount"`
	CreditDeposit bool            `json:"creditDeposit"`
}

// Validate отклоняет запрос до любых изменений.
func (in DepositInput) Validate() error {
	if in.ReceiverID <= 0 {
		return common.ErrInvalidID
	}
	if !in.Amount.IsPositive() {
		return common.ErrInvalidAmount
	}
	return nil
}

// Статусы уровня в итоге депозита.
const (
	LevelPaid    = "paid"
	LevelSkipped = "skipped"
)

// LevelResult: итог одного уровня.
type LevelResult struct {
	Level      int             `json:"level"`
	UserID     int64           `json:"userId"`
	Percentage decimal.Decimal `json:"percentage"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
	Reason     string          `json:"reason,omitempty"`
}

// DepositResult: итог уровневой комиссии с депозита.
type DepositResult struct {
	EventID uuid.UUID       `json:"eventId"`
	Levels  []LevelResult   `json:"levels"`
	Entries []*ledger.Entry `json:"entries"`
}

// Deposit распределяет уровневую комиссию с одобренного депозита.
// Уровень 1 требует у реферера не меньше DepositLevel1MinReferrals своих
// рефералов; если условие не выполнено, уровень пропускается без записи,
// а цепочка идёт дальше. Комиссия зачисляется на кошелёк со статусом completed.
func (e *Engine) Deposit(ctx context.Context, in DepositInput) (*DepositResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	started := e.clock.Now()
	ev := newEvent()
	res := &DepositResult{EventID: ev.id}

	err := e.runner.InTx(ctx, func(st Store) error {
		ev.reset()
		res.Levels = nil
		snap, err := st.Settings(ctx)
		if err != nil {
			return err
		}
		receiver, err := st.GetUser(ctx, in.ReceiverID)
		if err != nil {
			return err
		}

		if in.CreditDeposit {
			if err := st.CreditWallet(ctx, receiver.ID, in.Amount); err != nil {
				return err
			}
			err = e.append(ctx, st, ev, &ledger.Entry{
				Sender:   ledger.System(),
				Receiver: ledger.User(receiver.ID),
				Amount:   in.Amount,
				Type:     ledger.TypeDeposit,
				Status:   ledger.StatusCompleted,
			})
			if err != nil {
				return err
			}
		}

		upline, err := ResolveUpline(ctx, st, receiver.ID, e.cfg.DepositMaxLevels)
		if err != nil {
			return err
		}
		levels := snap.DepositCommission.Levels

		for _, up := range upline {
			lr := LevelResult{Level: up.Level, UserID: up.User.ID, Status: LevelSkipped}
			if up.Level <= len(levels) {
				lr.Percentage = common.ParsePercent(levels[up.Level-1])
			}

			if up.Level == 1 {
				n, err := st.CountReferrals(ctx, up.User.OwnCode)
				if err != nil {
					return err
				}
				if n < e.cfg.DepositLevel1MinReferrals {
					lr.Reason = fmt.Sprintf(noteLevel1Reason, e.cfg.DepositLevel1MinReferrals)
					res.Levels = append(res.Levels, lr)
					continue
				}
			}

			lr.Amount = common.PercentOf(in.Amount, lr.Percentage)
			entry, err := e.distribute(ctx, st, ev, payout{
				Receiver:   up.User.ID,
				Amount:     lr.Amount,
				Type:       ledger.LevelCommission(up.Level),
				Credit:     creditWallet,
				PaidStatus: ledger.StatusCompleted,
				Details: ledger.Details{
					Level:      up.Level,
					Percentage: lr.Percentage,
					BuyerID:    ledger.Ref(receiver.ID),
				},
			})
			if err != nil {
				return err
			}
			if entry == nil {
				lr.Reason = "ставка уровня не задана"
			} else {
				lr.Status = LevelPaid
			}
			res.Levels = append(res.Levels, lr)
		}
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("receiver_id", in.ReceiverID).Warn("Комиссия с депозита не распределена")
		return nil, err
	}

	e.finish(ctx, "deposit", ev, started)
	res.Entries, _ = ev.snapshot()
	return res, nil
}
