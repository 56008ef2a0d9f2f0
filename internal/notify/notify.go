// Package notify отправляет служебные уведомления администраторам.
// Telegram-бот пишет в админский чат; без токена используется Nop.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
)

// Notifier: получатель служебных сообщений.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Nop ничего не отправляет.
type Nop struct{}

// Notify ничего не делает.
func (Nop) Notify(context.Context, string) error { return nil }

// TelegramNotifier пишет в админский чат Telegram.
type TelegramNotifier struct {
	bot    *telego.Bot
	chatID int64
}

// NewTelegram создаёт уведомитель. Токен проверяется сразу.
func NewTelegram(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram-бота: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

// Notify отправляет сообщение в админский чат.
func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	if _, err := n.bot.SendMessage(ctx, tu.Message(tu.ID(n.chatID), text)); err != nil {
		return fmt.Errorf("ошибка отправки уведомления: %w", err)
	}
	return nil
}

// Send отправляет уведомление и только логирует ошибку:
// сбой Telegram не должен ломать событие, которое уже зафиксировано.
func Send(ctx context.Context, n Notifier, text string) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, text); err != nil {
		log.WithError(err).Warn("Уведомление не отправлено")
	}
}

// Recorder копит сообщения в памяти (тесты и отладка).
type Recorder struct {
	mu       sync.Mutex
	Messages []string
}

// Notify запоминает сообщение.
func (r *Recorder) Notify(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, text)
	return nil
}
