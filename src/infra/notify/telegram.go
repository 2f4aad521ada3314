package notify

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/contre95/csvinserter/src/features/ingesting"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const defaultBacklog = 64

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type alert struct {
	event ingesting.FileEvent
	err   error
}

// TelegramNotifier sends load failures to a set of Telegram chats.
// It implements ingesting.Notifier and never blocks the caller.
type TelegramNotifier struct {
	bot      sender
	chatIDs  []int64
	alerts   chan alert
	stopOnce sync.Once
	done     chan struct{}
}

// NewTelegramNotifier connects to the bot API and starts the sending goroutine.
func NewTelegramNotifier(token string, chatIDs []int64) (*TelegramNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is not configured")
	}
	if len(chatIDs) == 0 {
		return nil, fmt.Errorf("no telegram chat ids configured")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	slog.Info("Telegram notifier initialized", "username", bot.Self.UserName, "chats", len(chatIDs))
	return newTelegramNotifier(bot, chatIDs, defaultBacklog), nil
}

func newTelegramNotifier(bot sender, chatIDs []int64, backlog int) *TelegramNotifier {
	n := &TelegramNotifier{
		bot:     bot,
		chatIDs: chatIDs,
		alerts:  make(chan alert, backlog),
		done:    make(chan struct{}),
	}
	go n.loop()
	return n
}

// NotifyFailure queues an alert. When the backlog is full the alert is dropped.
func (n *TelegramNotifier) NotifyFailure(event ingesting.FileEvent, err error) {
	select {
	case n.alerts <- alert{event: event, err: err}:
	default:
		slog.Warn("Dropping telegram alert, backlog full", "path", event.Path)
	}
}

// Stop sends the queued alerts and stops the goroutine. NotifyFailure must not
// be called afterwards.
func (n *TelegramNotifier) Stop() {
	n.stopOnce.Do(func() {
		close(n.alerts)
		<-n.done
	})
}

func (n *TelegramNotifier) loop() {
	defer close(n.done)
	for a := range n.alerts {
		text := formatAlert(a)
		for _, chatID := range n.chatIDs {
			if _, err := n.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
				slog.Error("Failed to send telegram alert", "chat_id", chatID, "path", a.event.Path, "error", err)
			}
		}
	}
}

func formatAlert(a alert) string {
	return fmt.Sprintf("❌ Failed to load %s\nEvent: %s\nError: %v", filepath.Base(a.event.Path), a.event.ID, a.err)
}
