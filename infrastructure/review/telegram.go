package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/felixgeelhaar/robotflow/domain/policy"
	"github.com/felixgeelhaar/robotflow/domain/workflow"
	"github.com/felixgeelhaar/robotflow/infrastructure/logging"
)

// pollTimeout is the long-poll timeout for updates, in seconds.
const pollTimeout = 60

// ErrNoChat indicates a Telegram reviewer without a chat to review in.
var ErrNoChat = errors.New("telegram chat id not configured")

// Bot is the part of *tgbotapi.BotAPI the reviewer uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Telegram sends plans to one chat and waits for the operator's reply
// there. Messages from other chats are ignored.
type Telegram struct {
	bot    Bot
	chatID int64

	once    sync.Once
	updates tgbotapi.UpdatesChannel
}

// NewTelegram creates a reviewer bound to chatID.
func NewTelegram(bot Bot, chatID int64) (*Telegram, error) {
	if chatID == 0 {
		return nil, ErrNoChat
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// NewTelegramFromToken connects to the Bot API with token.
func NewTelegramFromToken(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("%w: telegram: %v", policy.ErrReviewUnavailable, err)
	}
	logging.Info().
		Add(logging.Component("telegram")).
		Add(logging.Str("bot", bot.Self.UserName)).
		Msg("telegram reviewer authorized")
	return NewTelegram(bot, chatID)
}

func (t *Telegram) subscribe() tgbotapi.UpdatesChannel {
	t.once.Do(func() {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = pollTimeout
		t.updates = t.bot.GetUpdatesChan(u)
	})
	return t.updates
}

func (t *Telegram) say(text string) error {
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		return fmt.Errorf("%w: telegram send: %v", policy.ErrReviewUnavailable, err)
	}
	return nil
}

// next waits for the next text message in the review chat.
func (t *Telegram) next(ctx context.Context, updates tgbotapi.UpdatesChannel) (string, error) {
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return "", fmt.Errorf("%w: telegram updates closed", policy.ErrReviewUnavailable)
			}
			msg := update.Message
			if msg == nil || msg.Chat == nil || msg.Chat.ID != t.chatID || msg.Text == "" {
				continue
			}
			return msg.Text, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Review implements policy.Reviewer.
func (t *Telegram) Review(ctx context.Context, req policy.ReviewRequest) (policy.ReviewResponse, error) {
	updates := t.subscribe()
	if err := t.say(Summary(req) + "\nReply a, r <changes> or d."); err != nil {
		return policy.ReviewResponse{}, err
	}

	for {
		text, err := t.next(ctx, updates)
		if err != nil {
			return t.abandon(req, err)
		}
		c, ok := parseChoice(text)
		if !ok {
			if err := t.say(InvalidChoice); err != nil {
				return policy.ReviewResponse{}, err
			}
			continue
		}
		if c.decision == workflow.DecisionRevision && c.comments == "" {
			if err := t.say(PromptChanges); err != nil {
				return policy.ReviewResponse{}, err
			}
			comments, err := t.next(ctx, updates)
			if err != nil {
				return t.abandon(req, err)
			}
			c.comments = strings.TrimSpace(comments)
		}

		logging.Info().
			Add(logging.CorrelationID(req.CorrelationID)).
			Add(logging.Decision(c.decision)).
			Add(logging.Reviewer("telegram")).
			Msg("operator decision received")
		return policy.ReviewResponse{Decision: c.decision, Comments: c.comments, Reviewer: "telegram"}, nil
	}
}

func (t *Telegram) abandon(req policy.ReviewRequest, err error) (policy.ReviewResponse, error) {
	if errors.Is(err, context.DeadlineExceeded) {
		_ = t.say(TimeoutNotice)
		logging.Warn().
			Add(logging.CorrelationID(req.CorrelationID)).
			Add(logging.Reviewer("telegram")).
			Msg("human review timeout")
	}
	return policy.ReviewResponse{}, err
}

// Close stops polling for updates.
func (t *Telegram) Close() error {
	t.bot.StopReceivingUpdates()
	return nil
}
