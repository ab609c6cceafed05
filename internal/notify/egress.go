// Package notify delivers report texts to operators.
package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/park285/nickguard/internal/httpjson"
	"go.uber.org/zap"
)

// Egress abstracts text delivery.
type Egress interface {
	SendText(ctx context.Context, text string) error
}

const telegramBaseURL = "https://api.telegram.org"

// NewEgress picks the Telegram egress when a bot token and chat id are set,
// otherwise texts are only logged.
func NewEgress(botToken, chatID string, logger *zap.Logger, opts ...httpjson.Option) Egress {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(botToken) == "" || strings.TrimSpace(chatID) == "" {
		return &logEgress{logger: logger}
	}
	tg := NewTelegram(telegramBaseURL, botToken, chatID, opts...)
	return &fallbackEgress{primary: tg, fallback: &logEgress{logger: logger}, logger: logger}
}

// Telegram posts to the Bot API sendMessage method.
type Telegram struct {
	c      *httpjson.Client
	token  string
	chatID string
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func NewTelegram(baseURL, token, chatID string, opts ...httpjson.Option) *Telegram {
	return &Telegram{c: httpjson.NewClient(baseURL, opts...), token: token, chatID: chatID}
}

func (t *Telegram) SendText(ctx context.Context, text string) error {
	if t == nil || t.c == nil {
		return errors.New("telegram egress not available")
	}
	req := sendMessageRequest{ChatID: t.chatID, Text: text, DisableWebPagePreview: true}
	var resp apiResponse
	if err := t.c.PostJSON(ctx, "/bot"+t.token+"/sendMessage", req, &resp, true); err != nil {
		return err
	}
	if !resp.OK {
		return errors.New("telegram: " + resp.Description)
	}
	return nil
}

type logEgress struct {
	logger *zap.Logger
}

func (l *logEgress) SendText(_ context.Context, text string) error {
	l.logger.Info("report_text", zap.String("text", text))
	return nil
}

// fallbackEgress tries primary and logs the text when it fails.
type fallbackEgress struct {
	primary  Egress
	fallback Egress
	logger   *zap.Logger
}

func (f *fallbackEgress) SendText(ctx context.Context, text string) error {
	err := f.primary.SendText(ctx, text)
	if err == nil {
		return nil
	}
	f.logger.Warn("egress_fallback", zap.Error(err))
	if ferr := f.fallback.SendText(ctx, text); ferr != nil {
		return errors.Join(err, ferr)
	}
	return err
}
