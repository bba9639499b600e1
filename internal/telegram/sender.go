package telegram

import (
	"html"
	"strings"
	"sync"
	"time"

	"quackscribe/pkg/logger"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

// Telegram rejects messages longer than this; longer results are delivered
// as a document attachment instead of being split.
const maxMessageLength = 4096

const typingInterval = 5 * time.Second

// Client delivers replies through the Telegram bot API.
type Client struct {
	bot *tele.Bot
}

func NewClient(bot *tele.Bot) *Client {
	return &Client{bot: bot}
}

// Reply sends plain text threaded onto the originating message, silently.
// Oversized text falls back to a .txt document attachment.
func (c *Client) Reply(to *tele.Message, text string) error {
	opts := &tele.SendOptions{
		ReplyTo:             to,
		DisableNotification: true,
	}

	if len(text) > maxMessageLength {
		doc := &tele.Document{
			File:     tele.FromReader(strings.NewReader(text)),
			FileName: "transcription.txt",
		}
		_, err := c.bot.Send(to.Chat, doc, opts)
		return err
	}

	_, err := c.bot.Send(to.Chat, text, opts)
	return err
}

// ReplyItalic sends the text italicized (used for summaries). The text is
// HTML-escaped first, so it can contain anything.
func (c *Client) ReplyItalic(to *tele.Message, text string) error {
	if len(text) > maxMessageLength {
		return c.Reply(to, text)
	}

	opts := &tele.SendOptions{
		ReplyTo:             to,
		DisableNotification: true,
		ParseMode:           tele.ModeHTML,
	}

	_, err := c.bot.Send(to.Chat, "<i>"+html.EscapeString(text)+"</i>", opts)
	return err
}

// StartTyping runs a best-effort typing indicator until the returned stop
// function is called. It never blocks or fails the caller.
func (c *Client) StartTyping(chat *tele.Chat) (stop func()) {
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()

		c.notifyTyping(chat)
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.notifyTyping(chat)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

func (c *Client) notifyTyping(chat *tele.Chat) {
	if err := c.bot.Notify(chat, tele.Typing); err != nil {
		logger.Debug("Failed to send typing action", zap.Error(err))
	}
}
