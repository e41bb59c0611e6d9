package notifier

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CommandHandler answers one chat command. An empty reply sends nothing.
type CommandHandler func(ctx context.Context, command string) string

const (
	pollTimeout  = 30 // seconds held open by getUpdates
	pollFailWait = 5 * time.Second
)

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// StartPolling long-polls getUpdates and hands every command typed in the
// configured chat to handler. Messages from other chats are dropped.
// It returns when ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	client := &http.Client{
		Timeout:   (pollTimeout + 5) * time.Second,
		Transport: t.Client.Transport,
	}
	var next int64
	t.log.Info().Str("chat", t.ChatID).Msg("listening for commands")

	for ctx.Err() == nil {
		var batch []update
		err := t.call(ctx, client, "getUpdates", map[string]any{
			"offset":          next,
			"timeout":         pollTimeout,
			"allowed_updates": []string{"message"},
		}, &batch)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			t.log.Warn().Err(err).Dur("retry_in", pollFailWait).Msg("getUpdates failed")
			sleep(ctx, pollFailWait)
			continue
		}

		for _, u := range batch {
			next = u.UpdateID + 1
			t.dispatch(ctx, u, handler)
		}
	}
	t.log.Info().Msg("stopped listening for commands")
}

func (t *TelegramNotifier) dispatch(ctx context.Context, u update, handler CommandHandler) {
	if u.Message == nil {
		return
	}
	text := strings.TrimSpace(u.Message.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	if chat := strconv.FormatInt(u.Message.Chat.ID, 10); chat != t.ChatID {
		t.log.Warn().Str("chat", chat).Str("command", text).Msg("command from unknown chat ignored")
		return
	}

	t.log.Info().Str("command", text).Msg("command received")
	reply := handler(ctx, text)
	if reply == "" {
		return
	}
	if err := t.Send(ctx, reply); err != nil {
		t.log.Error().Err(err).Str("command", text).Msg("reply not delivered")
	}
}
