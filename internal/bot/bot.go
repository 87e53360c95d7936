// Package bot maps chat commands onto the trackings service.
package bot

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/BearBump/TrackBot/internal/integrations/telegram"
	"github.com/BearBump/TrackBot/internal/models"
	"github.com/BearBump/TrackBot/internal/notify"
	"github.com/BearBump/TrackBot/internal/services/trackings"
	"github.com/pkg/errors"
)

type Service interface {
	Track(ctx context.Context, sub models.Subscriber, raw string) (trackings.TrackResult, error)
	Untrack(ctx context.Context, subscriberID int64, raw string) (string, error)
	List(ctx context.Context, subscriberID int64) ([]string, []*models.Tracking, error)
	Info(ctx context.Context, raw string) (models.ShipmentStatus, error)
}

type Bot struct {
	svc  Service
	sink notify.MessageSink
	rnd  notify.Rand
}

func New(svc Service, sink notify.MessageSink) *Bot {
	return &Bot{svc: svc, sink: sink, rnd: rand.IntN}
}

func (b *Bot) WithRand(r notify.Rand) *Bot {
	b.rnd = r
	return b
}

// ParseCommand splits "/Track@MyBot  AB123 extra" into ("track", "AB123").
func ParseCommand(text string) (string, string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", "", false
	}
	cmd := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	return cmd, arg, cmd != ""
}

// HandleUpdate answers one inbound update. Unknown commands and non-command
// text are ignored.
func (b *Bot) HandleUpdate(ctx context.Context, u telegram.Update) {
	m := u.Message
	if m == nil || m.Chat.ID == 0 || m.Text == "" {
		return
	}
	cmd, arg, ok := ParseCommand(m.Text)
	if !ok {
		return
	}

	chatID := m.Chat.ID
	var reply string
	switch cmd {
	case "start", "help":
		reply = notify.HelpText()
	case "track":
		reply = b.track(ctx, m, arg)
	case "untrack":
		reply = b.untrack(ctx, chatID, arg)
	case "list":
		reply = b.list(ctx, chatID)
	case "info":
		reply = b.info(ctx, arg)
	default:
		return
	}

	if err := b.sink.SendMessage(ctx, chatID, reply); err != nil {
		slog.Error("send reply", "subscriber_id", chatID, "command", cmd, "error", err.Error())
	}
}

func (b *Bot) track(ctx context.Context, m *telegram.Message, arg string) string {
	if arg == "" {
		return notify.UsageText("track")
	}
	sub := models.Subscriber{SubscriberID: m.Chat.ID}
	if m.From != nil {
		sub.Username = m.From.Username
		sub.FirstName = m.From.FirstName
	}

	res, err := b.svc.Track(ctx, sub, arg)
	switch {
	case errors.Is(err, trackings.ErrInvalidTrackingID):
		return notify.InvalidIDText()
	case errors.Is(err, trackings.ErrUnresolved):
		return notify.UnresolvedText(res.TrackingID)
	case err != nil:
		slog.Error("track", "subscriber_id", sub.SubscriberID, "tracking_id", res.TrackingID, "error", err.Error())
		return notify.ErrorText()
	}

	if res.Status != nil {
		return notify.TrackStartedText(*res.Status, b.rnd)
	}
	if res.AlreadySubscribed {
		return notify.AlreadyTrackingText(res.Cached)
	}
	return notify.TrackStartedText(cachedStatus(res.Cached), b.rnd)
}

func cachedStatus(t *models.Tracking) models.ShipmentStatus {
	return models.ShipmentStatus{
		TrackingID:     t.TrackingID,
		StatusText:     t.StatusOr(models.StatusUnknown),
		EventTimestamp: t.DisplayTimestamp,
		Origin:         t.Origin,
		Destination:    t.Destination,
	}
}

func (b *Bot) untrack(ctx context.Context, chatID int64, arg string) string {
	if arg == "" {
		return notify.UsageText("untrack")
	}
	id, err := b.svc.Untrack(ctx, chatID, arg)
	switch {
	case errors.Is(err, trackings.ErrInvalidTrackingID):
		return notify.InvalidIDText()
	case errors.Is(err, trackings.ErrNotSubscribed):
		return notify.NotSubscribedText(id)
	case err != nil:
		slog.Error("untrack", "subscriber_id", chatID, "tracking_id", id, "error", err.Error())
		return notify.ErrorText()
	}
	return notify.UntrackedText(id)
}

func (b *Bot) list(ctx context.Context, chatID int64) string {
	ids, rows, err := b.svc.List(ctx, chatID)
	if err != nil {
		slog.Error("list", "subscriber_id", chatID, "error", err.Error())
		return notify.ErrorText()
	}
	return notify.FormatList(rows, ids)
}

func (b *Bot) info(ctx context.Context, arg string) string {
	if arg == "" {
		return notify.UsageText("info")
	}
	st, err := b.svc.Info(ctx, arg)
	switch {
	case errors.Is(err, trackings.ErrInvalidTrackingID):
		return notify.InvalidIDText()
	case errors.Is(err, trackings.ErrUnresolved):
		id, _ := trackings.NormalizeTrackingID(arg)
		return notify.UnresolvedText(id)
	case err != nil:
		slog.Error("info", "error", err.Error())
		return notify.ErrorText()
	}
	return notify.FormatInfo(st)
}
