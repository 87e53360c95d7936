package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/BearBump/TrackBot/internal/models"
)

type theme struct {
	header, pin, route, clock string
}

var themes = []theme{
	{"🔔", "📍", "✈️", "🕒"},
	{"🆙", "📌", "🛳️", "⏱️"},
	{"📣", "🚩", "🚚", "🕰️"},
}

// Rand picks a theme index in [0, n).
type Rand func(n int) int

const maxInfoEvents = 10

// Flag renders a two-letter region code as a flag emoji.
func Flag(code string) string {
	if len(code) != 2 {
		return "🌍"
	}
	var b strings.Builder
	for _, c := range strings.ToUpper(code) {
		if c < 'A' || c > 'Z' {
			return "🌍"
		}
		b.WriteRune(0x1F1E6 + (c - 'A'))
	}
	return b.String()
}

func route(origin, dest models.Location) string {
	return fmt.Sprintf("%s %s ➜ %s %s",
		Flag(origin.RegionCode), html.EscapeString(orUnknown(origin.Name)),
		Flag(dest.RegionCode), html.EscapeString(orUnknown(dest.Name)))
}

func orUnknown(s string) string {
	if s == "" {
		return models.LocationUnknown
	}
	return s
}

// FormatStatus renders a status notification. initial marks the first status
// observed for a shipment.
func FormatStatus(st models.ShipmentStatus, initial bool, rnd Rand) string {
	th := themes[rnd(len(themes))]
	header := "ОНОВЛЕННЯ СТАТУСУ"
	if initial {
		header = "ПОЧАТОК МОНІТОРИНГУ"
	}

	lines := []string{
		fmt.Sprintf("<b>%s %s</b>", th.header, header),
		fmt.Sprintf("📦 <b>Посилка:</b> <code>%s</code>", html.EscapeString(st.TrackingID)),
		fmt.Sprintf("%s <b>Статус:</b> %s", th.pin, html.EscapeString(st.StatusText)),
		"",
		fmt.Sprintf("%s <b>Маршрут:</b> %s", th.route, route(st.Origin, st.Destination)),
	}
	if d := strings.TrimSpace(st.LastEventDetail); d != "" {
		lines = append(lines, "<blockquote>"+html.EscapeString(d)+"</blockquote>")
	}
	lines = append(lines, fmt.Sprintf("<i>%s %s</i>", th.clock, html.EscapeString(orTimestamp(st.EventTimestamp))))
	return strings.Join(lines, "\n")
}

func orTimestamp(s string) string {
	if s == "" || s == models.TimestampUnknown {
		return "Час невідомий"
	}
	return s
}

// FormatList renders the caller's trackings; rows must already be sorted.
func FormatList(rows []*models.Tracking, ids []string) string {
	if len(ids) == 0 {
		return "📭 Ви ще не відстежуєте жодної посилки.\nДодайте посилку командою:\n<code>/track НОМЕР</code>"
	}
	byID := make(map[string]*models.Tracking, len(rows))
	for _, r := range rows {
		byID[r.TrackingID] = r
	}

	lines := []string{"📦 <b>Ваші посилки:</b>"}
	for _, id := range ids {
		r := byID[id]
		status := r.StatusOr("Статус ще невідомий")
		ts := "Час невідомий"
		if r != nil && !r.LastUpdateTime.IsZero() {
			ts = r.LastUpdateTime.Format("2006-01-02 15:04:05")
		}
		line := fmt.Sprintf("• <code>%s</code> — %s (<i>%s</i>)", html.EscapeString(id), html.EscapeString(status), ts)
		if r != nil {
			line += "\n   " + route(r.Origin, r.Destination)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// FormatInfo renders live detail with the newest events last.
func FormatInfo(st models.ShipmentStatus) string {
	lines := []string{
		fmt.Sprintf("🔎 <b>Посилка:</b> <code>%s</code>", html.EscapeString(st.TrackingID)),
		fmt.Sprintf("📍 <b>Статус:</b> %s", html.EscapeString(st.StatusText)),
		fmt.Sprintf("✈️ <b>Маршрут:</b> %s", route(st.Origin, st.Destination)),
		fmt.Sprintf("<i>🕒 %s</i>", html.EscapeString(orTimestamp(st.EventTimestamp))),
	}

	events := st.EventHistory
	if len(events) > maxInfoEvents {
		events = events[len(events)-maxInfoEvents:]
	}
	if len(events) > 0 {
		lines = append(lines, "", "<b>Історія:</b>")
		for _, e := range events {
			l := fmt.Sprintf("• <i>%s</i> %s", html.EscapeString(orTimestamp(e.Timestamp)), html.EscapeString(e.Description))
			if e.Location != "" {
				l += " (" + html.EscapeString(e.Location) + ")"
			}
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

func HelpText() string {
	return "Привіт! Я бот для відстеження посилок.\n\n" +
		"Команди:\n" +
		"• <code>/track НОМЕР</code> — почати відслідковувати посилку\n" +
		"• <code>/untrack НОМЕР</code> — припинити відслідковування\n" +
		"• <code>/list</code> — список всіх ваших посилок\n" +
		"• <code>/info НОМЕР</code> — детальна історія посилки"
}

func UsageText(command string) string {
	return fmt.Sprintf("❗ Формат: /%s AEBT123456789", command)
}

func InvalidIDText() string {
	return "❗ Некоректний номер. Дозволені латинські літери, цифри та дефіс, від 5 до 40 символів."
}

func TrackStartedText(st models.ShipmentStatus, rnd Rand) string {
	return fmt.Sprintf("🟢 Я почав слідкувати за посилкою <code>%s</code>.\nПодивитися всі свої посилки: <code>/list</code>\n\n",
		html.EscapeString(st.TrackingID)) + FormatStatus(st, true, rnd)
}

func AlreadyTrackingText(t *models.Tracking) string {
	return fmt.Sprintf("ℹ️ Ви вже відстежуєте <code>%s</code>.\nПоточний статус: %s",
		html.EscapeString(t.TrackingID), html.EscapeString(t.StatusOr("Статус ще невідомий")))
}

func UnresolvedText(id string) string {
	return fmt.Sprintf("⚠️ Не вдалося знайти посилку <code>%s</code>. Перевірте номер і спробуйте пізніше.", html.EscapeString(id))
}

func UntrackedText(id string) string {
	return fmt.Sprintf("🔕 Більше не слідкую за посилкою <code>%s</code>.", html.EscapeString(id))
}

func NotSubscribedText(id string) string {
	return fmt.Sprintf("ℹ️ Ви не відстежували посилку <code>%s</code>.", html.EscapeString(id))
}

func ErrorText() string {
	return "⚠️ Щось пішло не так. Спробуйте пізніше."
}
