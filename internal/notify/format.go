package notify

import (
	"fmt"
	"strings"

	"github.com/leadwatch/pkg/models"
)

// maxMessageLen keeps rendered alerts under Telegram's 4096-character
// sendMessage limit with headroom for the closing lines.
const maxMessageLen = 4000

// Format renders a notification as the operator alert text. Priority tiers
// get distinct headers so urgent alerts stand out in the operator chat.
func Format(n models.Notification) string {
	var b strings.Builder

	switch n.Tier {
	case "urgent":
		b.WriteString("🚨 ГОРЯЧИЙ ЛИД")
	case "high":
		b.WriteString("🔥 Перспективный диалог")
	default:
		b.WriteString("💎 Потенциальный интерес")
	}
	fmt.Fprintf(&b, " — %s\n\n", n.ChannelTitle)

	if n.Summary != "" {
		fmt.Fprintf(&b, "%s\n\n", n.Summary)
	}

	fmt.Fprintf(&b, "Уверенность: %d%% | Релевантность: %d%%\n", n.ConfidenceScore, n.BusinessRelevance)
	fmt.Fprintf(&b, "Участников: %d | Сообщений: %d\n", n.ParticipantCount, n.MessageCount)

	if len(n.Breakdown) > 0 {
		b.WriteString("\nУчастники:\n")
		for _, line := range n.Breakdown {
			name := line.Name
			if line.Username != "" {
				name = fmt.Sprintf("%s (@%s)", name, line.Username)
			}
			fmt.Fprintf(&b, "• %s — %d%% (%s)\n", name, line.Probability, line.Quality)
		}
	}

	if len(n.KeyInsights) > 0 {
		b.WriteString("\nКлючевые наблюдения:\n")
		for _, insight := range n.KeyInsights {
			fmt.Fprintf(&b, "• %s\n", insight)
		}
	}

	if len(n.RecommendedActions) > 0 {
		b.WriteString("\nРекомендации:\n")
		for _, action := range n.RecommendedActions {
			fmt.Fprintf(&b, "• %s\n", action)
		}
	}

	if n.NextBestAction != "" {
		fmt.Fprintf(&b, "\n➡️ Следующий шаг: %s\n", n.NextBestAction)
	}

	text := b.String()
	if len(text) > maxMessageLen {
		text = text[:maxMessageLen]
		// Don't cut a UTF-8 sequence in half.
		for len(text) > 0 && text[len(text)-1]&0xC0 == 0x80 {
			text = text[:len(text)-1]
		}
		if len(text) > 0 && text[len(text)-1] >= 0xC0 {
			text = text[:len(text)-1]
		}
		text += "…"
	}
	return text
}
