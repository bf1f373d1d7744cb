// Package signals detects purchase intent, urgency, sentiment and
// ultra-strong commitment language in chat messages. Keyword lists are
// plain configuration so deployments can localize or extend them without
// touching engine code.
package signals

import (
	"strings"

	"github.com/leadwatch/pkg/models"
)

// Signal category names as stored on dialogue messages and leads.
const (
	CategoryPurchaseIntent    = "purchase_intent"
	CategoryPriceInquiry      = "price_inquiry"
	CategoryBudgetDiscussion  = "budget_discussion"
	CategoryUrgency           = "urgency"
	CategoryTechnicalInterest = "technical_interest"
	CategoryDecisionMaking    = "decision_making"
)

// Sentiment labels.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// Config holds every keyword list the matcher uses. All matching is
// lowercase substring matching.
type Config struct {
	Categories map[string][]string `koanf:"categories"`

	UrgencyImmediate []string `koanf:"urgency_immediate"`
	UrgencyHigh      []string `koanf:"urgency_high"`
	UrgencyMedium    []string `koanf:"urgency_medium"`
	UrgencyLow       []string `koanf:"urgency_low"`

	// UltraStrong phrases fire the cooldown bypass on their own.
	UltraStrong []string `koanf:"ultra_strong"`
	// Commitment and Monetary together also count as ultra-strong when
	// both appear in a single message.
	Commitment []string `koanf:"commitment"`
	Monetary   []string `koanf:"monetary"`

	Business []string `koanf:"business"`

	SentimentPositive []string `koanf:"sentiment_positive"`
	SentimentNegative []string `koanf:"sentiment_negative"`
}

// DefaultConfig returns the built-in Russian plus English keyword lists.
func DefaultConfig() Config {
	return Config{
		Categories: map[string][]string{
			CategoryPurchaseIntent: {
				"хочу купить", "готов купить", "планирую купить", "нужно купить",
				"хочу заказать", "готов заказать", "будем покупать", "берем", "беру",
				"want to buy", "ready to buy", "planning to buy", "will order",
			},
			CategoryPriceInquiry: {
				"сколько стоит", "какая цена", "цена вопроса", "стоимость", "прайс",
				"во сколько обойдется", "почем", "расценки",
				"how much", "what's the price", "pricing", "price list",
			},
			CategoryBudgetDiscussion: {
				"бюджет", "выделили деньги", "есть деньги", "готовы платить",
				"финансирование", "выделен бюджет",
				"budget", "allocated funds", "willing to pay",
			},
			CategoryUrgency: {
				"срочно", "как можно скорее", "горит", "вчера надо было",
				"до конца недели", "до конца месяца", "дедлайн",
				"urgent", "asap", "deadline",
			},
			CategoryTechnicalInterest: {
				"как это работает", "какие технологии", "интеграция", "api",
				"техническое задание", "функционал", "характеристики",
				"how does it work", "tech stack", "integration", "features",
			},
			CategoryDecisionMaking: {
				"принимаем решение", "решили", "выбираем", "согласовали",
				"утвердили", "останавливаемся на", "подписываем",
				"we decided", "approved", "choosing between", "signing",
			},
		},
		UrgencyImmediate: []string{
			"прямо сейчас", "немедленно", "сегодня", "в течение часа",
			"right now", "immediately", "today",
		},
		UrgencyHigh: []string{
			"срочно", "завтра", "как можно скорее", "горит",
			"urgent", "asap", "tomorrow",
		},
		UrgencyMedium: []string{
			"на этой неделе", "до конца недели", "в ближайшее время",
			"this week", "soon",
		},
		UrgencyLow: []string{
			"в этом месяце", "в перспективе", "когда-нибудь", "в планах",
			"this month", "eventually",
		},
		UltraStrong: []string{
			"готов купить", "хочу заказать", "сколько стоит", "когда можем начать",
			"есть бюджет", "подпишем договор",
		},
		Commitment: []string{
			"покупаем", "заказываем", "берем", "оплачиваем", "подписываем",
			"готов купить", "готовы купить", "хочу заказать", "решено",
			"buying", "ordering", "signing", "paying",
		},
		Monetary: []string{
			"руб", "рублей", "тысяч", "млн", "бюджет", "договор", "счет",
			"оплата", "предоплата", "аванс", "$", "€", "usd", "eur",
			"contract", "invoice", "payment", "budget",
		},
		Business: []string{
			"купить", "заказать", "цена", "стоит", "стоимость", "бюджет",
			"услуга", "предложение", "сотрудничество", "проект", "договор",
			"оплата", "прайс", "коммерческое", "поставка", "внедрение",
			"разработка", "интеграция", "сроки", "условия",
			"buy", "order", "price", "cost", "budget", "service", "offer",
			"project", "contract", "payment", "delivery", "terms",
		},
		SentimentPositive: []string{
			"отлично", "супер", "класс", "спасибо", "хорошо", "нравится",
			"интересно", "здорово", "great", "thanks", "awesome", "interested",
		},
		SentimentNegative: []string{
			"плохо", "ужасно", "дорого", "не нравится", "не подходит",
			"отказываемся", "разочарован", "bad", "expensive", "disappointed",
		},
	}
}

// Matcher answers keyword questions about message text. Safe for
// concurrent use; it is immutable after construction.
type Matcher struct {
	cfg Config
}

// NewMatcher builds a matcher from the given keyword config.
func NewMatcher(cfg Config) *Matcher {
	return &Matcher{cfg: cfg}
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// Extract returns the signal categories present in the text, in a stable
// category order.
func (m *Matcher) Extract(text string) []string {
	lower := strings.ToLower(text)
	order := []string{
		CategoryPurchaseIntent, CategoryPriceInquiry, CategoryBudgetDiscussion,
		CategoryUrgency, CategoryTechnicalInterest, CategoryDecisionMaking,
	}
	var found []string
	for _, cat := range order {
		if containsAny(lower, m.cfg.Categories[cat]) {
			found = append(found, cat)
		}
	}
	return found
}

// Urgency maps the text to the most pressing urgency level it mentions.
func (m *Matcher) Urgency(text string) models.Urgency {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, m.cfg.UrgencyImmediate):
		return models.UrgencyImmediate
	case containsAny(lower, m.cfg.UrgencyHigh):
		return models.UrgencyHigh
	case containsAny(lower, m.cfg.UrgencyMedium):
		return models.UrgencyMedium
	case containsAny(lower, m.cfg.UrgencyLow):
		return models.UrgencyLow
	}
	return models.UrgencyNone
}

// HasBusiness reports whether the text touches any business vocabulary.
func (m *Matcher) HasBusiness(text string) bool {
	return containsAny(strings.ToLower(text), m.cfg.Business)
}

// IsQuestion reports whether the text looks like a question.
func (m *Matcher) IsQuestion(text string) bool {
	trimmed := strings.TrimSpace(text)
	if strings.HasSuffix(trimmed, "?") {
		return true
	}
	lower := strings.ToLower(trimmed)
	starters := []string{
		"как ", "что ", "где ", "когда ", "почему ", "сколько ", "можно ли",
		"how ", "what ", "where ", "when ", "why ", "can ",
	}
	for _, s := range starters {
		if strings.HasPrefix(lower, s) {
			return true
		}
	}
	return false
}

// IsUltraStrong reports whether the message carries commitment language the
// trigger evaluator lets bypass every cooldown: either a known ultra phrase,
// or purchase commitment combined with concrete monetary or contract
// wording in the same message.
func (m *Matcher) IsUltraStrong(text string) bool {
	lower := strings.ToLower(text)
	if containsAny(lower, m.cfg.UltraStrong) {
		return true
	}
	return containsAny(lower, m.cfg.Commitment) && containsAny(lower, m.cfg.Monetary)
}

// Sentiment labels the text positive, negative or neutral by keyword count.
func (m *Matcher) Sentiment(text string) string {
	lower := strings.ToLower(text)
	pos, neg := 0, 0
	for _, p := range m.cfg.SentimentPositive {
		if strings.Contains(lower, p) {
			pos++
		}
	}
	for _, p := range m.cfg.SentimentNegative {
		if strings.Contains(lower, p) {
			neg++
		}
	}
	switch {
	case pos > neg:
		return SentimentPositive
	case neg > pos:
		return SentimentNegative
	}
	return SentimentNeutral
}
