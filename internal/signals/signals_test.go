package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leadwatch/pkg/models"
)

func TestExtractCategories(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "purchase intent",
			text: "Я хочу купить вашу систему",
			want: []string{CategoryPurchaseIntent},
		},
		{
			name: "price inquiry",
			text: "Сколько стоит внедрение?",
			want: []string{CategoryPriceInquiry},
		},
		{
			name: "multiple categories keep stable order",
			text: "Есть бюджет, срочно нужна интеграция",
			want: []string{CategoryBudgetDiscussion, CategoryUrgency, CategoryTechnicalInterest},
		},
		{
			name: "english pricing",
			text: "What's the price for the enterprise plan?",
			want: []string{CategoryPriceInquiry},
		},
		{
			name: "no signals",
			text: "Привет всем, как дела?",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Extract(tt.text))
		})
	}
}

func TestUrgencyLadder(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	assert.Equal(t, models.UrgencyImmediate, m.Urgency("Нужно прямо сейчас"))
	assert.Equal(t, models.UrgencyHigh, m.Urgency("Срочно, горит проект"))
	assert.Equal(t, models.UrgencyMedium, m.Urgency("Давайте на этой неделе"))
	assert.Equal(t, models.UrgencyLow, m.Urgency("Планируем в этом месяце"))
	assert.Equal(t, models.UrgencyNone, m.Urgency("Интересное решение"))

	// Most pressing level wins when several appear.
	assert.Equal(t, models.UrgencyImmediate, m.Urgency("Сегодня, максимум на этой неделе"))
}

func TestIsUltraStrong(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	assert.True(t, m.IsUltraStrong("Готов купить, куда платить?"))
	assert.True(t, m.IsUltraStrong("Когда можем начать?"))
	// Commitment plus monetary language in one message.
	assert.True(t, m.IsUltraStrong("Покупаем, выставляйте счет"))
	// Commitment without money talk is not ultra.
	assert.False(t, m.IsUltraStrong("Берем паузу до понедельника"))
	assert.False(t, m.IsUltraStrong("Интересно, расскажите подробнее"))
}

func TestIsQuestion(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	assert.True(t, m.IsQuestion("Какая цена?"))
	assert.True(t, m.IsQuestion("Как это работает"))
	assert.True(t, m.IsQuestion("How do I integrate this"))
	assert.False(t, m.IsQuestion("Отличное решение."))
}

func TestHasBusiness(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	assert.True(t, m.HasBusiness("Обсудим условия сотрудничества"))
	assert.True(t, m.HasBusiness("Need a price quote"))
	assert.False(t, m.HasBusiness("Погода сегодня отличная"))
}

func TestSentiment(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	assert.Equal(t, SentimentPositive, m.Sentiment("Отлично, спасибо, нравится!"))
	assert.Equal(t, SentimentNegative, m.Sentiment("Слишком дорого, не подходит"))
	assert.Equal(t, SentimentNeutral, m.Sentiment("Посмотрим на следующей неделе"))
}

func TestCustomConfigOverridesDefaults(t *testing.T) {
	cfg := Config{
		Categories: map[string][]string{
			CategoryPurchaseIntent: {"take my money"},
		},
	}
	m := NewMatcher(cfg)

	assert.Equal(t, []string{CategoryPurchaseIntent}, m.Extract("TAKE MY MONEY"))
	assert.Nil(t, m.Extract("хочу купить"))
}
