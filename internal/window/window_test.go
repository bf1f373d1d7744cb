package window

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/leadwatch/internal/signals"
	"github.com/leadwatch/pkg/models"
)

var base = time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	return NewClassifier(DefaultConfig(), signals.NewMatcher(signals.DefaultConfig()), zerolog.Nop())
}

func msg(channel, sender, id int64, text string, at time.Time) models.InboundMessage {
	return models.InboundMessage{
		ChannelID: channel,
		SenderID:  sender,
		MessageID: id,
		Text:      text,
		Timestamp: at,
	}
}

func TestSingleSenderIsIndividual(t *testing.T) {
	c := newTestClassifier(t)

	w := c.Classify(1, msg(1, 100, 1, "Сколько стоит ваша услуга?", base))
	assert.Equal(t, models.WindowIndividual, w.Kind)
	assert.Equal(t, 1, w.Senders)
	assert.True(t, w.Business)
}

func TestQuickCrossSenderResponseIsDialogue(t *testing.T) {
	c := newTestClassifier(t)

	c.Classify(1, msg(1, 100, 1, "Какая цена?", base))
	w := c.Classify(1, msg(1, 200, 2, "Присоединяюсь, нам тоже интересно", base.Add(30*time.Second)))

	assert.Equal(t, models.WindowDialogue, w.Kind)
	assert.Equal(t, 2, w.Senders)
	assert.Equal(t, 1, w.QuickResponses)
}

func TestSlowUnlinkedSecondSenderStaysIndividual(t *testing.T) {
	c := newTestClassifier(t)

	c.Classify(1, msg(1, 100, 1, "Доброе утро", base))
	w := c.Classify(1, msg(1, 200, 2, "Всем привет", base.Add(10*time.Minute)))

	assert.Equal(t, models.WindowIndividual, w.Kind)
}

func TestReplyLinkMakesDialogue(t *testing.T) {
	c := newTestClassifier(t)

	c.Classify(1, msg(1, 100, 1, "Предлагаем внедрение за месяц", base))
	reply := msg(1, 200, 2, "А сроки точно реальные", base.Add(5*time.Minute))
	reply.ReplyToMessageID = 1
	w := c.Classify(1, reply)

	assert.Equal(t, models.WindowDialogue, w.Kind)
	assert.True(t, w.HasReplyLink)
}

func TestThreeActiveSendersIsGroupChat(t *testing.T) {
	c := newTestClassifier(t)

	c.Classify(1, msg(1, 100, 1, "Коллеги, выбираем подрядчика", base))
	c.Classify(1, msg(1, 200, 2, "Я за вариант А", base.Add(20*time.Second)))
	c.Classify(1, msg(1, 300, 3, "Поддерживаю", base.Add(40*time.Second)))
	w := c.Classify(1, msg(1, 100, 4, "Тогда запрашиваю условия", base.Add(60*time.Second)))

	assert.Equal(t, models.WindowGroupChat, w.Kind)
	assert.Equal(t, 3, w.Senders)
	assert.GreaterOrEqual(t, w.QuickResponses, 2)
}

func TestHorizonEvictsStaleMessages(t *testing.T) {
	c := newTestClassifier(t)

	c.Classify(1, msg(1, 100, 1, "старое сообщение", base))
	w := c.Classify(1, msg(1, 200, 2, "новое сообщение", base.Add(20*time.Minute)))

	// The stale message fell off, so only one sender remains visible.
	assert.Equal(t, models.WindowIndividual, w.Kind)
	assert.Equal(t, 1, w.Senders)
	assert.Len(t, w.Messages, 1)
}

func TestBufferCappedAtTwiceWindowSize(t *testing.T) {
	cfg := Config{Size: 3, Horizon: time.Hour, QuickResponseGap: 2 * time.Minute}
	c := NewClassifier(cfg, signals.NewMatcher(signals.DefaultConfig()), zerolog.Nop())

	var w Window
	for i := 0; i < 10; i++ {
		w = c.Classify(1, msg(1, 100, int64(i+1), "сообщение", base.Add(time.Duration(i)*time.Second)))
	}

	assert.Len(t, w.Messages, 3)
	c.mu.Lock()
	assert.LessOrEqual(t, len(c.buffers[1]), 6)
	c.mu.Unlock()
}

func TestChannelsAreIndependent(t *testing.T) {
	c := newTestClassifier(t)

	c.Classify(1, msg(1, 100, 1, "Какая цена?", base))
	w := c.Classify(2, msg(2, 200, 1, "Ответ в другом канале", base.Add(10*time.Second)))

	assert.Equal(t, models.WindowIndividual, w.Kind)
	assert.Equal(t, 1, w.Senders)
}
