package service

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed bots.yml
var botsYAML []byte

var (
	defaultBotsOnce sync.Once
	defaultBots     []string
)

// defaultBotFragments возвращает встроенный список фрагментов ботов
func defaultBotFragments() []string {
	defaultBotsOnce.Do(func() {
		fragments, err := parseBotFragments(botsYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded bots.yml: %v", err))
		}
		defaultBots = fragments
	})
	return defaultBots
}

// parseBotFragments читает YAML вида {fragments: [...]}
func parseBotFragments(data []byte) ([]string, error) {
	var list struct {
		Fragments []string `yaml:"fragments"`
	}
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse bot fragments: %w", err)
	}
	return normalizeFragments(list.Fragments), nil
}

func normalizeFragments(in []string) []string {
	out := make([]string, 0, len(in))
	for _, f := range in {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// BotClassifier определяет ботов по подстроке в User-Agent.
// Чистая функция без состояния, безопасна для конкурентного использования.
type BotClassifier struct {
	fragments []string
}

// NewBotClassifier создаёт классификатор. Пустой список = встроенный bots.yml
func NewBotClassifier(fragments []string) *BotClassifier {
	normalized := normalizeFragments(fragments)
	if len(normalized) == 0 {
		normalized = defaultBotFragments()
	}
	return &BotClassifier{fragments: normalized}
}

// IsBot сообщает, похож ли User-Agent на краулер. Пустая строка не бот
func (c *BotClassifier) IsBot(userAgent string) bool {
	_, ok := c.Match(userAgent)
	return ok
}

// Match возвращает первый совпавший фрагмент
func (c *BotClassifier) Match(userAgent string) (string, bool) {
	if userAgent == "" {
		return "", false
	}

	ua := strings.ToLower(userAgent)
	for _, fragment := range c.fragments {
		if strings.Contains(ua, fragment) {
			return fragment, true
		}
	}

	return "", false
}
