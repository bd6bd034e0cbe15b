// Package scan анализирует сообщения на признаки мошенничества.
//
// PatternAnalyzer встроенный анализатор по фразам и URL. Анализ с помощью
// языковой модели выполняет внешний коллаборатор через тот же интерфейс Analyzer.
package scan

import (
	"context"
	"strings"
)

// Verdict итог анализа.
type Verdict string

const (
	VerdictSafe    Verdict = "SAFE"
	VerdictUnsafe  Verdict = "UNSAFE"
	VerdictUnknown Verdict = "UNKNOWN"
)

// Message входные данные анализа.
type Message struct {
	Sender  string
	Body    string
	Context string
}

// Flag найденный признак.
type Flag struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// Result итог анализа сообщения.
type Result struct {
	Verdict     Verdict
	ThreatLevel string
	Flags       []Flag
}

// Analyzer анализирует сообщение.
type Analyzer interface {
	Analyze(ctx context.Context, msg Message) (Result, error)
}

// PatternAnalyzer ищет признаки из набора шаблонов.
type PatternAnalyzer struct {
	patterns []Pattern
}

// NewPatternAnalyzer создаёт анализатор. Пустой набор заменяется DefaultPatterns.
func NewPatternAnalyzer(patterns []Pattern) *PatternAnalyzer {
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}
	return &PatternAnalyzer{patterns: patterns}
}

// Analyze проверяет отправителя, текст и контекст сообщения.
// Высокий вес даёт UNSAFE, средний UNKNOWN, низкий или ничего SAFE.
func (a *PatternAnalyzer) Analyze(ctx context.Context, msg Message) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	text := strings.Join([]string{msg.Sender, msg.Body, msg.Context}, "\n")

	var (
		top   Severity
		flags []Flag
	)
	for _, p := range a.patterns {
		if !p.match(text) {
			continue
		}
		flags = append(flags, Flag{Category: p.Category, Description: p.Description, Severity: p.Severity.String()})
		top = max(top, p.Severity)
	}

	res := Result{Verdict: VerdictSafe, ThreatLevel: SeverityLow.String(), Flags: flags}
	switch top {
	case SeverityHigh:
		res.Verdict = VerdictUnsafe
		res.ThreatLevel = SeverityHigh.String()
	case SeverityMedium:
		res.Verdict = VerdictUnknown
		res.ThreatLevel = SeverityMedium.String()
	}
	if res.Flags == nil {
		res.Flags = []Flag{}
	}
	return res, nil
}
