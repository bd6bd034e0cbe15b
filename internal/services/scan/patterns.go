package scan

import (
	"regexp"
	"strings"
)

// Severity вес признака мошенничества.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityHigh:
		return "High"
	case SeverityMedium:
		return "Medium"
	default:
		return "Low"
	}
}

// Pattern признак мошеннического сообщения.
type Pattern struct {
	Category    string
	Description string
	Severity    Severity
	re          *regexp.Regexp
}

// Phrase строит признак по фразе. Фраза ищется целыми словами без учёта регистра.
func Phrase(phrase, category, description string, severity Severity) Pattern {
	words := strings.Fields(strings.ToLower(phrase))
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	expr := `(?i)\b` + strings.Join(words, `\s+`) + `\b`
	return Pattern{Category: category, Description: description, Severity: severity, re: regexp.MustCompile(expr)}
}

// Regexp строит признак по регулярному выражению.
func Regexp(expr, category, description string, severity Severity) Pattern {
	return Pattern{Category: category, Description: description, Severity: severity, re: regexp.MustCompile(expr)}
}

func (p Pattern) match(text string) bool {
	return p.re.MatchString(text)
}

// DefaultPatterns набор признаков по умолчанию.
func DefaultPatterns() []Pattern {
	return []Pattern{
		Phrase("within 24 hours", "urgency", "Creates false time pressure", SeverityHigh),
		Phrase("within 48 hours", "urgency", "Creates false time pressure", SeverityHigh),
		Phrase("immediate action", "urgency", "Demands instant response", SeverityHigh),
		Phrase("act now", "urgency", "Creates false urgency", SeverityHigh),
		Phrase("final notice", "urgency", "Fake final warning", SeverityHigh),
		Phrase("account will be closed", "urgency", "Account closure threat", SeverityHigh),
		Phrase("urgent", "urgency", "General urgency signal", SeverityMedium),

		Phrase("gift card", "financial", "Gift card payment request", SeverityHigh),
		Phrase("wire transfer", "financial", "Wire transfer request", SeverityHigh),
		Phrase("western union", "financial", "Money transfer service", SeverityHigh),
		Phrase("moneygram", "financial", "Money transfer service", SeverityHigh),
		Phrase("bitcoin", "financial", "Cryptocurrency request", SeverityHigh),
		Phrase("send funds", "financial", "Money sending request", SeverityHigh),
		Phrase("processing fee", "financial", "Fake processing fee", SeverityHigh),

		Phrase("social security", "authority", "SSA impersonation", SeverityHigh),
		Phrase("irs", "authority", "IRS impersonation", SeverityHigh),
		Phrase("court order", "authority", "Fake court order", SeverityHigh),
		Phrase("legal action", "authority", "Legal threat", SeverityHigh),
		Phrase("government grant", "authority", "Fake government grant", SeverityHigh),

		Regexp(`(?i)\b(bit\.ly|tinyurl\.com|tiny\.cc|t\.co|short\.link)/`, "urls", "URL shorteners often hide malicious links", SeverityHigh),
		Regexp(`(?i)https?://[^/\s]*\.(ru|tk|ml|cf|top|xyz|click|download|stream)(/|\s|$)`, "urls", "Suspicious TLDs commonly used in scams", SeverityHigh),

		Phrase("congratulations you won", "generic", "Fake prize notification", SeverityHigh),
		Phrase("you have been selected", "generic", "Fake selection notification", SeverityHigh),
		Phrase("investment opportunity", "generic", "Fake investment scam", SeverityHigh),
		Phrase("risk free", "generic", "False risk-free claim", SeverityMedium),
		Phrase("work from home", "generic", "Fake work opportunity", SeverityMedium),

		Phrase("double your bitcoin", "crypto", "Bitcoin doubling scam", SeverityHigh),
		Phrase("guaranteed return", "crypto", "False guarantee", SeverityHigh),

		Phrase("confirm your ssn", "personal", "SSN request", SeverityHigh),
		Phrase("update your password", "personal", "Password phishing", SeverityHigh),
		Phrase("click here to verify", "personal", "Verification phishing", SeverityHigh),

		Phrase("need bail money", "relationship", "Fake bail request", SeverityHigh),
		Phrase("missed delivery", "delivery", "Fake delivery notification", SeverityHigh),
		Phrase("redelivery fee", "delivery", "Fake redelivery charge", SeverityHigh),
		Phrase("customs duty", "delivery", "Fake customs fee", SeverityHigh),

		Phrase("your computer is infected", "tech", "Fake virus alert", SeverityHigh),
		Phrase("suspicious activity", "tech", "Fake security alert", SeverityHigh),

		Phrase("are you there", "catfishing", "Checking if recipient is active", SeverityMedium),
		Phrase("r u there", "catfishing", "Checking if recipient is active", SeverityMedium),
		Phrase("you up", "catfishing", "Checking if recipient is awake", SeverityMedium),
		Phrase("wyd", "catfishing", "Checking current activity", SeverityMedium),
		Phrase("hello", "catfishing", "Generic greeting from unknown sender", SeverityLow),
		Phrase("hi", "catfishing", "Generic greeting from unknown sender", SeverityLow),
	}
}
