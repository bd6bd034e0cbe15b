package jwt

import "strings"

// Scheme схема кодирования токена.
type Scheme int

const (
	SchemeUnknown Scheme = iota
	SchemeSigned
	SchemeLegacy
)

func (s Scheme) String() string {
	switch s {
	case SchemeSigned:
		return "signed"
	case SchemeLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// Classify определяет схему токена только по его структуре, без проверки подписи и срока.
func Classify(raw string) Scheme {
	if raw == "" {
		return SchemeUnknown
	}
	if parts := strings.Split(raw, "."); len(parts) == 3 {
		for _, p := range parts {
			if p == "" {
				return SchemeUnknown
			}
		}
		return SchemeSigned
	}
	if IsLegacy(raw) {
		return SchemeLegacy
	}
	return SchemeUnknown
}
