// Package sl содержит вспомогательные функции для работы с логгером slog.
// Задаёт единообразные структурированные поля лога для ошибок,
// операций и идентичностей вызывающей стороны.
package sl

import (
	"io"
	"log/slog"
	"os"
)

// Err возвращает slog.Attr с ключом "error" и текстом ошибки.
// Для nil ошибки пишется пустая строка, чтобы логирование никогда не паниковало.
//
// Пример:
//
//	log.Error("failed to do something", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Op возвращает атрибут с именем операции.
func Op(op string) slog.Attr {
	return slog.String("op", op)
}

// Identity возвращает группу с идентичностью и уровнем доверия вызывающего.
func Identity(identity, tier string) slog.Attr {
	return slog.Group("caller",
		slog.String("identity", identity),
		slog.String("tier", tier),
	)
}

// SetupLogger создаёт текстовый логгер в stdout. В окружениях local и dev
// включается уровень debug.
func SetupLogger(env string) *slog.Logger {
	return newLogger(os.Stdout, env)
}

func newLogger(w io.Writer, env string) *slog.Logger {
	level := slog.LevelInfo
	switch env {
	case "local", "dev":
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
