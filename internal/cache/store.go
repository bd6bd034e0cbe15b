// Package cache описывает абстракцию key-value хранилища и её реализации:
// in-memory для локальной разработки и Redis для продакшена.
//
// Хранилище не предоставляет атомарного инкремента: вызывающие выполняют
// read-modify-write, поэтому счётчики при конкурентных запросах приблизительны.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable оборачивает любые сетевые ошибки и ошибки драйвера хранилища.
var ErrStoreUnavailable = errors.New("store unavailable")

// Store контракт key-value хранилища. Значения сериализуются в JSON.
// ttl == 0 означает запись без срока жизни.
type Store interface {
	// Get читает значение в result. found == false, если ключа нет или он истёк.
	Get(ctx context.Context, key string, result any) (found bool, err error)
	// Set сохраняет значение с необязательным временем жизни.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Delete удаляет ключ. Удаление отсутствующего ключа не ошибка.
	Delete(ctx context.Context, key string) error
}

// Pinger реализуют бэкенды, умеющие проверять доступность.
type Pinger interface {
	Ping(ctx context.Context) error
}
