// Package sl содержит вспомогательные функции для логгера slog.
package sl

import "log/slog"

// Err возвращает атрибут "error" с текстом ошибки. Для nil значение пустое.
//
//	log.Error("failed to extend subscription", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Op возвращает логгер с полем op, по которому ищутся записи одной операции.
func Op(log *slog.Logger, op string) *slog.Logger {
	return log.With(slog.String("op", op))
}
