// Package redact маскирует секреты и персональные данные перед записью в лог.
package redact

import "strings"

// tokenTail — сколько последних символов токена оставлять для корреляции записей.
const tokenTail = 6

// Email оставляет первые две руны локальной части и домен.
func Email(s string) string {
	parts := strings.Split(s, "@")
	if len(parts) != 2 {
		return "***"
	}

	local, domain := []rune(parts[0]), parts[1]
	if len(local) > 2 {
		return string(local[:2]) + "***@" + domain
	}

	return "***@" + domain
}

// Token оставляет только хвост токена: у JWT это часть подписи,
// по ней можно сопоставить записи, но нельзя восстановить токен.
func Token(s string) string {
	if len(s) < 4*tokenTail {
		return "[REDACTED_TOKEN]"
	}

	return "***" + s[len(s)-tokenTail:]
}

func Password() string { return "[REDACTED_PASSWORD]" }
