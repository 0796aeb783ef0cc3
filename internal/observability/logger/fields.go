package logger

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTP

func RequestID(v string) zap.Field { return zap.String("request_id", v) }

func Method(v string) zap.Field { return zap.String("method", v) }

func Path(v string) zap.Field { return zap.String("path", v) }

func Status(v int) zap.Field { return zap.Int("status", v) }

func Bytes(v int) zap.Field { return zap.Int("bytes", v) }

func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }

func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }

// Negocio

func UserID(v string) zap.Field { return zap.String("user_id", v) }

// Email loguea el email enmascarado; nunca el valor completo.
func Email(v string) zap.Field { return zap.String("email_masked", MaskEmail(v)) }

// Stage crea un campo para la etapa del flujo de login.
func Stage(v string) zap.Field { return zap.String("stage", v) }

// Kind crea un campo para el tipo de falla del flujo.
func Kind(v string) zap.Field { return zap.String("kind", v) }

// Sistema

func Component(v string) zap.Field { return zap.String("component", v) }

func Op(v string) zap.Field { return zap.String("op", v) }

func Layer(v string) zap.Field { return zap.String("layer", v) }

func Err(err error) zap.Field { return zap.Error(err) }

func Any(key string, v any) zap.Field { return zap.Any(key, v) }

func String(key, v string) zap.Field { return zap.String(key, v) }

func Int(key string, v int) zap.Field { return zap.Int(key, v) }

func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }

// MaskEmail muestra los primeros 2 caracteres del local part y el dominio.
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at < 0 {
		if len(email) < 3 {
			return "***"
		}
		return email[:2] + "***"
	}
	if at < 2 {
		return "***" + email[at:]
	}
	return email[:2] + "***" + email[at:]
}
