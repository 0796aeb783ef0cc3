// Package logger provides a singleton Zap logger with context-based scoping.
//
// # Design
//
//   - Singleton: una sola instancia global inicializada con Init().
//   - Context scoping: cada request lleva su propio logger con request_id, method y path,
//     inyectado por el middleware WithLogging.
//   - Environments: "dev" usa consola con colores, "prod" usa JSON.
//   - PII: los emails se loguean siempre enmascarados (ver MaskEmail).
//
// # Usage
//
//	logger.Init(logger.Config{
//	    Env:   os.Getenv("APP_ENV"),
//	    Level: os.Getenv("LOG_LEVEL"),
//	})
//	defer logger.Sync()
//
//	log := logger.From(ctx).With(logger.Component("o365auth.flow"))
//	log.Info("user provisioned", logger.UserID(id))
package logger
