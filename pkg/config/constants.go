package config

const (
	EnvPrefix = "STOCKRUN"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv = "STOCKRUN_APP_ENV"
	EnvPort   = "STOCKRUN_APP_PORT"

	EnvDBDSN  = "STOCKRUN_DB_DSN"
	EnvDBHost = "STOCKRUN_DB_HOST"
	EnvDBUser = "STOCKRUN_DB_USER"
	EnvDBName = "STOCKRUN_DB_NAME"

	EnvRedisURL  = "STOCKRUN_REDIS_URL"
	EnvJWTSecret = "STOCKRUN_JWT_SECRET"
	EnvJWTIssuer = "STOCKRUN_JWT_ISSUER"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
