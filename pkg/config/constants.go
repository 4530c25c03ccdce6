package config

const (
	EnvPrefix = "lensrent"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv = "LENSRENT_APP_ENV"
	EnvPort   = "LENSRENT_APP_PORT"

	EnvDBDSN  = "LENSRENT_DB_DSN"
	EnvDBHost = "LENSRENT_DB_HOST"
	EnvDBUser = "LENSRENT_DB_USER"
	EnvDBName = "LENSRENT_DB_NAME"

	EnvRedisURL = "LENSRENT_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
