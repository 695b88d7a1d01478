package config

const (
	// EnvPrefix is passed to envconfig; individual tags carry the full name.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBHost     = "MANDEX_DB_HOST"
	EnvDBPort     = "MANDEX_DB_PORT"
	EnvDBUser     = "MANDEX_DB_USER"
	EnvDBPassword = "MANDEX_DB_PASSWORD"
	EnvDBName     = "MANDEX_DB_NAME"
)
