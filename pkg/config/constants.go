package config

const (
	EnvPrefix = "REFERMINT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "REFERMINT_DB_DSN"
	EnvDBHost = "REFERMINT_DB_HOST"
	EnvDBUser = "REFERMINT_DB_USER"
	EnvDBName = "REFERMINT_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
