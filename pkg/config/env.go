package config

const (
	EnvPrefix = "PRINTDESK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "PRINTDESK_APP_ENV"
	EnvPort     = "PRINTDESK_APP_PORT"
	EnvLogLevel = "PRINTDESK_LOG_LEVEL"

	EnvDBDSN    = "PRINTDESK_DB_DSN"
	EnvDBDriver = "PRINTDESK_DB_DRIVER"
	EnvDBHost   = "PRINTDESK_DB_HOST"
	EnvDBUser   = "PRINTDESK_DB_USER"
	EnvDBName   = "PRINTDESK_DB_NAME"

	EnvRedisURL = "PRINTDESK_REDIS_URL"

	EnvJWTSecret = "PRINTDESK_JWT_SECRET"
	EnvJWTIssuer = "PRINTDESK_JWT_ISSUER"

	EnvAssignmentDefaultCapacity = "PRINTDESK_ASSIGNMENT_DEFAULT_CAPACITY"
	EnvAssignmentUrgentBikeBonus = "PRINTDESK_ASSIGNMENT_URGENT_BIKE_BONUS"
	EnvAttendanceTimezone        = "PRINTDESK_ATTENDANCE_TIMEZONE"
	EnvAttendanceSummaryWindow   = "PRINTDESK_ATTENDANCE_SUMMARY_WINDOW_DAYS"

	EnvGCPProjectID        = "PRINTDESK_GCP_PROJECT_ID"
	EnvPubSubDispatchTopic = "PRINTDESK_PUBSUB_DISPATCH_TOPIC"
)
