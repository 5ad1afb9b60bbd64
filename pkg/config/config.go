package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Assignment   AssignmentConfig
	Attendance   AttendanceConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

// Load reads PRINTDESK_* variables and reports every invalid setting in one
// error rather than stopping at the first.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	err := c.DB.resolveDSN()
	if _, tzErr := c.Attendance.Location(); tzErr != nil {
		err = multierr.Append(err, tzErr)
	}
	if c.Assignment.DefaultCapacity < 1 {
		err = multierr.Append(err, fmt.Errorf("%s must be at least 1", EnvAssignmentDefaultCapacity))
	}
	if c.Attendance.SummaryWindowDays < 1 {
		err = multierr.Append(err, fmt.Errorf("%s must be at least 1", EnvAttendanceSummaryWindow))
	}
	if c.Outbox.BatchSize < 1 || c.Outbox.MaxAttempts < 1 {
		err = multierr.Append(err, fmt.Errorf("outbox batch size and max attempts must be positive"))
	}
	return err
}

type AppConfig struct {
	Env          string `envconfig:"PRINTDESK_APP_ENV" required:"true"`
	Port         string `envconfig:"PRINTDESK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PRINTDESK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PRINTDESK_LOG_WARN_STACK" default:"false"`
	// CORSOrigins is a comma separated allow-list for browser clients.
	CORSOrigins []string `envconfig:"PRINTDESK_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PRINTDESK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PRINTDESK_DB_DSN"`
	Driver string `envconfig:"PRINTDESK_DB_DRIVER" default:"postgres"`

	// Host and friends assemble a Postgres DSN when DSN is unset.
	Host     string `envconfig:"PRINTDESK_DB_HOST"`
	Port     int    `envconfig:"PRINTDESK_DB_PORT" default:"5432"`
	User     string `envconfig:"PRINTDESK_DB_USER"`
	Password string `envconfig:"PRINTDESK_DB_PASSWORD"`
	Name     string `envconfig:"PRINTDESK_DB_NAME"`
	SSLMode  string `envconfig:"PRINTDESK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PRINTDESK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PRINTDESK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PRINTDESK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PRINTDESK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver targets the embedded store.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"PRINTDESK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PRINTDESK_REDIS_ADDR"`
	Password     string        `envconfig:"PRINTDESK_REDIS_PASSWORD"`
	DB           int           `envconfig:"PRINTDESK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PRINTDESK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PRINTDESK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PRINTDESK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PRINTDESK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PRINTDESK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies tokens minted by the upstream identity provider.
type JWTConfig struct {
	Secret string `envconfig:"PRINTDESK_JWT_SECRET"`
	Issuer string `envconfig:"PRINTDESK_JWT_ISSUER" default:"printdesk"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PRINTDESK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PRINTDESK_AUTO_MIGRATE" default:"false"`
	RequireAuth bool `envconfig:"PRINTDESK_REQUIRE_AUTH" default:"false"`
}

// AssignmentConfig tunes the agent scoring engine and default capacity.
type AssignmentConfig struct {
	DefaultCapacity        int     `envconfig:"PRINTDESK_ASSIGNMENT_DEFAULT_CAPACITY" default:"5"`
	HeadroomWeight         float64 `envconfig:"PRINTDESK_ASSIGNMENT_HEADROOM_WEIGHT" default:"40"`
	ProximityMaxPoints     float64 `envconfig:"PRINTDESK_ASSIGNMENT_PROXIMITY_MAX_POINTS" default:"30"`
	NeutralProximityPoints float64 `envconfig:"PRINTDESK_ASSIGNMENT_NEUTRAL_PROXIMITY_POINTS" default:"15"`
	UrgentBikeBonus        float64 `envconfig:"PRINTDESK_ASSIGNMENT_URGENT_BIKE_BONUS" default:"20"`
	StandardCarBonus       float64 `envconfig:"PRINTDESK_ASSIGNMENT_STANDARD_CAR_BONUS" default:"10"`
	TenureDivisorDays      float64 `envconfig:"PRINTDESK_ASSIGNMENT_TENURE_DIVISOR_DAYS" default:"10"`
	TenureMaxPoints        float64 `envconfig:"PRINTDESK_ASSIGNMENT_TENURE_MAX_POINTS" default:"10"`
}

type AttendanceConfig struct {
	Timezone          string `envconfig:"PRINTDESK_ATTENDANCE_TIMEZONE" default:"UTC"`
	SummaryWindowDays int    `envconfig:"PRINTDESK_ATTENDANCE_SUMMARY_WINDOW_DAYS" default:"7"`
	HolidayCalendar   string `envconfig:"PRINTDESK_ATTENDANCE_HOLIDAY_CALENDAR" default:"us"`
}

// Location resolves the timezone used to derive attendance day keys.
func (a AttendanceConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(a.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", EnvAttendanceTimezone, name, err)
	}
	return loc, nil
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"PRINTDESK_CRON_INTERVAL" default:"1h"`
	LockTTL         time.Duration `envconfig:"PRINTDESK_CRON_LOCK_TTL" default:"10m"`
	OutboxRetention time.Duration `envconfig:"PRINTDESK_CRON_OUTBOX_RETENTION" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PRINTDESK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PRINTDESK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PRINTDESK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DispatchTopic string `envconfig:"PRINTDESK_PUBSUB_DISPATCH_TOPIC" default:"printdesk-dispatch-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PRINTDESK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PRINTDESK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PRINTDESK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) resolveDSN() error {
	switch {
	case db.DSN != "":
		return nil
	case db.IsSQLite():
		return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DBDriverSQLite)
	}

	var missing []string
	for env, value := range map[string]string{EnvDBHost: db.Host, EnvDBUser: db.User, EnvDBName: db.Name} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("set %s or all of %s", EnvDBDSN, strings.Join(missing, ", "))
	}

	dsn := url.URL{
		Scheme: DBDriverPostgres,
		User:   url.UserPassword(db.User, db.Password),
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   db.Name,
	}
	if db.Password == "" {
		dsn.User = url.User(db.User)
	}
	if db.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}
