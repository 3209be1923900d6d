package deploy

import (
	"fmt"
	"os"

	"github.com/Skyrin/go-deploy/e"
	"github.com/Skyrin/go-deploy/migration"
	"github.com/Skyrin/go-deploy/paramstore"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	ECode070201 = e.Code0702 + "01"
	ECode070202 = e.Code0702 + "02"
	ECode070203 = e.Code0702 + "03"
	ECode070204 = e.Code0702 + "04"

	// EnvFileKey names an optional .env file loaded before the config is parsed
	EnvFileKey = "DEPLOY_ENV_FILE"
)

// Config the deployment settings, read from the environment
type Config struct {
	// ParamPath the parameter store path holding the DB credentials. When
	// empty, they are read from the environment only.
	ParamPath string `env:"DEPLOY_PARAM_PATH"`
	AWSRegion string `env:"AWS_REGION"`

	// MigrationSource an s3:// prefix synced into MigrationDir. When empty,
	// MigrationDir is used as is.
	MigrationSource     string `env:"DEPLOY_MIGRATION_SOURCE"`
	MigrationDir        string `env:"DEPLOY_MIGRATION_DIR" envDefault:"migrations"`
	MigrationSyncDelete bool   `env:"DEPLOY_MIGRATION_SYNC_DELETE" envDefault:"true"`

	ArtifactSource string `env:"DEPLOY_ARTIFACT_SOURCE"`
	ArtifactPath   string `env:"DEPLOY_ARTIFACT_PATH"`

	Runner       string `env:"DEPLOY_MIGRATION_RUNNER" envDefault:"native"`
	FlywayBin    string `env:"DEPLOY_FLYWAY_BIN" envDefault:"flyway"`
	Schema       string `env:"DB_SCHEMA"`
	HistoryTable string `env:"DEPLOY_HISTORY_TABLE" envDefault:"flyway_schema_history"`
	JournalTable string `env:"DEPLOY_JOURNAL_TABLE" envDefault:"rollback_log"`

	ResultPath string `env:"DEPLOY_RESULT_PATH" envDefault:"deploy-result.env"`

	KafkaBrokers     []string `env:"DEPLOY_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic       string   `env:"DEPLOY_KAFKA_TOPIC" envDefault:"deployments"`
	KafkaRegion      string   `env:"KAFKA_REGION"`
	KafkaCreateTopic bool     `env:"DEPLOY_KAFKA_CREATE_TOPIC"`

	Dev      bool   `env:"DEV"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadConfig parses the config from the environment. If environment is nil,
// the process environment is used. If DEPLOY_ENV_FILE is set, the file is
// read first and its values fill in keys missing from the environment.
func LoadConfig(environment map[string]string) (c *Config, environ map[string]string, err error) {
	if environment == nil {
		environment = paramstore.Environ(os.Environ())
	}

	environ = environment
	if f := environment[EnvFileKey]; f != "" {
		fileEnv, err := godotenv.Read(f)
		if err != nil {
			return nil, nil, e.WWM(err, ECode070201, e.MsgConfigInvalid, f)
		}
		environ = paramstore.Overlay(fileEnv, environment)
	}

	c = &Config{}
	if err := env.ParseWithOptions(c, env.Options{Environment: environ}); err != nil {
		return nil, nil, e.WWM(err, ECode070202, e.MsgConfigInvalid)
	}

	if err := c.validate(); err != nil {
		return nil, nil, e.W(err, ECode070203)
	}

	return c, environ, nil
}

// validate checks the settings that depend on each other
func (c *Config) validate() (err error) {
	var msg string
	switch {
	case c.Runner != migration.RunnerNative && c.Runner != migration.RunnerFlyway:
		msg = fmt.Sprintf("unknown migration runner: %s", c.Runner)
	case c.ArtifactSource != "" && c.ArtifactPath == "":
		msg = "DEPLOY_ARTIFACT_PATH is required with DEPLOY_ARTIFACT_SOURCE"
	case c.MigrationDir == "":
		msg = "DEPLOY_MIGRATION_DIR is required"
	case c.ResultPath == "":
		msg = "DEPLOY_RESULT_PATH is required"
	case len(c.KafkaBrokers) > 0 && c.KafkaTopic == "":
		msg = "DEPLOY_KAFKA_TOPIC is required with DEPLOY_KAFKA_BROKERS"
	default:
		return nil
	}

	return e.WWM(nil, ECode070204, e.MsgConfigInvalid, msg)
}

// UsesAWS checks if any step needs an AWS client
func (c *Config) UsesAWS() bool {
	return c.ParamPath != "" || c.MigrationSource != "" || c.ArtifactSource != ""
}

// SchemaName the schema migrations are applied to, as used in events
func (c *Config) SchemaName() string {
	if c.Schema == "" {
		return "public"
	}
	return c.Schema
}
