package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"blockproof/internal/hasher"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Log      LogConfig      `mapstructure:"log"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Fabric   FabricConfig   `mapstructure:"fabric"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Verify   VerifyConfig   `mapstructure:"verify"`
	Hash     HashConfig     `mapstructure:"hash"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	// Migrations is the directory of *.sql files applied at startup.
	Migrations string `mapstructure:"migrations"`
}

type NATSConfig struct {
	// URL may be empty, in which case events are not published.
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Ledger drivers.
const (
	LedgerMemory   = "memory"
	LedgerPostgres = "postgres"
	LedgerSQLite   = "sqlite"
	LedgerFabric   = "fabric"
)

type LedgerConfig struct {
	Driver     string        `mapstructure:"driver"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SQLitePath string        `mapstructure:"sqlite_path"`
}

// FabricConfig locates the gateway peer and the client identity used to
// submit transactions to the certificate chaincode.
type FabricConfig struct {
	PeerEndpoint string `mapstructure:"peer_endpoint"`
	GatewayPeer  string `mapstructure:"gateway_peer"`
	MSPID        string `mapstructure:"msp_id"`
	CertPath     string `mapstructure:"cert_path"`
	KeyPath      string `mapstructure:"key_path"`
	TLSCertPath  string `mapstructure:"tls_cert_path"`
	Channel      string `mapstructure:"channel"`
	Chaincode    string `mapstructure:"chaincode"`
}

// Oracle drivers.
const (
	OracleNone = "none"
	OracleHTTP = "http"
	OracleNATS = "nats"
)

type OracleConfig struct {
	Driver   string        `mapstructure:"driver"`
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Subject  string        `mapstructure:"subject"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Cache    bool          `mapstructure:"cache"`
}

type VerifyConfig struct {
	TrustThreshold    int `mapstructure:"trust_threshold"`
	NeutralConfidence int `mapstructure:"neutral_confidence"`
}

type HashConfig struct {
	Algorithm string `mapstructure:"algorithm"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "blockproof")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.migrations", "migrations")

	v.SetDefault("nats.url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("ledger.driver", LedgerMemory)
	v.SetDefault("ledger.timeout", 5*time.Second)
	v.SetDefault("ledger.sqlite_path", "blockproof.db")

	v.SetDefault("fabric.peer_endpoint", "localhost:7051")
	v.SetDefault("fabric.gateway_peer", "peer0.org1.example.com")
	v.SetDefault("fabric.msp_id", "Org1MSP")
	v.SetDefault("fabric.cert_path", "")
	v.SetDefault("fabric.key_path", "")
	v.SetDefault("fabric.tls_cert_path", "")
	v.SetDefault("fabric.channel", "mychannel")
	v.SetDefault("fabric.chaincode", "certificates")

	v.SetDefault("oracle.driver", OracleNone)
	v.SetDefault("oracle.endpoint", "")
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.subject", "oracle.certificates.score")
	v.SetDefault("oracle.timeout", 5*time.Second)
	v.SetDefault("oracle.cache", false)

	v.SetDefault("verify.trust_threshold", 60)
	v.SetDefault("verify.neutral_confidence", 70)

	v.SetDefault("hash.algorithm", hasher.DefaultAlgorithm)
}

// Load reads configuration from the environment (SERVER_PORT, LEDGER_DRIVER,
// ORACLE_ENDPOINT, ...) layered over an optional file named by CONFIG_FILE.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("config_file", "CONFIG_FILE"); err != nil {
		return nil, fmt.Errorf("failed to bind CONFIG_FILE: %w", err)
	}
	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks driver names, ranges and driver-specific requirements.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Ledger.Driver {
	case LedgerMemory, LedgerPostgres:
	case LedgerSQLite:
		if c.Ledger.SQLitePath == "" {
			return fmt.Errorf("ledger.sqlite_path is required for the sqlite driver")
		}
	case LedgerFabric:
		if c.Fabric.CertPath == "" || c.Fabric.KeyPath == "" || c.Fabric.TLSCertPath == "" {
			return fmt.Errorf("fabric.cert_path, fabric.key_path and fabric.tls_cert_path are required for the fabric driver")
		}
	default:
		return fmt.Errorf("unknown ledger driver %q", c.Ledger.Driver)
	}
	if c.Ledger.Timeout <= 0 {
		return fmt.Errorf("ledger.timeout must be positive")
	}

	switch c.Oracle.Driver {
	case OracleNone:
	case OracleHTTP:
		if c.Oracle.Endpoint == "" {
			return fmt.Errorf("oracle.endpoint is required for the http driver")
		}
	case OracleNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("nats.url is required for the nats oracle driver")
		}
		if c.Oracle.Subject == "" {
			return fmt.Errorf("oracle.subject is required for the nats driver")
		}
	default:
		return fmt.Errorf("unknown oracle driver %q", c.Oracle.Driver)
	}
	if c.Oracle.Timeout <= 0 {
		return fmt.Errorf("oracle.timeout must be positive")
	}

	if c.Verify.TrustThreshold < 0 || c.Verify.TrustThreshold > 100 {
		return fmt.Errorf("verify.trust_threshold must be between 0 and 100, got %d", c.Verify.TrustThreshold)
	}
	if c.Verify.NeutralConfidence < 0 || c.Verify.NeutralConfidence > 100 {
		return fmt.Errorf("verify.neutral_confidence must be between 0 and 100, got %d", c.Verify.NeutralConfidence)
	}

	if !hasher.Supported(c.Hash.Algorithm) {
		return fmt.Errorf("unsupported hash.algorithm %q", c.Hash.Algorithm)
	}

	return nil
}

// NeedsDatabase reports whether any component requires the Postgres pool.
func (c *Config) NeedsDatabase() bool {
	return c.Ledger.Driver == LedgerPostgres || c.Oracle.Cache
}

func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
