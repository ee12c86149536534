package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"xchg/pkg/http"
	"xchg/pkg/logging"
	"xchg/pkg/s3client"
	"xchg/pkg/signer"
	"xchg/pkg/types"
	"xchg/pkg/utils"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Logging         logging.Config             `yaml:"logging"`
	Server          ServerConfig               `yaml:"server"`
	ExchangeConfigs map[string]*ExchangeConfig `yaml:"exchange"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"` // defaults to :3000, SERVER_PORT overrides
}

type ExchangeConfig struct {
	ExchangeName   types.ExchangeName `yaml:"exchange"`
	EnvPrefix      string             `yaml:"envPrefix"`      // reads <PREFIX>_API_KEY, _API_SECRET, _API_PASSPHRASE
	Authentication map[string]string  `yaml:"authentication"` // optional inline key, secret, passphrase
	Network        NetworkConfig      `yaml:"network"`
	Optional       map[string]string  `yaml:"optional"`
	Markets        []MarketConfig     `yaml:"markets"`
}

type NetworkConfig struct {
	ConnectionTimeout     int      `yaml:"connectionTimeout"` // seconds
	NonFatalErrorCodes    []int    `yaml:"nonFatalErrorCodes"`
	NonFatalErrorMessages []string `yaml:"nonFatalErrorMessages"`
	MaxAttempts           int      `yaml:"maxAttempts"`
	RetryDelayMs          int      `yaml:"retryDelayMs"`
	MaxRetryDelayMs       int      `yaml:"maxRetryDelayMs"`
}

type MarketConfig struct {
	Id              string `yaml:"id"`
	BaseCurrency    string `yaml:"baseCurrency"`
	CounterCurrency string `yaml:"counterCurrency"`
}

const (
	OptionalBuyFee           = "buy-fee"  // percent, e.g. "0.25"
	OptionalSellFee          = "sell-fee" // percent
	OptionalRetryCreateOrder = "retry-create-order"
	OptionalBaseUrl          = "base-url"
)

// Credentials resolves the account credentials, inline authentication
// first and the <PREFIX>_API_* environment variables second.
func (c *ExchangeConfig) Credentials() (signer.Credentials, error) {
	creds := signer.Credentials{
		Key:        c.Authentication["key"],
		Secret:     c.Authentication["secret"],
		Passphrase: c.Authentication["passphrase"],
	}
	if creds.Key == "" && c.EnvPrefix != "" {
		creds.Key = utils.LoadEnvWithDefault(c.EnvPrefix+"_API_KEY", "")
	}
	if creds.Secret == "" && c.EnvPrefix != "" {
		creds.Secret = utils.LoadEnvWithDefault(c.EnvPrefix+"_API_SECRET", "")
	}
	if creds.Passphrase == "" && c.EnvPrefix != "" {
		creds.Passphrase = utils.LoadEnvWithDefault(c.EnvPrefix+"_API_PASSPHRASE", "")
	}
	if creds.Key == "" || creds.Secret == "" {
		return signer.Credentials{}, fmt.Errorf("API key or secret is not set: exchange %v, prefix %v", c.ExchangeName, c.EnvPrefix)
	}
	return creds, nil
}

func (c *ExchangeConfig) OptionalItem(key string) (string, bool) {
	v, ok := c.Optional[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// OptionalBool reads a flag from the optional items, then from the
// <PREFIX>_<KEY> environment variable.
func (c *ExchangeConfig) OptionalBool(key string) bool {
	v, ok := c.OptionalItem(key)
	if !ok {
		if c.EnvPrefix == "" {
			return false
		}
		envKey := c.EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
		return utils.LoadBoolEnvWithDefault(envKey, false)
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// RetryPolicy fills unset fields from http.DefaultRetryPolicy.
func (n NetworkConfig) RetryPolicy() http.RetryPolicy {
	policy := http.DefaultRetryPolicy()
	if n.ConnectionTimeout > 0 {
		policy.Timeout = time.Duration(n.ConnectionTimeout) * time.Second
	}
	if n.NonFatalErrorCodes != nil {
		policy.NonFatalStatusCodes = n.NonFatalErrorCodes
	}
	if n.NonFatalErrorMessages != nil {
		policy.NonFatalMessages = n.NonFatalErrorMessages
	}
	if n.MaxAttempts > 0 {
		policy.MaxAttempts = n.MaxAttempts
	}
	if n.RetryDelayMs > 0 {
		policy.RetryDelay = time.Duration(n.RetryDelayMs) * time.Millisecond
	}
	if n.MaxRetryDelayMs > 0 {
		policy.MaxRetryDelay = time.Duration(n.MaxRetryDelayMs) * time.Millisecond
	}
	return policy
}

var yamlFiles = map[types.EnvName]string{
	types.EnvLocal: "xchg.yaml",
	types.EnvDev:   "xchg.dev.yaml",
	types.EnvProd:  "xchg.prod.yaml",
}

func LoadConfig(envName types.EnvName, yamlMode types.YamlMode) (*Config, error) {
	fileName, ok := yamlFiles[envName]
	if !ok {
		return nil, fmt.Errorf("unknown environment '%v'", envName)
	}

	// read YAML file
	var data []byte
	var err error
	switch yamlMode {
	case types.YamlModeS3:
		data, err = loadFromS3(fileName)
	default:
		data, err = os.ReadFile(fileName)
	}
	if err != nil {
		return nil, fmt.Errorf("fail to load config file '%s': %v", fileName, err)
	}
	log.Debugf("config file '%v' loaded (%v)", fileName, yamlMode)
	config, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := config.applyServerEnv(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyServerEnv() error {
	if utils.LoadEnvWithDefault("SERVER_PORT", "") == "" {
		return nil
	}
	port, err := utils.LoadIntEnv("SERVER_PORT")
	if err != nil {
		return err
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("env 'SERVER_PORT' is out of range: %v", port)
	}
	c.Server.Addr = fmt.Sprintf(":%d", port)
	return nil
}

func loadFromS3(fileName string) ([]byte, error) {
	bucket, err := utils.LoadEnv("CONFIG_S3_BUCKET")
	if err != nil {
		return nil, err
	}
	s3Client, err := s3client.Init(
		utils.LoadEnvWithDefault("AWS_ACCESS_KEY", ""),
		utils.LoadEnvWithDefault("AWS_SECRET_KEY", ""),
		utils.LoadEnvWithDefault("AWS_REGION", s3client.DefaultRegion),
	)
	if err != nil {
		return nil, err
	}
	return s3client.GetObject(s3Client, bucket, utils.LoadEnvWithDefault("CONFIG_S3_PREFIX", "")+fileName)
}

func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("fail to decode config: %v", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	for exchgId, exchgConfig := range c.ExchangeConfigs {
		if exchgConfig == nil {
			return fmt.Errorf("exchange '%v' has no config", exchgId)
		}
		switch exchgConfig.ExchangeName {
		case types.ExchangeBfl, types.ExchangeBgt, types.ExchangeBns:
		default:
			return fmt.Errorf("exchange '%v': unsupported exchange '%v'", exchgId, exchgConfig.ExchangeName)
		}
		n := exchgConfig.Network
		if n.ConnectionTimeout < 0 || n.MaxAttempts < 0 || n.RetryDelayMs < 0 || n.MaxRetryDelayMs < 0 {
			return fmt.Errorf("exchange '%v': network settings must not be negative", exchgId)
		}
		for _, key := range []string{OptionalBuyFee, OptionalSellFee} {
			if v, ok := exchgConfig.OptionalItem(key); ok {
				if _, err := utils.PercentToFraction(v); err != nil {
					return fmt.Errorf("exchange '%v': invalid %v: %v", exchgId, key, err)
				}
			}
		}
		for _, m := range exchgConfig.Markets {
			if m.Id == "" {
				return fmt.Errorf("exchange '%v': market without id", exchgId)
			}
		}
	}
	return nil
}
