package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shouni/go-igc-fetch/pkg/httpclient"
	"github.com/shouni/go-igc-fetch/pkg/retry"
)

// EnvPrefix は、設定値を上書きする環境変数の接頭辞です (例: IGC_FETCH_OUTPUT)。
const EnvPrefix = "IGC_FETCH"

// 設定キー。CLIのフラグ名と一致させ、BindPFlags でそのまま束縛できるようにしています。
const (
	KeyOutput     = "output"
	KeyTimeout    = "timeout"
	KeyMaxRetries = "max-retries"
	KeyUserAgent  = "user-agent"
	KeyVerbose    = "verbose"
	KeyDryRun     = "dry-run"
)

const (
	DefaultOutput     = "."
	DefaultTimeoutSec = int(httpclient.DefaultHTTPTimeout / time.Second)
	DefaultMaxRetries = retry.DefaultMaxRetries
)

// Config は、1回の実行に必要な設定値です。
type Config struct {
	Output     string `mapstructure:"output"`
	TimeoutSec int    `mapstructure:"timeout"`
	MaxRetries int    `mapstructure:"max-retries"`
	UserAgent  string `mapstructure:"user-agent"`
	Verbose    bool   `mapstructure:"verbose"`
	DryRun     bool   `mapstructure:"dry-run"`
}

// New は、既定値と環境変数の読み込みを設定した viper インスタンスを返します。
// フラグの束縛は呼び出し側で v.BindPFlags により行います。
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyOutput, DefaultOutput)
	v.SetDefault(KeyTimeout, DefaultTimeoutSec)
	v.SetDefault(KeyMaxRetries, DefaultMaxRetries)
	v.SetDefault(KeyUserAgent, httpclient.DefaultUserAgent)
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyDryRun, false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v
}

// Load は、viper に集約された値 (フラグ > 環境変数 > 既定値) を Config に読み込み、検証します。
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗しました: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate は設定値の範囲を検証します。
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Output) == "" {
		return fmt.Errorf("出力ディレクトリが空です")
	}
	if c.TimeoutSec <= 0 {
		return fmt.Errorf("タイムアウトは1秒以上を指定してください: %d", c.TimeoutSec)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("リトライ回数は0以上を指定してください: %d", c.MaxRetries)
	}
	return nil
}

// Timeout は、HTTPリクエスト1回あたりのタイムアウトを返します。
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// RetryConfig は、クロール時のリトライ設定を返します。
func (c *Config) RetryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxRetries = uint64(c.MaxRetries)
	return cfg
}
