// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Config 是服务的全量配置。启动时从 YAML 文件加载一次，
// 敏感项和部署相关项允许用环境变量覆盖。
// Pricing 段可由配置中心热更新（见 nacos.go）。
type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Infra struct {
		Mysql struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addrs string `yaml:"addrs"` // 逗号分隔
		} `yaml:"redis"`
		Kafka struct {
			Brokers           []string `yaml:"brokers"`
			NotificationTopic string   `yaml:"notification_topic"`
			AuditTopic        string   `yaml:"audit_topic"`
		} `yaml:"kafka"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Zookeeper struct {
			Enabled bool     `yaml:"enabled"`
			Servers []string `yaml:"servers"`
		} `yaml:"zookeeper"`
		Nacos struct {
			Enabled     bool   `yaml:"enabled"`
			ServerAddrs string `yaml:"server_addrs"`
			Namespace   string `yaml:"namespace"`
			Group       string `yaml:"group"`
			DataID      string `yaml:"data_id"` // Pricing 段的配置项 ID
		} `yaml:"nacos"`
	} `yaml:"infra"`

	Checkout struct {
		Gateway struct {
			BaseURL        string `yaml:"base_url"`
			CallbackSecret string `yaml:"callback_secret"`
			Currency       string `yaml:"currency"`
			TimeoutMS      int    `yaml:"timeout_ms"`
		} `yaml:"gateway"`
		ReservationTTLMinutes int `yaml:"reservation_ttl_minutes"`
		Sweep                 struct {
			IntervalSeconds int `yaml:"interval_seconds"`
			Batch           int `yaml:"batch"`
		} `yaml:"sweep"`
		RateLimit struct {
			OrdersPerWindow      int `yaml:"orders_per_window"`
			OrdersWindowMinutes  int `yaml:"orders_window_minutes"`
			IntentsPerWindow     int `yaml:"intents_per_window"`
			IntentsWindowMinutes int `yaml:"intents_window_minutes"`
		} `yaml:"rate_limit"`
	} `yaml:"checkout"`

	Pricing PricingSection `yaml:"pricing"`
}

// PricingSection 是计价配置段，单独抽出来以便配置中心整段热替换。
type PricingSection struct {
	TaxRatePercent        float64 `yaml:"tax_rate_percent"`
	ShippingRate          int64   `yaml:"shipping_rate"`
	FreeShippingThreshold int64   `yaml:"free_shipping_threshold"`
	CodSurcharge          int64   `yaml:"cod_surcharge"`
}

var currentConfig atomic.Value // *Config

// Init 加载配置文件并应用环境变量覆盖。必须在使用 GetCurrentConfig 之前调用。
func Init() error {
	cfg := defaultConfig()

	path := getEnv("CONFIG_PATH", "config/checkout.yaml")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	currentConfig.Store(cfg)
	return nil
}

// GetCurrentConfig 返回当前配置快照。
func GetCurrentConfig() *Config {
	return currentConfig.Load().(*Config)
}

// SwapPricing 用新的计价段替换当前配置，供配置中心回调使用。
func SwapPricing(p PricingSection) {
	old := GetCurrentConfig()
	next := *old
	next.Pricing = p
	currentConfig.Store(&next)
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8088
	cfg.Infra.Mysql.DSN = "root:root@tcp(localhost:3306)/vertex?charset=utf8mb4&parseTime=True&loc=UTC"
	cfg.Infra.Redis.Addrs = "localhost:6379"
	cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Infra.Kafka.NotificationTopic = "order-notifications"
	cfg.Infra.Kafka.AuditTopic = "checkout-audit"
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	cfg.Infra.Nacos.DataID = "checkout-pricing"
	cfg.Checkout.Gateway.Currency = "INR"
	cfg.Checkout.Gateway.TimeoutMS = 5000
	cfg.Checkout.ReservationTTLMinutes = 15
	cfg.Checkout.Sweep.IntervalSeconds = 30
	cfg.Checkout.Sweep.Batch = 100
	cfg.Checkout.RateLimit.OrdersPerWindow = 5
	cfg.Checkout.RateLimit.OrdersWindowMinutes = 15
	cfg.Checkout.RateLimit.IntentsPerWindow = 10
	cfg.Checkout.RateLimit.IntentsWindowMinutes = 5
	cfg.Pricing = PricingSection{
		TaxRatePercent:        18,
		ShippingRate:          49,
		FreeShippingThreshold: 500,
		CodSurcharge:          0,
	}
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("MYSQL_DSN"); ok {
		cfg.Infra.Mysql.DSN = v
	}
	if v, ok := os.LookupEnv("REDIS_ADDRS"); ok {
		cfg.Infra.Redis.Addrs = v
	}
	if v, ok := os.LookupEnv("JAEGER_ENDPOINT"); ok {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v, ok := os.LookupEnv("PAYMENT_GATEWAY_URL"); ok {
		cfg.Checkout.Gateway.BaseURL = v
	}
	if v, ok := os.LookupEnv("PAYMENT_CALLBACK_SECRET"); ok {
		cfg.Checkout.Gateway.CallbackSecret = v
	}
	if v, ok := os.LookupEnv("NACOS_SERVER_ADDRS"); ok {
		cfg.Infra.Nacos.ServerAddrs = v
		cfg.Infra.Nacos.Enabled = true
	}
	if v, ok := os.LookupEnv("NACOS_NAMESPACE"); ok {
		cfg.Infra.Nacos.Namespace = v
	}
	if v, ok := os.LookupEnv("SERVER_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

// getEnv 从环境变量中读取配置，不存在时返回默认值。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
