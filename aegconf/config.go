// Package aegconf 负责集中式配置加载

package aegconf

import (
	"GeoAegis/internal/core/domain"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	defaultPort = 10224
	envPrefix   = "GEOAEGIS"
)

// RateLimitConfig 是限流设置；速率为 0 的一层不限流
type RateLimitConfig struct {
	PerSecond       float64 `mapstructure:"per_second" validate:"gte=0"`
	Burst           int     `mapstructure:"burst" validate:"gte=0"`
	GlobalPerSecond float64 `mapstructure:"global_per_second" validate:"gte=0"`
	GlobalBurst     int     `mapstructure:"global_burst" validate:"gte=0"`
}

type ServerConfig struct {
	Port        int             `mapstructure:"port" validate:"gt=0,lt=65536"`
	LogLevel    string          `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	PprofAddr   string          `mapstructure:"pprof_addr"`
	JWTSecret   string          `mapstructure:"jwt_secret"`
	CORSOrigins []string        `mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
}

// Config 结构体
type Config struct {
	Server    ServerConfig                     `mapstructure:"server"`
	Resources map[string]domain.ResourceConfig `mapstructure:"resources" validate:"required,min=1,dive"`
}

var validate = validator.New()

// Load 读取配置文件并叠加 GEOAEGIS_* 环境变量，例如 GEOAEGIS_SERVER_PORT
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", defaultPort)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.pprof_addr", "")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.rate_limit.per_second", 10)
	v.SetDefault("server.rate_limit.burst", 30)
	v.SetDefault("server.rate_limit.global_per_second", 0)
	v.SetDefault("server.rate_limit.global_burst", 0)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件 '%s' 失败: %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置到结构体失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验字段约束与资源之间的引用
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s 不满足 '%s'", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("配置校验失败: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("配置校验失败: %w", err)
	}
	for name, rc := range c.Resources {
		if _, ok := domain.LookupCatalog(rc.Catalog); !ok {
			return fmt.Errorf("资源 '%s' 引用了未知的字段目录 '%s'", name, rc.Catalog)
		}
		if _, ok := rc.Sources[rc.DefaultSource]; !ok {
			return fmt.Errorf("资源 '%s' 的默认数据源 '%s' 未定义", name, rc.DefaultSource)
		}
		for sname, sc := range rc.Sources {
			if _, ok := domain.LookupCatalog(sc.Catalog); !ok {
				return fmt.Errorf("数据源 '%s/%s' 引用了未知的字段目录 '%s'", name, sname, sc.Catalog)
			}
			switch sc.Kind {
			case domain.KindElasticsearch:
				if len(sc.Hosts) == 0 {
					return fmt.Errorf("数据源 '%s/%s' 未配置 hosts", name, sname)
				}
			case domain.KindMongo:
				if sc.DSN == "" && len(sc.Hosts) == 0 {
					return fmt.Errorf("数据源 '%s/%s' 需要 dsn 或 hosts", name, sname)
				}
			default:
				if sc.DSN == "" {
					return fmt.Errorf("数据源 '%s/%s' 未配置 dsn", name, sname)
				}
			}
			if err := checkExtraFilters(sc); err != nil {
				return fmt.Errorf("数据源 '%s/%s' %w", name, sname, err)
			}
		}
	}
	return nil
}

// checkExtraFilters 拒绝后端无法执行的附加过滤配置，避免配置的限制被静默忽略
func checkExtraFilters(sc domain.SourceConfig) error {
	switch sc.Kind {
	case domain.KindMongo, domain.KindElasticsearch:
		if len(sc.Where) > 0 {
			return fmt.Errorf("的类型 %s 不支持 where，请改用 filters", sc.Kind)
		}
	default:
		if len(sc.Filters) > 0 {
			return fmt.Errorf("的类型 %s 不支持 filters，请改用 where", sc.Kind)
		}
	}
	return nil
}
