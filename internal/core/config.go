package core

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config 应用程序配置
type Config struct {
	Scrape     ScrapeConfig     `mapstructure:"scrape"`
	Proxy      ProxyConfig      `mapstructure:"proxy"`
	Mitigation MitigationConfig `mapstructure:"mitigation"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Resource   ResourceConfig   `mapstructure:"resource"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Headers    map[string]string `mapstructure:"headers"`
}

// ScrapeConfig 采集配置
type ScrapeConfig struct {
	// Mode 采集模式: capture(仅浏览器) / poll(仅API) / both(双路径)
	Mode           string   `mapstructure:"mode"`
	TargetURL      string   `mapstructure:"target_url"`
	APIBase        string   `mapstructure:"api_base"`
	APIPaths       []string `mapstructure:"api_paths"`
	Interval       int      `mapstructure:"interval"`
	WaitTime       int      `mapstructure:"wait_time"`
	Headless       bool     `mapstructure:"headless"`
	MonitorNetwork bool     `mapstructure:"monitor_network"`
}

// ProxyConfig 代理配置
// URL为空时退回轮换状态文件里的代理;凭据单独给出时注入URL
type ProxyConfig struct {
	URL       string `mapstructure:"url"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	StateFile string `mapstructure:"state_file"`
}

// MitigationConfig 拦截缓解配置
type MitigationConfig struct {
	TargetCountry string `mapstructure:"target_country"`
	CandidateCap  int    `mapstructure:"candidate_cap"`
	BatchWidth    int    `mapstructure:"batch_width"`
	WhoamiURL     string `mapstructure:"whoami_url"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// ResourceConfig 资源闸门配置
type ResourceConfig struct {
	MinFreeMemoryMB int `mapstructure:"min_free_memory_mb"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// 设置配置文件
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".tippmixwatch"))
		}
	}

	setDefaults(v)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 采集配置默认值
	v.SetDefault("scrape.mode", "both")
	v.SetDefault("scrape.target_url", "https://www.tippmix.hu/mobil/sportfogadas#?sportid=999&countryid=99999988&page=1")
	v.SetDefault("scrape.api_base", "https://api.tippmix.hu")
	v.SetDefault("scrape.api_paths", []string{"/tippmix/search", "/tippmix/events", "/tippmix/livematches"})
	v.SetDefault("scrape.interval", 20)
	v.SetDefault("scrape.wait_time", 8)
	v.SetDefault("scrape.headless", true)
	v.SetDefault("scrape.monitor_network", true)

	// 代理配置默认值
	v.SetDefault("proxy.state_file", "active_proxy.txt")

	// 缓解配置默认值
	v.SetDefault("mitigation.target_country", "HU")
	v.SetDefault("mitigation.candidate_cap", 200)
	v.SetDefault("mitigation.batch_width", 20)
	v.SetDefault("mitigation.whoami_url", "https://api.myip.com")

	// 存储配置默认值
	v.SetDefault("storage.db_path", "tippmix.db")

	// 资源闸门默认值
	v.SetDefault("resource.min_free_memory_mb", 512)

	// 日志配置默认值
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)
}

// MergeCLIFlags 合并命令行参数到配置
// 命令行参数优先于配置文件;布尔参数传nil表示未显式指定,保留配置文件的值
func (c *Config) MergeCLIFlags(mode string, dbPath string, interval int, headless *bool, monitorNetwork *bool, proxyURL string) {
	if mode != "" {
		c.Scrape.Mode = mode
	}
	if dbPath != "" {
		c.Storage.DBPath = dbPath
	}
	if interval > 0 {
		c.Scrape.Interval = interval
	}
	if headless != nil {
		c.Scrape.Headless = *headless
	}
	if monitorNetwork != nil {
		c.Scrape.MonitorNetwork = *monitorNetwork
	}
	if proxyURL != "" {
		c.Proxy.URL = proxyURL
	}
}

// ResolveProxyOverride 计算强制代理
// 优先级: 配置/CLI > 环境变量;凭据未内嵌时注入
func (c *Config) ResolveProxyOverride() string {
	proxy := c.Proxy.URL
	if proxy == "" {
		for _, key := range []string{"PROXY_URL", "HTTPS_PROXY", "HTTP_PROXY"} {
			if v := os.Getenv(key); v != "" {
				proxy = v
				break
			}
		}
	}
	if proxy == "" {
		return ""
	}
	return injectCredentials(proxy, c.Proxy.Username, c.Proxy.Password)
}

// injectCredentials 把独立配置的账号密码注入代理URL
// URL已内嵌userinfo时保持原样
func injectCredentials(proxy, username, password string) string {
	if username == "" {
		return proxy
	}
	u, err := url.Parse(proxy)
	if err != nil || u.User != nil {
		return proxy
	}
	if password != "" {
		u.User = url.UserPassword(username, password)
	} else {
		u.User = url.User(username)
	}
	return u.String()
}
