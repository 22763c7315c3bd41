package config

import (
	"time"

	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/ncleton-petitmaker/post-veille-ia/pkg/logger"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	Database    DatabaseConfig    `yaml:"database"`
	Logger      logger.Config     `yaml:"logger"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Auth        AuthConfig        `yaml:"auth"`
	Images      ImagesConfig      `yaml:"images"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Browser     BrowserConfig     `yaml:"browser"`
	Automation  AutomationConfig  `yaml:"automation"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// StoreConfig locates the scheduled posts document and the directory relative
// image paths resolve against.
type StoreConfig struct {
	Path        string `yaml:"path"`
	ProjectRoot string `yaml:"project_root"`
	Timezone    string `yaml:"timezone"`
}

// Location returns the zone scheduled_date/scheduled_time are interpreted in.
func (s StoreConfig) Location() *time.Location {
	if s.Timezone == "" || s.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

type SchedulerConfig struct {
	Disabled      bool          `yaml:"disabled"`
	TickInterval  time.Duration `yaml:"tick_interval"`
	StatsInterval time.Duration `yaml:"stats_interval"`
}

type AuthConfig struct {
	TOTPSecret string `yaml:"totp_secret"`
}

type ImagesConfig struct {
	MaxWidth   int    `yaml:"max_width"`
	S3Region   string `yaml:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint"`
}

type CoordinatorConfig struct {
	APIURL            string        `yaml:"api_url"`
	CheckInterval     time.Duration `yaml:"check_interval"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	ReadyTimeout      time.Duration `yaml:"ready_timeout"`
	ReadyPollInterval time.Duration `yaml:"ready_poll_interval"`
	Control           ControlConfig `yaml:"control"`
	Cache             CacheConfig   `yaml:"cache"`
}

// ControlConfig is the local API the popup used to reach the background worker.
type ControlConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type CacheConfig struct {
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Key           string `yaml:"key"`
}

type BrowserConfig struct {
	RemoteURL         string        `yaml:"remote_url"`
	ExecPath          string        `yaml:"exec_path"`
	UserDataDir       string        `yaml:"user_data_dir"`
	Headless          bool          `yaml:"headless"`
	FeedURL           string        `yaml:"feed_url"`
	ExistingTabSettle time.Duration `yaml:"existing_tab_settle"`
	NewTabSettle      time.Duration `yaml:"new_tab_settle"`
}

// AutomationConfig holds every bound and settle delay used while driving the composer.
type AutomationConfig struct {
	ElementTimeout       time.Duration `yaml:"element_timeout"`
	MediaTimeout         time.Duration `yaml:"media_timeout"`
	FileInputTimeout     time.Duration `yaml:"file_input_timeout"`
	ScheduleInputTimeout time.Duration `yaml:"schedule_input_timeout"`
	PollInterval         time.Duration `yaml:"poll_interval"`
	DateLayout           string        `yaml:"date_layout"`
	Delays               DelayConfig   `yaml:"delays"`
}

// DelayConfig holds the fixed settle delays between composer steps.
type DelayConfig struct {
	Navigation     time.Duration `yaml:"navigation"`
	Scroll         time.Duration `yaml:"scroll"`
	ComposerOpen   time.Duration `yaml:"composer_open"`
	ComposerSettle time.Duration `yaml:"composer_settle"`
	Focus          time.Duration `yaml:"focus"`
	TextSettle     time.Duration `yaml:"text_settle"`
	MediaOpen      time.Duration `yaml:"media_open"`
	UploadSettle   time.Duration `yaml:"upload_settle"`
	BeforePublish  time.Duration `yaml:"before_publish"`
	AfterPublish   time.Duration `yaml:"after_publish"`
	EditorScan     time.Duration `yaml:"editor_scan"`
	EditorNext     time.Duration `yaml:"editor_next"`
	EditorReady    time.Duration `yaml:"editor_ready"`
	SchedulerOpen  time.Duration `yaml:"scheduler_open"`
	FieldSettle    time.Duration `yaml:"field_settle"`
	ModalStep      time.Duration `yaml:"modal_step"`
	ConfirmSettle  time.Duration `yaml:"confirm_settle"`
	ConfirmRetry   time.Duration `yaml:"confirm_retry"`
	TriggerSettle  time.Duration `yaml:"trigger_settle"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// ApplyDefaults fills every zero value with the value the tools were tuned with.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3847
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = "output/scheduled_posts.json"
	}
	if cfg.Store.ProjectRoot == "" {
		cfg.Store.ProjectRoot = "."
	}

	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}

	if cfg.Scheduler.TickInterval == 0 {
		cfg.Scheduler.TickInterval = time.Minute
	}
	if cfg.Scheduler.StatsInterval == 0 {
		cfg.Scheduler.StatsInterval = time.Minute
	}

	if cfg.Coordinator.APIURL == "" {
		cfg.Coordinator.APIURL = "http://127.0.0.1:3847"
	}
	if cfg.Coordinator.CheckInterval == 0 {
		cfg.Coordinator.CheckInterval = 60 * time.Second
	}
	if cfg.Coordinator.RequestTimeout == 0 {
		cfg.Coordinator.RequestTimeout = 15 * time.Second
	}
	if cfg.Coordinator.ReadyTimeout == 0 {
		cfg.Coordinator.ReadyTimeout = 30 * time.Second
	}
	if cfg.Coordinator.ReadyPollInterval == 0 {
		cfg.Coordinator.ReadyPollInterval = time.Second
	}
	if cfg.Coordinator.Control.Host == "" {
		cfg.Coordinator.Control.Host = "127.0.0.1"
	}
	if cfg.Coordinator.Control.Port == 0 {
		cfg.Coordinator.Control.Port = 3848
	}
	if cfg.Coordinator.Cache.Backend == "" {
		cfg.Coordinator.Cache.Backend = "memory"
	}
	if cfg.Coordinator.Cache.RedisAddr == "" {
		cfg.Coordinator.Cache.RedisAddr = "localhost:6379"
	}
	if cfg.Coordinator.Cache.Key == "" {
		cfg.Coordinator.Cache.Key = "veille:scheduled_posts"
	}

	if cfg.Browser.FeedURL == "" {
		cfg.Browser.FeedURL = "https://www.linkedin.com/feed/"
	}
	if cfg.Browser.ExistingTabSettle == 0 {
		cfg.Browser.ExistingTabSettle = 3 * time.Second
	}
	if cfg.Browser.NewTabSettle == 0 {
		cfg.Browser.NewTabSettle = 5 * time.Second
	}

	ApplyAutomationDefaults(&cfg.Automation)
}

func ApplyAutomationDefaults(a *AutomationConfig) {
	if a.ElementTimeout == 0 {
		a.ElementTimeout = 10 * time.Second
	}
	if a.MediaTimeout == 0 {
		a.MediaTimeout = 5 * time.Second
	}
	if a.FileInputTimeout == 0 {
		a.FileInputTimeout = 3 * time.Second
	}
	if a.ScheduleInputTimeout == 0 {
		a.ScheduleInputTimeout = 5 * time.Second
	}
	if a.PollInterval == 0 {
		a.PollInterval = 100 * time.Millisecond
	}
	if a.DateLayout == "" {
		a.DateLayout = "02/01/2006"
	}

	d := &a.Delays
	setDefault(&d.Navigation, 3*time.Second)
	setDefault(&d.Scroll, 300*time.Millisecond)
	setDefault(&d.ComposerOpen, 2*time.Second)
	setDefault(&d.ComposerSettle, 500*time.Millisecond)
	setDefault(&d.Focus, 200*time.Millisecond)
	setDefault(&d.TextSettle, 300*time.Millisecond)
	setDefault(&d.MediaOpen, 300*time.Millisecond)
	setDefault(&d.UploadSettle, 500*time.Millisecond)
	setDefault(&d.BeforePublish, 2*time.Second)
	setDefault(&d.AfterPublish, 3*time.Second)
	setDefault(&d.EditorScan, 150*time.Millisecond)
	setDefault(&d.EditorNext, 700*time.Millisecond)
	setDefault(&d.EditorReady, 800*time.Millisecond)
	setDefault(&d.SchedulerOpen, 600*time.Millisecond)
	setDefault(&d.FieldSettle, 500*time.Millisecond)
	setDefault(&d.ModalStep, time.Second)
	setDefault(&d.ConfirmSettle, time.Second)
	setDefault(&d.ConfirmRetry, 800*time.Millisecond)
	setDefault(&d.TriggerSettle, time.Second)
}

func setDefault(d *time.Duration, v time.Duration) {
	if *d == 0 {
		*d = v
	}
}
