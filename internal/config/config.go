package config

import (
	"fmt"
	"runtime"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Vault
		Import
		Audit
		Inbox
		Tasks
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path string
	}
	Vault struct {
		Dir        string // Obsidian vault root; empty disables exporting
		ExportPath string // Folder inside the vault receiving flashcards
	}
	Import struct {
		Workers              int
		MaxPackageSizeMB     int
		HistoryRetentionDays int // 0 keeps history forever
	}
	Audit struct {
		Dir string // Uploaded packages and JSON reports
	}
	Inbox struct {
		Enabled  bool
		Dir      string
		Schedule string // Cron format: "*/5 * * * *" = every 5 minutes
	}
	Tasks struct {
		Enabled           bool
		Workers           int
		MaxRetries        int
		RetryDelay        time.Duration
		TaskTimeout       time.Duration
		ReleaseAfter      time.Duration
		CleanupInterval   time.Duration
		RetentionDuration time.Duration
	}
)

// MaxPackageSize returns the upload limit in bytes.
func (c Import) MaxPackageSize() int64 {
	return int64(c.MaxPackageSizeMB) << 20
}

// Address returns the HTTP listen address.
func (c HTTP) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate validates the whole configuration.
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Vault.Validate(); err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	if err := c.Import.Validate(); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	if err := c.Audit.Validate(); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if err := c.Inbox.Validate(); err != nil {
		return fmt.Errorf("inbox: %w", err)
	}
	if err := c.Tasks.Validate(); err != nil {
		return fmt.Errorf("tasks: %w", err)
	}
	return nil
}

func (c HTTP) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Required, validation.Min(int32(1)), validation.Max(int32(65535))),
	)
}

func (c Database) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Path, validation.Required),
	)
}

func (c Vault) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ExportPath, validation.When(c.Dir != "", validation.Required)),
	)
}

func (c Import) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Workers, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxPackageSizeMB, validation.Required, validation.Min(1)),
		validation.Field(&c.HistoryRetentionDays, validation.Min(0)),
	)
}

func (c Audit) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Dir, validation.Required),
	)
}

func (c Inbox) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Dir, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Schedule, validation.When(c.Enabled, validation.Required, validation.By(cronSchedule))),
	)
}

func (c Tasks) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Workers, validation.When(c.Enabled, validation.Required, validation.Min(1))),
		validation.Field(&c.MaxRetries, validation.Min(0)),
	)
}

// cronSchedule accepts standard five-field cron expressions and descriptors.
func cronSchedule(value interface{}) error {
	spec, _ := value.(string)
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	return nil
}

// getVaultDir returns the vault directory, checking both new and legacy env vars
func getVaultDir(v *viper.Viper) string {
	if dir := v.GetString("VAULT_DIR"); dir != "" {
		return dir
	}
	return v.GetString("OBSIDIAN_VAULT_DIR")
}

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8188)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("vault_dir", "")
	v.SetDefault("vault_export_path", DefaultExportPath)
	v.SetDefault("audit_dir", "./audit")

	// Import defaults
	v.SetDefault("import_workers", runtime.NumCPU())
	v.SetDefault("import_max_package_size_mb", 512)
	v.SetDefault("import_history_retention_days", 90)

	// Inbox defaults
	v.SetDefault("inbox_enabled", false)
	v.SetDefault("inbox_dir", DefaultInboxDir)
	v.SetDefault("inbox_schedule", "*/5 * * * *") // Every 5 minutes

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_max_retries", 3)
	v.SetDefault("task_retry_delay", "1m")
	v.SetDefault("task_timeout", "30m")
	v.SetDefault("task_release_after", "45m")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("task_retention_duration", "24h")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Vault: Vault{
			Dir:        getVaultDir(v),
			ExportPath: v.GetString("VAULT_EXPORT_PATH"),
		},
		Import: Import{
			Workers:              v.GetInt("IMPORT_WORKERS"),
			MaxPackageSizeMB:     v.GetInt("IMPORT_MAX_PACKAGE_SIZE_MB"),
			HistoryRetentionDays: v.GetInt("IMPORT_HISTORY_RETENTION_DAYS"),
		},
		Audit: Audit{
			Dir: v.GetString("AUDIT_DIR"),
		},
		Inbox: Inbox{
			Enabled:  v.GetBool("INBOX_ENABLED"),
			Dir:      v.GetString("INBOX_DIR"),
			Schedule: v.GetString("INBOX_SCHEDULE"),
		},
		Tasks: Tasks{
			Enabled:           v.GetBool("TASKS_ENABLED"),
			Workers:           v.GetInt("TASK_WORKERS"),
			MaxRetries:        v.GetInt("TASK_MAX_RETRIES"),
			RetryDelay:        v.GetDuration("TASK_RETRY_DELAY"),
			TaskTimeout:       v.GetDuration("TASK_TIMEOUT"),
			ReleaseAfter:      v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval:   v.GetDuration("TASK_CLEANUP_INTERVAL"),
			RetentionDuration: v.GetDuration("TASK_RETENTION_DURATION"),
		},
	}
}
