package cmd

import (
	"fmt"
	"time"

	"github.com/docker/go-units"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/spigell/resume-desk/internal/backend"
	"github.com/spigell/resume-desk/internal/listing"
	"github.com/spigell/resume-desk/internal/pdf"
)

type Config struct {
	APIURL         string        `mapstructure:"api-url" validate:"required,url"`
	TokenFile      string        `mapstructure:"token-file"`
	UserAgent      string        `mapstructure:"user-agent"`
	RequestTimeout time.Duration `mapstructure:"request-timeout" validate:"gt=0"`
	List           *ListConfig   `mapstructure:"list" validate:"required"`
	PDF            *PDFConfig    `mapstructure:"pdf" validate:"required"`
}

type ListConfig struct {
	PageSize int           `mapstructure:"page-size" validate:"oneof=10 25 50"`
	Sort     string        `mapstructure:"sort" validate:"required,sortkey"`
	Debounce time.Duration `mapstructure:"debounce" validate:"gte=0"`
}

type PDFConfig struct {
	// Timeout is in seconds and is handed to the backend as is.
	Timeout     int    `mapstructure:"timeout" validate:"gt=0"`
	DownloadDir string `mapstructure:"download-dir"`
	ObjectsDir  string `mapstructure:"objects-dir"`
	MaxSize     string `mapstructure:"max-size" validate:"required"`
}

func setDefaults() {
	viper.SetDefault("api-url", "")
	viper.SetDefault("token-file", "")
	viper.SetDefault("user-agent", app)
	viper.SetDefault("request-timeout", "30s")

	viper.SetDefault("list.page-size", listing.DefaultPageSize)
	viper.SetDefault("list.sort", string(backend.SortUpdatedDesc))
	viper.SetDefault("list.debounce", listing.DefaultDebounce.String())

	viper.SetDefault("pdf.timeout", int(pdf.DefaultTimeout.Seconds()))
	viper.SetDefault("pdf.download-dir", ".")
	viper.SetDefault("pdf.objects-dir", "")
	viper.SetDefault("pdf.max-size", "25MB")
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

func validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is required")
	}

	validate := validator.New()
	if err := validate.RegisterValidation("sortkey", func(fl validator.FieldLevel) bool {
		return backend.SortKey(fl.Field().String()).Valid()
	}); err != nil {
		return err
	}

	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if _, err := config.PDF.MaxBytes(); err != nil {
		return fmt.Errorf("invalid config: pdf.max-size: %w", err)
	}

	return nil
}

// MaxBytes parses MaxSize, accepting human sizes such as "25MB".
func (c *PDFConfig) MaxBytes() (int64, error) {
	size, err := units.FromHumanSize(c.MaxSize)
	if err != nil {
		return 0, err
	}
	if size <= 0 {
		return 0, fmt.Errorf("size must be positive, got %q", c.MaxSize)
	}
	return size, nil
}

func (c *PDFConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}
