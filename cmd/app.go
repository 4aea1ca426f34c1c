package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-desk/internal/backend"
	"github.com/spigell/resume-desk/internal/logger"
	"github.com/spigell/resume-desk/internal/pdf"
	"github.com/spigell/resume-desk/internal/secrets"
)

// env is everything a command needs once startup succeeded.
type env struct {
	logger  *zap.Logger
	config  *Config
	client  *backend.Client
	objects *pdf.ObjectStore
}

// setup builds the logger, config and api client. Startup problems are fatal.
func setup() *env {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err), zap.String("hint", "set api-url in "+app+".yaml, "+envPrefix+"_API_URL or --api-url"))
	}

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	token, err := resolveToken(config)
	if err != nil {
		if config.TokenFile != "" {
			logger.Fatal("loading api token", zap.Error(err))
		}
		logger.Warn("continuing without api token", zap.String("hint", "set "+envPrefix+"_TOKEN_FILE, "+envPrefix+"_TOKEN or the 'token-file' key in the configuration file"))
	}

	client := backend.New(logger, config.APIURL, token)
	if config.UserAgent != "" {
		client.UserAgent = config.UserAgent
	}
	client.RequestTimeout = config.RequestTimeout

	// validated together with the rest of the config
	maxSize, _ := config.PDF.MaxBytes()
	client.MaxDownloadSize = maxSize

	objects, err := pdf.NewObjectStore(afero.NewOsFs(), config.PDF.ObjectsDir, logger)
	if err != nil {
		logger.Fatal("preparing pdf object store", zap.Error(err))
	}

	logger.Debug("starting the "+app, zap.String("version", version), zap.String("api_url", config.APIURL))

	return &env{
		logger:  logger,
		config:  config,
		client:  client,
		objects: objects,
	}
}

func resolveToken(config *Config) (string, error) {
	tokenFile := strings.TrimSpace(config.TokenFile)
	if tokenFile == "" {
		tokenFile = strings.TrimSpace(viper.GetString("token-file"))
	}

	return secrets.Load(secrets.Source{
		Name: "api token",
		File: tokenFile,
		Env:  envPrefix + "_TOKEN",
	})
}

func (e *env) newSession(downloadDir string) *pdf.Session {
	if downloadDir == "" {
		downloadDir = e.config.PDF.DownloadDir
	}

	return pdf.NewSession(e.client, e.objects, pdf.NewDiskSaver(afero.NewOsFs(), downloadDir), e.logger)
}
