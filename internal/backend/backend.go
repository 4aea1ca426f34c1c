package backend

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	userAgent = "spigell/resume-desk"

	defaultRequestTimeout = 30 * time.Second
	// Generation may take as long as the backend timeout, plus transfer.
	pdfGrace = 15 * time.Second
	// Upper bound for remote PDF downloads when nothing is configured.
	defaultMaxDownloadSize = 50 << 20
)

type Client struct {
	token  string
	logger *zap.Logger

	HTTPClient      *http.Client
	UserAgent       string
	APIURL          string
	RequestTimeout  time.Duration
	MaxDownloadSize int64
}

func New(logger *zap.Logger, apiURL, token string) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		token:  token,
		logger: logger,
		// Deadlines are set per request, PDF generation may outlive any fixed client timeout.
		HTTPClient:      &http.Client{},
		UserAgent:       userAgent,
		APIURL:          strings.TrimRight(apiURL, "/"),
		RequestTimeout:  defaultRequestTimeout,
		MaxDownloadSize: defaultMaxDownloadSize,
	}
}

func (c *Client) url(path string) string {
	return c.APIURL + path
}
