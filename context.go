package main

import (
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/nijaru/yt-transcript/captions"
	"github.com/nijaru/yt-transcript/config"
	"github.com/nijaru/yt-transcript/logger"
	"github.com/nijaru/yt-transcript/youtube"
)

// commandContext lazily loads state shared by the subcommands.
type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *logger.Logger
	loggerErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Log.Level = strings.TrimSpace(*c.logLevelFlag)
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// ensureLogger builds the process logger once and installs it as the
// logrus standard logger.
func (c *commandContext) ensureLogger() (*logger.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		l, err := logger.New(cfg.Log)
		if err != nil {
			c.loggerErr = err
			return
		}
		l.Install()
		c.logger = l
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) close() {
	if c.logger != nil {
		_ = c.logger.Close()
	}
}

// newRetriever assembles the YouTube client, metadata sources and retriever
// from configuration.
func (c *commandContext) newRetriever() (*captions.Retriever, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	log, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}

	yt := cfg.YouTube
	client, err := youtube.New(youtube.Config{
		BaseURL:           yt.BaseURL,
		UserAgent:         yt.UserAgent,
		AcceptLanguage:    yt.AcceptLanguage,
		Timeout:           yt.FetchTimeout.Std(),
		MaxBodyBytes:      yt.MaxBodyBytes,
		RequestsPerSecond: yt.RequestsPerSecond,
		Burst:             yt.Burst,
		Logger:            log.Logger,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create youtube client")
	}

	sources, err := youtube.Sources(client, yt.Strategy, youtube.PlayerOptions{
		Key:           yt.InnertubeKey,
		ClientName:    yt.ClientName,
		ClientVersion: yt.ClientVersion,
		Language:      cfg.Transcript.DefaultLanguage,
	})
	if err != nil {
		return nil, err
	}

	fallback := captions.FallbackStrict
	if cfg.Transcript.AnyTrackFallback {
		fallback = captions.FallbackAnyTrack
	}

	return captions.NewRetriever(youtube.NewTimedTextFetcher(client), captions.Config{
		DefaultLanguage: cfg.Transcript.DefaultLanguage,
		Fallback:        fallback,
		StripMarkup:     cfg.Transcript.StripMarkup,
		Logger:          log.Logger,
	}, sources...), nil
}
