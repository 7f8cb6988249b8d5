package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"document-qa/internal/helper"
	"document-qa/internal/parser"
)

const (
	configFilePath = "./configs/config.yaml"
	logFilePath    = "./document-qa.log"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("Exiting")
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "document-qa",
		Usage: "Ask questions about a document with a local RAG pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the yaml configuration file",
				Value:   configFilePath,
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "ask",
				Usage:  "Answer a single question about a document",
				Action: askCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to the document file (" + strings.Join(parser.SupportedExtensions(), ", ") + ")",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Question to be answered",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the full response as JSON",
					},
				},
			},
			{
				Name:   "chat",
				Usage:  "Interactive chat about a document",
				Action: chatCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Document to load on start",
					},
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Reload the document when it changes on disk",
					},
					&cli.StringFlag{
						Name:  "log-file",
						Usage: "File receiving logs while the chat is open",
						Value: logFilePath,
					},
				},
			},
			{
				Name:   "pull",
				Usage:  "Make sure the embedding and generation models are available",
				Action: pullCommand,
			},
			{
				Name:   "drop-history",
				Usage:  "Drop the question history table from the database",
				Action: dropHistoryCommand,
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	level, err := zerolog.ParseLevel(strings.ToLower(c.String("log-level")))
	if err != nil || level == zerolog.NoLevel {
		return fmt.Errorf("invalid log level %q", c.String("log-level"))
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
	return nil
}

// redirectLogs sends logs to path so they do not draw over the chat screen
func redirectLogs(path string) (func() error, error) {
	if path == "" {
		return nil, errors.New("log file is required")
	}
	if err := helper.CreateFolder(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("failed to create log folder: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: f, NoColor: true, TimeFormat: time.RFC3339}).With().Caller().Logger()
	return f.Close, nil
}
