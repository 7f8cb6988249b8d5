package main

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"document-qa/internal/cache"
	"document-qa/internal/config"
	"document-qa/internal/db"
	"document-qa/internal/embedding"
	"document-qa/internal/helper"
	"document-qa/internal/llmservice"
	"document-qa/internal/models"
	"document-qa/internal/parser"
	"document-qa/internal/rag"
	"document-qa/internal/session"
	"document-qa/internal/tui"
	"document-qa/internal/watcher"
)

// pipeline wires the providers, the cache and a session from the configuration
type pipeline struct {
	cfg            *config.Config
	session        *session.Session
	embedProvision llmservice.Provisioner
	llmProvision   llmservice.Provisioner
	db             *bun.DB
}

func newPipeline(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return nil, fmt.Errorf("error initializing embedder: %w", err)
	}
	generator, err := llmservice.NewGeneratorFromConfig(&cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("error initializing llm: %w", err)
	}

	p := &pipeline{
		cfg:            cfg,
		embedProvision: llmservice.NewProvisioner(&cfg.EmbedLLM),
		llmProvision:   llmservice.NewProvisioner(&cfg.LLM),
	}

	indexer := rag.NewIndexer(parser.New(), embedder, p.embedProvision, cfg)
	pipelineCache := cache.New(indexer, cfg.Fingerprint())
	querier := rag.NewRAG(generator, embedder, cfg)

	sessionID, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}

	var history session.HistoryStore
	if cfg.Database.Enabled {
		sqldb, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("error connecting to database: %w", err)
		}
		p.db = db.NewDB(sqldb, cfg.Database.Debug)
		if err := db.InitDB(ctx, p.db); err != nil {
			p.db.Close()
			return nil, fmt.Errorf("error initializing database: %w", err)
		}
		history = db.NewHistoryStore(p.db, sessionID, func() string {
			doc, _ := p.session.Document()
			return doc.ID
		})
		log.Info().Str("session", sessionID).Msg("Storing history in database")
	}

	p.session, err = session.New(pipelineCache, querier, history, session.WithID(sessionID))
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ensureModels provisions the embedding and the generation model concurrently
func (p *pipeline) ensureModels(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.embedProvision.EnsureModel(gctx, p.cfg.EmbedLLM.Model)
	})
	g.Go(func() error {
		return p.llmProvision.EnsureModel(gctx, p.cfg.LLM.Model)
	})
	return g.Wait()
}

func (p *pipeline) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

func loadPipeline(c *cli.Context) (*pipeline, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	log.Debug().Interface("config", cfg.Redacted()).Msg("Loaded config")
	return newPipeline(c.Context, cfg)
}

func askCommand(c *cli.Context) error {
	p, err := loadPipeline(c)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.ensureModels(c.Context); err != nil {
		return err
	}
	if _, err := p.session.Load(c.Context, c.String("file")); err != nil {
		return err
	}

	response, err := p.session.Ask(c.Context, c.String("query"))
	if err != nil {
		return err
	}
	if c.Bool("json") {
		helper.PrettyPrint(c.App.Writer, response)
		return nil
	}
	printResponse(c.App.Writer, response)
	return nil
}

func printResponse(w io.Writer, response *models.PromptResponse) {
	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Fprintf(w, "%s\n\n", response.Query)

	log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Fprintf(w, "%s\n\n", response.Source)

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Fprintf(w, "%s\n\n", response.Content)
}

func chatCommand(c *cli.Context) error {
	closeLog, err := redirectLogs(c.String("log-file"))
	if err != nil {
		return err
	}
	defer closeLog()

	p, err := loadPipeline(c)
	if err != nil {
		return err
	}
	defer p.Close()

	fmt.Fprintln(c.App.Writer, "Ensuring models are available...")
	if err := p.ensureModels(c.Context); err != nil {
		return err
	}

	file := c.String("file")
	var changes <-chan string
	if c.Bool("watch") {
		if file == "" {
			return fmt.Errorf("--watch needs --file")
		}
		w, err := watcher.New(watcher.DefaultDebounce)
		if err != nil {
			return fmt.Errorf("error creating file watcher: %w", err)
		}
		defer w.Close()
		if changes, err = w.Watch(c.Context, file); err != nil {
			return fmt.Errorf("error watching %s: %w", file, err)
		}
	}

	model := tui.New(c.Context, p.session, file, changes)
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(c.Context)).Run()
	return err
}

func pullCommand(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	embedProvision := llmservice.NewProvisioner(&cfg.EmbedLLM)
	llmProvision := llmservice.NewProvisioner(&cfg.LLM)

	for _, m := range []struct {
		provisioner llmservice.Provisioner
		name        string
	}{
		{embedProvision, cfg.EmbedLLM.Model},
		{llmProvision, cfg.LLM.Model},
	} {
		if err := m.provisioner.EnsureModel(c.Context, m.name); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s ready\n", m.name)
	}
	return nil
}

func dropHistoryCommand(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if !cfg.Database.Enabled {
		return fmt.Errorf("database is not enabled in %s", c.String("config"))
	}

	sqldb, err := db.ConnectDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("error connecting to database: %w", err)
	}
	bundb := db.NewDB(sqldb, cfg.Database.Debug)
	defer bundb.Close()

	if err := db.DropExchanges(c.Context, bundb); err != nil {
		return fmt.Errorf("error dropping history: %w", err)
	}
	log.Info().Msg("History table dropped")
	return nil
}
