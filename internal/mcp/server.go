package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/coderetrieve/internal/config"
	"github.com/dshills/coderetrieve/internal/embedder"
	"github.com/dshills/coderetrieve/internal/indexer"
	"github.com/dshills/coderetrieve/internal/logging"
	"github.com/dshills/coderetrieve/internal/searcher"
	"github.com/dshills/coderetrieve/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "coderetrieve"
	// ServerVersion is the current server version
	ServerVersion = "0.1.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	cfg      *config.Config
	store    storage.VectorStore
	embedder *embedder.Dual
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	logger   *slog.Logger
}

// NewServer builds the store, embedders, indexer and searcher described by
// cfg and registers the tools. The indexer and searcher share one embedder
// so cached query vectors survive across tools.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logging.Discard()
	}

	store, err := storage.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.NewDual(cfg.Embedder)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	srch, err := searcher.NewSearcher(store, emb, cfg.Search, searcher.WithLogger(logger))
	if err != nil {
		_ = emb.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize searcher: %w", err)
	}

	idx := indexer.New(store, emb, cfg.IndexerConfig(), indexer.WithLogger(logger))

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		cfg:      cfg,
		store:    store,
		embedder: emb,
		indexer:  idx,
		searcher: srch,
		logger:   logger,
	}
	s.registerTools()

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.Close() }()

	s.logger.Info("mcp server started", "name", ServerName, "version", ServerVersion, "store", s.cfg.Store.Backend)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ServeStdio(s.mcp) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the store and the embedders
func (s *Server) Close() error {
	return errors.Join(s.embedder.Close(), s.store.Close())
}

// Searcher exposes the search engine for the CLI
func (s *Server) Searcher() *searcher.Searcher { return s.searcher }

// Indexer exposes the chunk indexer for the CLI
func (s *Server) Indexer() *indexer.Indexer { return s.indexer }

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(searchSimilarTool(), s.handleSearchSimilar)
	s.mcp.AddTool(indexChunksTool(), s.handleIndexChunks)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
