package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/coderetrieve/internal/config"
	"github.com/dshills/coderetrieve/internal/mcp"
	"github.com/dshills/coderetrieve/internal/searcher"
	"github.com/dshills/coderetrieve/internal/storage"
)

// options holds the flags shared across subcommands
type options struct {
	configPath string
	topK       int
	repoID     string
	language   string
	minScore   float64
	jsonOutput bool
	exclude    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "coderetrieve",
		Short: "Hybrid semantic and lexical code search",
		Long: `coderetrieve ranks indexed code chunks for a natural-language or code query.

Queries are expanded with synonym variants, embedded in a text space and a
code space, fanned out to the vector store and re-scored with lexical, BM25
and signature signals.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (yaml, json or toml); default ./coderetrieve.yaml")

	root.AddCommand(
		newServeCmd(opts),
		newSearchCmd(opts),
		newSimilarCmd(opts),
		newIndexCmd(opts),
		newVersionCmd(),
	)
	return root
}

// errEphemeralStore rejects one-shot commands against a store that dies with the process
var errEphemeralStore = errors.New("the memory store does not outlive this command; set store.backend to sqlite or qdrant")

// openServer loads configuration and builds the engine. Logs go to stderr.
// Commands other than serve need a persistent store.
func openServer(cmd *cobra.Command, opts *options, persistent bool) (*mcp.Server, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if persistent && (cfg.Store.Backend == "" || strings.EqualFold(cfg.Store.Backend, storage.BackendMemory)) {
		return nil, fmt.Errorf("%s: %w", cmd.Name(), errEphemeralStore)
	}
	return mcp.NewServer(cfg, cfg.Logger(cmd.ErrOrStderr()))
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv, err := openServer(cmd, opts, false)
			if err != nil {
				return err
			}
			return srv.Serve(cmd.Context())
		},
	}
}

func addSearchFlags(cmd *cobra.Command, opts *options) {
	cmd.Flags().IntVarP(&opts.topK, "top-k", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVar(&opts.repoID, "repo", "", "Restrict results to one repository")
	cmd.Flags().StringVar(&opts.language, "language", "", "Restrict results to one language")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "Drop results scoring below this value (0-1)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
}

// minScoreFlag returns the floor only when --min-score was given
func minScoreFlag(cmd *cobra.Command, opts *options) (*float64, error) {
	if !cmd.Flags().Changed("min-score") {
		return nil, nil
	}
	if opts.minScore < 0 || opts.minScore > 1 {
		return nil, fmt.Errorf("--min-score must be between 0 and 1, got %v", opts.minScore)
	}
	v := opts.minScore
	return &v, nil
}

func newSearchCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed code",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			minScore, err := minScoreFlag(cmd, opts)
			if err != nil {
				return err
			}
			srv, err := openServer(cmd, opts, true)
			if err != nil {
				return err
			}
			defer func() { _ = srv.Close() }()

			resp, err := srv.Searcher().Search(cmd.Context(), searcher.SearchRequest{
				Query:    strings.Join(args, " "),
				TopK:     opts.topK,
				RepoID:   opts.repoID,
				Language: opts.language,
				MinScore: minScore,
			})
			if err != nil {
				return err
			}
			return printResults(cmd.OutOrStdout(), resp, opts.jsonOutput)
		},
	}
	addSearchFlags(cmd, opts)
	return cmd
}

func newSimilarCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "similar [file|-]",
		Short: "Find indexed code resembling a snippet read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			minScore, err := minScoreFlag(cmd, opts)
			if err != nil {
				return err
			}
			code, err := readSnippet(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			srv, err := openServer(cmd, opts, true)
			if err != nil {
				return err
			}
			defer func() { _ = srv.Close() }()

			resp, err := srv.Searcher().SearchSimilar(cmd.Context(), searcher.SimilarRequest{
				Code:        code,
				TopK:        opts.topK,
				RepoID:      opts.repoID,
				Language:    opts.language,
				ExcludeSelf: opts.exclude,
				MinScore:    minScore,
			})
			if err != nil {
				return err
			}
			return printResults(cmd.OutOrStdout(), resp, opts.jsonOutput)
		},
	}
	addSearchFlags(cmd, opts)
	cmd.Flags().BoolVar(&opts.exclude, "exclude-self", false, "Drop chunks whose code equals the snippet")
	return cmd
}

func readSnippet(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func newIndexCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <chunks.jsonl>",
		Short: "Embed and store chunk records from a JSONL file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			srv, err := openServer(cmd, opts, true)
			if err != nil {
				return err
			}
			defer func() { _ = srv.Close() }()

			stats, err := srv.Indexer().IndexReader(cmd.Context(), f, opts.repoID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return json.NewEncoder(out).Encode(stats)
			}
			fmt.Fprintf(out, "indexed %d of %d chunks (%d skipped, %d duplicate, %d failed) in %s\n",
				stats.ChunksIndexed, stats.ChunksRead, stats.ChunksSkipped, stats.ChunksDuplicate,
				stats.ChunksFailed, stats.Duration.Round(time.Millisecond))
			for _, msg := range stats.ErrorMessages {
				fmt.Fprintln(out, "  error:", msg)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.repoID, "repo", "", "Repository ID stamped onto every chunk")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output statistics as JSON")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "coderetrieve %s\n", version)
			fmt.Fprintf(out, "Build Time: %s\n", buildTime)
			fmt.Fprintf(out, "Build Mode: %s\n", storage.BuildMode)
			fmt.Fprintf(out, "SQLite Driver: %s\n", storage.DriverName)
		},
	}
}

func printResults(w io.Writer, resp *searcher.SearchResponse, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp.Results)
	}
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "no results")
		return nil
	}
	for _, r := range resp.Results {
		fmt.Fprintf(w, "%2d. %.3f  %s:%d-%d  %s %s\n", r.Rank, r.Score, r.FilePath, r.StartLine, r.EndLine, r.SymbolType, r.SymbolName)
	}
	if resp.Degraded {
		fmt.Fprintln(w, "(partial results: deadline reached)")
	}
	return nil
}
