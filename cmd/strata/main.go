// Copyright 2025 Strata Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/strata-db/strata"
	"github.com/strata-db/strata/ai"
	"github.com/strata-db/strata/ai/openai"
	"github.com/strata-db/strata/core"
	"github.com/strata-db/strata/reembed"
	"github.com/strata-db/strata/search"
)

func main() {
	app := &cli.App{
		Name:  "strata",
		Usage: "Embedded semantic search engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to the database directory",
				Value:   "./strata_db",
			},
			&cli.StringFlag{
				Name:  "embedding-host",
				Usage: "Embedding service host URL",
				Value: "http://localhost:11434/v1",
			},
			&cli.StringFlag{
				Name:  "embedding-model",
				Usage: "Embedding model name",
				Value: "embeddinggemma",
			},
			&cli.IntFlag{
				Name:  "dimension",
				Usage: "Vector dimension for newly created tables",
				Value: strata.DefaultDimension,
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Embed and store a document",
				ArgsUsage: "<content>",
				Action:    addCommand,
				Flags: []cli.Flag{
					tableFlag(),
					&cli.StringSliceFlag{
						Name:    "meta",
						Aliases: []string{"m"},
						Usage:   "Metadata entry as key=value (repeatable)",
					},
				},
			},
			{
				Name:      "seed",
				Usage:     "Bulk load documents, one per line, from a file or stdin",
				ArgsUsage: "[file]",
				Action:    seedCommand,
				Flags:     []cli.Flag{tableFlag()},
			},
			{
				Name:      "search",
				Usage:     "Search a table by query text",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					tableFlag(),
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results",
						Value:   strata.DefaultLimit,
					},
					&cli.StringSliceFlag{
						Name:    "keyword",
						Aliases: []string{"k"},
						Usage:   "Keyword for hybrid scoring (repeatable; enables hybrid search)",
					},
					&cli.StringSliceFlag{
						Name:    "filter",
						Aliases: []string{"f"},
						Usage:   "Metadata filter as column=value (repeatable)",
					},
				},
			},
			{
				Name:   "tables",
				Usage:  "List tables",
				Action: tablesCommand,
			},
			{
				Name:   "index",
				Usage:  "Build or refresh a table's vector index",
				Action: indexCommand,
				Flags:  []cli.Flag{tableFlag()},
			},
			{
				Name:   "scalar-index",
				Usage:  "Build a scalar index over a metadata column",
				Action: scalarIndexCommand,
				Flags: []cli.Flag{
					tableFlag(),
					&cli.StringFlag{
						Name:     "column",
						Aliases:  []string{"c"},
						Usage:    "Metadata column to index",
						Required: true,
					},
				},
			},
			{
				Name:   "compact",
				Usage:  "Merge storage fragments and prune stale versions",
				Action: compactCommand,
				Flags:  []cli.Flag{tableFlag()},
			},
			{
				Name:   "health",
				Usage:  "Report table health and maintenance recommendations",
				Action: healthCommand,
				Flags:  []cli.Flag{tableFlag()},
			},
			{
				Name:   "reembed",
				Usage:  "Re-embed every record in a table with the configured model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					tableFlag(),
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of records to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N records",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func tableFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "table",
		Aliases: []string{"t"},
		Usage:   "Table name",
		Value:   "documents",
	}
}

func openDatabase(c *cli.Context) (*strata.Database, error) {
	aiConfig := ai.NewConfig(
		ai.WithHost(c.String("embedding-host")),
		ai.WithModel(c.String("embedding-model")),
		ai.WithDimension(c.Int("dimension")),
	)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	db, err := strata.NewDatabase(c.String("db"),
		strata.WithAIConfig(aiConfig),
		strata.WithDimension(c.Int("dimension")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func addCommand(c *cli.Context) error {
	content := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if content == "" {
		return fmt.Errorf("content is required")
	}

	metadata, err := parsePairs(c.StringSlice("meta"), "meta")
	if err != nil {
		return err
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	id, err := db.Add(context.Background(), c.String("table"), content, metadata)
	if err != nil {
		return fmt.Errorf("failed to add document: %w", err)
	}

	fmt.Println(id)
	return nil
}

func seedCommand(c *cli.Context) error {
	var input io.Reader = os.Stdin
	if c.Args().Len() > 0 {
		file, err := os.Open(c.Args().First())
		if err != nil {
			return fmt.Errorf("failed to open input file: %w", err)
		}
		defer file.Close()
		input = file
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	table := c.String("table")
	added := 0

	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if _, err := db.Add(ctx, table, line, nil); err != nil {
			return fmt.Errorf("failed to add line %d: %w", added+1, err)
		}
		added++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Added %d documents to %q\n", added, table)
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("query is required")
	}

	opts, err := parseFilters(c.StringSlice("filter"))
	if err != nil {
		return err
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	table := c.String("table")
	limit := c.Int("limit")
	keywords := c.StringSlice("keyword")

	var results []*core.SearchResult
	if len(keywords) > 0 {
		results, err = db.HybridSearchText(ctx, table, query, keywords, limit, opts)
	} else {
		results, err = db.SearchText(ctx, table, query, limit, opts)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	fmt.Printf("Found %d hits\n", len(results))
	for i, hit := range results {
		fmt.Printf("%d: %q (%s)[%0.3f]\n", i, hit.Record.Content, hit.Record.ID, hit.Score)
	}
	return nil
}

func tablesCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	names, err := db.TableNames(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func indexCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.CreateIndex(context.Background(), c.String("table")); err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	return nil
}

func scalarIndexCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	kind, err := db.CreateScalarIndex(context.Background(), c.String("table"), c.String("column"))
	if err != nil {
		return fmt.Errorf("failed to build scalar index: %w", err)
	}
	fmt.Printf("Built %s index on %q\n", kind, c.String("column"))
	return nil
}

func compactCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Compact(context.Background(), c.String("table")); err != nil {
		return fmt.Errorf("compaction failed: %w", err)
	}
	return nil
}

func healthCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	table := c.String("table")

	report, err := db.AnalyzeTableHealth(ctx, table)
	if err != nil {
		return fmt.Errorf("health analysis failed: %w", err)
	}

	fmt.Printf("Table:               %s\n", table)
	fmt.Printf("Rows:                %d\n", report.RowCount)
	fmt.Printf("Fragments:           %d\n", report.FragmentCount)
	fmt.Printf("Fragmentation ratio: %.2f\n", report.FragmentationRatio)
	fmt.Printf("Vector index:        %s\n", report.VectorIndexStatus)
	fmt.Printf("Scalar indexes:      %s\n", report.ScalarIndexStatus)
	if len(report.Recommendations) == 0 {
		fmt.Println("Recommendations:     none")
	}
	for _, rec := range report.Recommendations {
		if rec.Column != "" {
			fmt.Printf("Recommendation:      %s (column %q)\n", rec.Kind, rec.Column)
		} else {
			fmt.Printf("Recommendation:      %s\n", rec.Kind)
		}
	}
	return nil
}

func reembedCommand(c *cli.Context) error {
	aiConfig := ai.NewConfig(
		ai.WithHost(c.String("embedding-host")),
		ai.WithModel(c.String("embedding-model")),
		ai.WithDimension(c.Int("dimension")),
	)
	if err := aiConfig.Validate(); err != nil {
		return fmt.Errorf("invalid AI configuration: %w", err)
	}

	embedder, err := openai.NewEmbedder(aiConfig)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	table, err := db.Table(ctx, c.String("table"))
	if err != nil {
		return fmt.Errorf("failed to open table: %w", err)
	}

	reembedder, err := reembed.NewReembedder(table, embedder, reembedConfig, os.Stderr)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Database: %s\n", c.String("db"))
	fmt.Fprintf(os.Stderr, "Embedding host: %s\n", c.String("embedding-host"))
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", c.String("embedding-model"))
	fmt.Fprintln(os.Stderr)

	if err := reembedder.Run(ctx); err != nil {
		return fmt.Errorf("re-embedding failed: %w", err)
	}

	// Rank against the new vectors.
	if err := db.CreateIndex(ctx, c.String("table")); err != nil {
		return fmt.Errorf("index rebuild failed: %w", err)
	}
	return nil
}

// parsePairs parses repeated key=value flags into a map.
func parsePairs(pairs []string, flagName string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --%s %q: expected key=value", flagName, pair)
		}
		out[key] = value
	}
	return out, nil
}

// parseFilters parses repeated column=value flags into equality filters.
func parseFilters(pairs []string) (*search.Options, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	opts := &search.Options{}
	for _, pair := range pairs {
		column, value, ok := strings.Cut(pair, "=")
		if !ok || column == "" {
			return nil, fmt.Errorf("invalid --filter %q: expected column=value", pair)
		}
		opts.Filters = append(opts.Filters, search.Filter{
			Column: column,
			Op:     search.OpEqual,
			Values: []string{value},
		})
	}
	return opts, nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
