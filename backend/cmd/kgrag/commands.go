package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"reqgraph/backend/internal/adapter"
	"reqgraph/backend/internal/document"
	"reqgraph/backend/internal/engine"
	"reqgraph/backend/internal/extract"
	"reqgraph/backend/internal/model"
	"reqgraph/backend/internal/source"
	"reqgraph/backend/internal/triples"
	"reqgraph/backend/pkg/config"
)

var documentExts = []string{".txt", ".md", ".text", ".html", ".htm", ".xhtml"}

// openSystem connects to every configured backend. Tests replace it.
var openSystem = func(ctx context.Context) (*engine.System, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return engine.Open(ctx, cfg)
}

// newOpener reads the object storage settings from configuration, falling
// back to the AWS defaults.
func newOpener() *source.Opener {
	cfg, err := config.Load()
	if err != nil {
		return source.NewOpener("", "")
	}
	return source.NewOpener(cfg.S3Region, cfg.S3Endpoint)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(w io.Writer, flags *cliFlags, r *engine.IngestReport) error {
	if flags.JSON {
		return writeJSON(w, r)
	}
	fmt.Fprintf(w, "%s: %d nodes created, %d merged, %d relationships created, %d merged",
		r.Source, r.Counts.NodesCreated, r.Counts.NodesMerged, r.Counts.RelationshipsCreated, r.Counts.RelationshipsMerged)
	if r.Passages > 0 {
		fmt.Fprintf(w, ", %d passages", r.Passages)
	}
	if r.Skipped > 0 {
		fmt.Fprintf(w, ", %d skipped", r.Skipped)
	}
	fmt.Fprintln(w)
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
	return nil
}

func newParseModelCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "parse-model FILE",
		Short: "Parse a structured model and print its graph without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newOpener().ReadFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			res, err := model.Parse(data)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if flags.JSON {
				return writeJSON(out, map[string]any{
					"nodes":         res.Nodes,
					"relationships": res.Relationships,
					"warnings":      res.WarningMessages(),
				})
			}
			for _, n := range res.Nodes {
				fmt.Fprintf(out, "(%s:%s) %s\n", n.ID, n.Label, n.Name())
			}
			for _, r := range res.Relationships {
				fmt.Fprintln(out, r.Key())
			}
			for _, w := range res.WarningMessages() {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			return nil
		},
	}
}

func newNormalizeCmd(flags *cliFlags) *cobra.Command {
	var aliases string
	cmd := &cobra.Command{
		Use:   "normalize FILE",
		Short: "Normalize a triple file into graph elements without storing them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			predicates, err := triples.LoadPredicateMap(aliases)
			if err != nil {
				return err
			}
			data, err := newOpener().ReadFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			ts, err := triples.DecodeBytes(data)
			if err != nil {
				return err
			}
			res := triples.NewNormalizer(predicates).Normalize(ts)
			out := cmd.OutOrStdout()
			if flags.JSON {
				return writeJSON(out, res)
			}
			for _, r := range res.Relationships {
				fmt.Fprintln(out, r.Key())
			}
			for _, s := range res.Skipped {
				fmt.Fprintf(out, "skipped: %s\n", s.Error())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&aliases, "aliases", "", "YAML file of predicate aliases")
	return cmd
}

func newExtractTriplesCmd(flags *cliFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "extract-triples DOCUMENT",
		Short: "Extract triples from a document with the LLM and write them as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opener := source.NewOpener(cfg.S3Region, cfg.S3Endpoint)
			data, err := opener.ReadFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			doc, err := document.Load(source.Name(args[0]), data)
			if err != nil {
				return err
			}
			llm := adapter.NewLLMAdapter(cfg.LiteLLMURL, cfg.LLMAPIKey, cfg.ModelID, cfg.EmbeddingModel)
			ex, err := extract.NewExtractor(llm,
				extract.WithWindow(cfg.ExtractWindow, cfg.ExtractStep),
				extract.WithConcurrency(cfg.ExtractConcurrency),
			).Extract(cmd.Context(), doc.Source, doc.Paragraphs)
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			if err := triples.Encode(&buf, ex.Triples); err != nil {
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
				return err
			}
			if !flags.JSON {
				fmt.Fprintf(cmd.OutOrStdout(), "%d triples from %d windows written to %s (%d windows unparsed)\n",
					len(ex.Triples), ex.Windows, output, ex.Unparsed)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "out", "O", "", "Write triples to this file instead of stdout")
	return cmd
}

func newImportTriplesCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import-triples FILE...",
		Short: "Normalize triple files and upsert them into the graph",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := openSystem(cmd.Context())
			if err != nil {
				return err
			}
			defer sys.Close(context.Background())

			for _, path := range args {
				data, err := sys.Opener.ReadFile(cmd.Context(), path)
				if err != nil {
					return err
				}
				ts, err := triples.DecodeBytes(data)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				report, err := sys.Ingestor.IngestTriples(cmd.Context(), ts)
				if err != nil {
					return err
				}
				report.Source = path
				if err := printReport(cmd.OutOrStdout(), flags, report); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newImportModelCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import-model FILE...",
		Short: "Parse structured models and upsert them into the graph",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := openSystem(cmd.Context())
			if err != nil {
				return err
			}
			defer sys.Close(context.Background())

			for _, path := range args {
				data, err := sys.Opener.ReadFile(cmd.Context(), path)
				if err != nil {
					return err
				}
				report, err := sys.Ingestor.IngestModel(cmd.Context(), path, data)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if err := printReport(cmd.OutOrStdout(), flags, report); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newIndexDocumentsCmd(flags *cliFlags) *cobra.Command {
	var extractTriples bool
	cmd := &cobra.Command{
		Use:   "index-documents PATH...",
		Short: "Index document passages and optionally extract triples from them",
		Long: `Index document passages for vector search. Directories are walked for
text, markdown and HTML files. With --extract the LLM also extracts triples
from every document and they are upserted into the graph.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := openSystem(cmd.Context())
			if err != nil {
				return err
			}
			defer sys.Close(context.Background())

			for _, arg := range args {
				paths, err := source.Expand(arg, documentExts...)
				if err != nil {
					return err
				}
				for _, path := range paths {
					data, err := sys.Opener.ReadFile(cmd.Context(), path)
					if err != nil {
						return err
					}
					doc, err := document.Load(path, data)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					report, err := sys.Ingestor.IngestDocument(cmd.Context(), doc, extractTriples)
					if err != nil {
						return err
					}
					if err := printReport(cmd.OutOrStdout(), flags, report); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&extractTriples, "extract", false, "Also extract triples into the graph")
	return cmd
}

func newQueryCmd(flags *cliFlags) *cobra.Command {
	var retrieveOnly bool
	cmd := &cobra.Command{
		Use:   "query QUESTION",
		Short: "Answer a question from the graph and the indexed passages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			sys, err := openSystem(cmd.Context())
			if err != nil {
				return err
			}
			defer sys.Close(context.Background())

			out := cmd.OutOrStdout()
			if retrieveOnly {
				r, err := sys.Engine.Retrieve(cmd.Context(), question)
				if err != nil {
					return err
				}
				if flags.JSON {
					return writeJSON(out, r)
				}
				fmt.Fprintln(out, r.Context)
				return nil
			}

			answer, err := sys.Engine.Answer(cmd.Context(), question)
			if err != nil {
				return err
			}
			if flags.JSON {
				return writeJSON(out, answer)
			}
			fmt.Fprintln(out, answer.Answer)
			fmt.Fprintf(out, "\nContext:\n%s\n", answer.Context)
			return nil
		},
	}
	cmd.Flags().BoolVar(&retrieveOnly, "retrieve-only", false, "Print the ranked evidence without generating an answer")
	return cmd
}
