package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hanko-field/cms/internal/domain"
	"github.com/hanko-field/cms/internal/services"
)

// seedFile is the YAML layout shared by import and export.
type seedFile struct {
	Content []seedEntry `yaml:"content"`
}

type seedEntry struct {
	Key         string  `yaml:"key"`
	Language    string  `yaml:"language"`
	Region      *string `yaml:"region,omitempty"`
	ContentType string  `yaml:"contentType,omitempty"`
	Value       string  `yaml:"value"`
}

func newImportCommand(withRuntime runtimeRunner) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Upsert content rows from a YAML seed file",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *runtime) error {
			seed, err := readSeed(args[0])
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(out(cmd), "%d rows parsed, nothing written\n", len(seed.Content))
				return nil
			}
			created, updated, err := importSeed(cmd.Context(), rt.content, seed)
			fmt.Fprintf(out(cmd), "created %d, updated %d\n", created, updated)
			return err
		}),
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse the file without writing")
	return cmd
}

func readSeed(path string) (seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return seedFile{}, fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return seedFile{}, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return seed, nil
}

func importSeed(ctx context.Context, content services.ContentService, seed seedFile) (created, updated int, err error) {
	for i, row := range seed.Content {
		contentType := domain.ContentType(strings.ToLower(strings.TrimSpace(row.ContentType)))
		if contentType == "" {
			contentType = domain.ContentTypeText
		}
		result, err := content.Upsert(ctx, services.UpsertContentCommand{
			Key:         row.Key,
			Language:    row.Language,
			Region:      row.Region,
			Value:       row.Value,
			ContentType: contentType,
		})
		if err != nil {
			return created, updated, fmt.Errorf("row %d (%s/%s): %w", i+1, row.Key, row.Language, err)
		}
		if result.Action == domain.ContentCreated {
			created++
		} else {
			updated++
		}
	}
	return created, updated, nil
}

func newExportCommand(withRuntime runtimeRunner) *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every content row as YAML to stdout",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(cmd *cobra.Command, _ []string, rt *runtime) error {
			rows, err := rt.content.List(cmd.Context(), services.ContentListFilter{Language: language})
			if err != nil {
				return fmt.Errorf("list content: %w", err)
			}
			seed := seedFile{Content: make([]seedEntry, 0, len(rows))}
			for _, row := range rows {
				seed.Content = append(seed.Content, seedEntry{
					Key:         row.Key,
					Language:    row.Language,
					Region:      row.Region,
					ContentType: string(row.ContentType),
					Value:       row.Value,
				})
			}
			enc := yaml.NewEncoder(out(cmd))
			enc.SetIndent(2)
			if err := enc.Encode(seed); err != nil {
				return fmt.Errorf("encode yaml: %w", err)
			}
			return enc.Close()
		}),
	}
	cmd.Flags().StringVar(&language, "lang", "", "only export one language")
	return cmd
}

func newTreeCommand(withRuntime runtimeRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Print content keys grouped by page and section",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(cmd *cobra.Command, _ []string, rt *runtime) error {
			tree, err := rt.content.Tree(cmd.Context())
			if err != nil {
				return fmt.Errorf("build tree: %w", err)
			}
			w := out(cmd)
			for _, page := range sortedKeys(tree) {
				fmt.Fprintln(w, page)
				sections := tree[page]
				for _, section := range sortedKeys(sections) {
					fmt.Fprintf(w, "  %s\n", section)
					for _, leaf := range sections[section] {
						marker := ""
						if leaf.HasRegionalOverride {
							marker = " *"
						}
						fmt.Fprintf(w, "    %s [%s]%s\n", leaf.LeafKey, strings.Join(leaf.AvailableLanguages, ","), marker)
					}
				}
			}
			return nil
		}),
	}
}

func newResolveCommand(withRuntime runtimeRunner) *cobra.Command {
	var prefix, language, region string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the effective dictionary for a locale",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(cmd *cobra.Command, _ []string, rt *runtime) error {
			dict := rt.content.Resolve(cmd.Context(), services.ResolveContentQuery{
				Prefix:   prefix,
				Language: language,
				Region:   optional(region),
			})
			w := out(cmd)
			for _, key := range sortedKeys(dict) {
				fmt.Fprintf(w, "%s = %s\n", key, dict[key])
			}
			return nil
		}),
	}
	flags := cmd.Flags()
	flags.StringVar(&prefix, "prefix", "", "raw key prefix")
	flags.StringVar(&language, "lang", "", "visitor language (defaults to the fallback language)")
	flags.StringVar(&region, "region", "", "visitor region")
	return cmd
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
