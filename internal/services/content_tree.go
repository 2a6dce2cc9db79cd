package services

import (
	"sort"
	"strings"

	"github.com/hanko-field/cms/internal/domain"
)

// RootLeaf names the leaf of a key with exactly two segments.
const RootLeaf = "root"

type leafAccumulator struct {
	leaf      domain.ContentTreeLeaf
	languages map[string]struct{}
}

// BuildContentTree folds entries into page -> section -> leaves. Keys with fewer than two
// segments are skipped. Leaves are accumulated per full key so "home.hero" and "home.hero.root"
// stay separate, and are sorted by leaf key then full key with sorted language sets.
func BuildContentTree(entries []domain.ContentEntry) domain.ContentTree {
	acc := make(map[string]map[string]map[string]*leafAccumulator)
	for _, entry := range entries {
		segments := strings.Split(entry.Key, ".")
		if len(segments) < 2 {
			continue
		}
		page, section := segments[0], segments[1]
		leafKey := RootLeaf
		if len(segments) > 2 {
			leafKey = strings.Join(segments[2:], ".")
		}

		sections := acc[page]
		if sections == nil {
			sections = make(map[string]map[string]*leafAccumulator)
			acc[page] = sections
		}
		leaves := sections[section]
		if leaves == nil {
			leaves = make(map[string]*leafAccumulator)
			sections[section] = leaves
		}
		leaf := leaves[entry.Key]
		if leaf == nil {
			leaf = &leafAccumulator{
				leaf:      domain.ContentTreeLeaf{LeafKey: leafKey, FullKey: entry.Key},
				languages: make(map[string]struct{}),
			}
			leaves[entry.Key] = leaf
		}
		if entry.Language != "" {
			leaf.languages[entry.Language] = struct{}{}
		}
		if entry.Region != nil {
			leaf.leaf.HasRegionalOverride = true
		}
	}

	tree := make(domain.ContentTree, len(acc))
	for page, sections := range acc {
		tree[page] = make(map[string][]domain.ContentTreeLeaf, len(sections))
		for section, leaves := range sections {
			out := make([]domain.ContentTreeLeaf, 0, len(leaves))
			for _, leaf := range leaves {
				languages := make([]string, 0, len(leaf.languages))
				for lang := range leaf.languages {
					languages = append(languages, lang)
				}
				sort.Strings(languages)
				leaf.leaf.AvailableLanguages = languages
				out = append(out, leaf.leaf)
			}
			sort.Slice(out, func(i, j int) bool {
				if out[i].LeafKey != out[j].LeafKey {
					return out[i].LeafKey < out[j].LeafKey
				}
				return out[i].FullKey < out[j].FullKey
			})
			tree[page][section] = out
		}
	}
	return tree
}
