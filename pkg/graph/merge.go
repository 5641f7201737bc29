package graph

import "time"

// MergeSurvivor orders a merge pair: the lexicographically smaller id
// survives and the other node is absorbed into it.
func MergeSurvivor(a, b *Node) (survivor, absorbed *Node) {
	if b.ID < a.ID {
		return b, a
	}
	return a, b
}

// AbsorbMetadata folds the absorbed node's attributes into the survivor:
// metadata union with survivor precedence, tag sets unioned, merged_from
// extended with the absorbed id, updated_at refreshed. The survivor's
// memory text is kept as is. Embeddings are never unioned; the survivor's
// embedding stands.
func AbsorbMetadata(survivor, absorbed *Node, now time.Time) {
	if survivor.Metadata == nil {
		survivor.Metadata = make(map[string]any)
	}
	for k, v := range absorbed.Metadata {
		if k == KeyEmbedding || k == KeyTags {
			continue
		}
		if _, exists := survivor.Metadata[k]; !exists {
			survivor.Metadata[k] = v
		}
	}
	survivor.Metadata[KeyTags] = unionStrings(survivor.Tags(), absorbed.Tags())

	merged := StringsValue(survivor.Metadata, KeyMergedFrom)
	survivor.Metadata[KeyMergedFrom] = append(merged, absorbed.ID)
	survivor.Metadata[KeyUpdatedAt] = now.UTC().Format(time.RFC3339)
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
