package domain

// Finding is the model output for one excerpt of one document.
type Finding struct {
	DocumentID      string `json:"documentId"`
	DocumentVersion string `json:"documentVersion,omitempty"`
	Title           string `json:"title"`
	Page            string `json:"page"`
	PageContent     string `json:"pageContent"`
	Content         string `json:"content"`
}

// FindingIdentity is the key under which two findings are the same fact.
type FindingIdentity struct {
	DocumentID  string
	PageContent string
}

// Identity returns the (document, excerpt) identity of f.
func (f Finding) Identity() FindingIdentity {
	return FindingIdentity{DocumentID: f.DocumentID, PageContent: f.PageContent}
}

// DedupeFindings collapses findings sharing an identity. The first occurrence wins
// and relative order is preserved.
func DedupeFindings(findings []Finding) []Finding {
	seen := make(map[FindingIdentity]struct{}, len(findings))
	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		id := f.Identity()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, f)
	}
	return out
}

// MergeFindings concatenates the lists in order and dedupes the result.
func MergeFindings(lists ...[]Finding) []Finding {
	total := 0
	for _, l := range lists {
		total += len(l)
	}
	all := make([]Finding, 0, total)
	for _, l := range lists {
		all = append(all, l...)
	}
	return DedupeFindings(all)
}

// FilterFindingsByDocuments keeps findings whose document is in docs.
func FilterFindingsByDocuments(findings []Finding, docs []string) []Finding {
	allowed := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		allowed[d] = struct{}{}
	}
	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if _, ok := allowed[f.DocumentID]; ok {
			out = append(out, f)
		}
	}
	return out
}

// UncoveredDocuments returns the ids in requested, in order, that no finding covers.
func UncoveredDocuments(requested []string, findings []Finding) []string {
	covered := make(map[string]struct{}, len(findings))
	for _, f := range findings {
		covered[f.DocumentID] = struct{}{}
	}
	var out []string
	for _, id := range requested {
		if _, ok := covered[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
