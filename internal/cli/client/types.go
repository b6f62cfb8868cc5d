package client

// Finding mirrors one entry of individual_findings.
type Finding struct {
	DocumentID  string `json:"document_id"`
	Title       string `json:"title"`
	Page        string `json:"page"`
	PageContent string `json:"page_content"`
	Content     string `json:"content"`
}

type Request struct {
	ID              string   `json:"id"`
	TeamID          string   `json:"team_id"`
	DocumentIDs     []string `json:"document_ids"`
	UserSearchQuery string   `json:"user_search_query"`
	Status          string   `json:"status"`
	CreatedAt       string   `json:"created_at"`
}

type SubmitResponse struct {
	RedirectTo string   `json:"redirect_to,omitempty"`
	RecordID   string   `json:"record_id,omitempty"`
	Request    *Request `json:"request,omitempty"`
}

type StatusResponse struct {
	RequestID             string    `json:"request_id"`
	Status                string    `json:"status"`
	IndividualFindings    []Finding `json:"individual_findings"`
	UnanalyzedDocumentIDs []string  `json:"unanalyzed_document_ids"`
	OverallSummary        string    `json:"overall_summary"`
	Archived              bool      `json:"archived"`
}

type Record struct {
	ID                    string    `json:"id"`
	DocumentIDs           []string  `json:"document_ids"`
	UserSearchQuery       string    `json:"user_search_query"`
	OverallQuery          string    `json:"overall_query"`
	Status                string    `json:"status"`
	IndividualFindings    []Finding `json:"individual_findings"`
	UnanalyzedDocumentIDs []string  `json:"unanalyzed_document_ids"`
	Partial               bool      `json:"partial"`
	OverallSummary        string    `json:"overall_summary"`
	CreatedAt             string    `json:"created_at"`
	ArchivedAt            string    `json:"archived_at"`
}

type HistoryResponse struct {
	Items   []Record `json:"items"`
	Cursor  string   `json:"cursor,omitempty"`
	HasMore bool     `json:"has_more"`
}
