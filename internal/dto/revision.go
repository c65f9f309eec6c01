package dto

// CreateSourceRequest carries the multipart metadata of a first upload. The
// referenced work is created on first sight of the catalogue id.
type CreateSourceRequest struct {
	CatalogueID     string `form:"catalogueId" binding:"required"`
	Title           string `form:"title"`
	Composer        string `form:"composer"`
	CatalogueNumber string `form:"catalogueNumber"`
	Label           string `form:"label" binding:"required"`
	SourceType      string `form:"sourceType"`
	IsPrimary       bool   `form:"isPrimary"`
	Branch          string `form:"branch" binding:"omitempty,branchname"`
	CorrelationID   string `form:"correlationId"`
}

// CreateRevisionRequest uploads a new revision onto an existing source.
type CreateRevisionRequest struct {
	Branch        string `form:"branch" binding:"omitempty,branchname"`
	CorrelationID string `form:"correlationId"`
}

// RevisionAcceptedResponse acknowledges an upload. The pipeline keeps
// running after this response; progress is observable on the correlation
// channel.
type RevisionAcceptedResponse struct {
	WorkID         string `json:"workId"`
	SourceID       string `json:"sourceId"`
	RevisionID     string `json:"revisionId"`
	SequenceNumber int    `json:"sequenceNumber"`
	Branch         string `json:"branch"`
	Status         string `json:"status"`
	CorrelationID  string `json:"correlationId"`
}

// RevisionView is a revision with its presented validation status applied.
type RevisionView struct {
	Revision         interface{} `json:"revision"`
	ValidationStatus string      `json:"validationStatus"`
}
