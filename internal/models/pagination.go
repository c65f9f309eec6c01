package models

// Pagination carries list paging inputs and metadata.
type Pagination struct {
	Page       int `json:"page" form:"page"`
	Limit      int `json:"limit" form:"limit"`
	TotalCount int `json:"totalCount"`
}

// NewPagination normalises paging inputs.
func NewPagination(page, limit int) Pagination {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return Pagination{Page: page, Limit: limit}
}

// Offset is the SQL offset for the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}
