package document

import (
	"slices"
	"strings"
	"time"
)

// Filter narrows a listing of documents the principal can already read.
// Zero-valued fields do not filter.
type Filter struct {
	// SearchTerm matches title or description, case-insensitive substring.
	SearchTerm string
	// Category must equal the document category.
	Category *Category
	// Status must equal the document status.
	Status *Status
	// Tags must all be present on the document.
	Tags []string
	// StartDate is the inclusive lower bound on UploadDate.
	StartDate *time.Time
	// EndDate is the inclusive upper bound on UploadDate.
	EndDate *time.Time
}

// Matches applies the filter to d. Access is checked separately.
func (f Filter) Matches(d *Document) bool {
	if term := strings.ToLower(strings.TrimSpace(f.SearchTerm)); term != "" {
		if !strings.Contains(strings.ToLower(d.Title), term) && !strings.Contains(strings.ToLower(d.Description), term) {
			return false
		}
	}
	if f.Category != nil && d.Category != *f.Category {
		return false
	}
	if f.Status != nil && d.Status != *f.Status {
		return false
	}
	for _, t := range f.Tags {
		if !slices.Contains(d.Tags, t) {
			return false
		}
	}
	if f.StartDate != nil && d.UploadDate.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && d.UploadDate.After(*f.EndDate) {
		return false
	}
	return true
}

// Visible applies both the access gate and the filter.
func (f Filter) Visible(principal string, d *Document) bool {
	return CanRead(principal, d) && f.Matches(d)
}
