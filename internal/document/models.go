package document

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/evault/evault/internal/integrity"
)

// Status is the integrity classification of a document's current bytes.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// ParseStatus accepts only the closed set of statuses.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, nil
	case StatusVerified:
		return StatusVerified, nil
	case StatusRejected:
		return StatusRejected, nil
	}
	return "", fmt.Errorf("unknown document status %q", s)
}

// Category is the closed classification chosen at upload.
type Category string

const (
	CategoryLegal     Category = "Legal"
	CategoryFinancial Category = "Financial"
	CategoryPersonal  Category = "Personal"
	CategoryBusiness  Category = "Business"
	CategoryOther     Category = "Other"
)

var categories = []Category{CategoryLegal, CategoryFinancial, CategoryPersonal, CategoryBusiness, CategoryOther}

// ParseCategory matches case-insensitively; empty input means Other.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CategoryOther, nil
	}
	for _, c := range categories {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown document category %q", s)
}

// AuditAction names an entry in the audit trail.
type AuditAction string

const (
	ActionCreated  AuditAction = "created"
	ActionModified AuditAction = "modified"
	ActionShared   AuditAction = "shared"
	ActionVerified AuditAction = "verified"
)

// VersionSnapshot is a superseded content state.
type VersionSnapshot struct {
	Version     int                   `json:"version" bson:"version"`
	Fingerprint integrity.Digest      `json:"fileHash" bson:"fileHash"`
	Anchor      integrity.AnchorToken `json:"anchor" bson:"anchor"`
	StorageKey  string                `json:"-" bson:"storageKey"`
	FileSize    int64                 `json:"fileSize" bson:"fileSize"`
	FileType    string                `json:"fileType" bson:"fileType"`
	UploadDate  time.Time             `json:"uploadDate" bson:"uploadDate"`
}

type Comment struct {
	ID         string    `json:"id" bson:"id"`
	Author     string    `json:"author" bson:"author"`
	AuthorName string    `json:"authorName" bson:"authorName"`
	Content    string    `json:"content" bson:"content"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
}

type AuditEntry struct {
	Action      AuditAction `json:"action" bson:"action"`
	PerformedBy string      `json:"performedBy" bson:"performedBy"`
	Timestamp   time.Time   `json:"timestamp" bson:"timestamp"`
	Details     string      `json:"details,omitempty" bson:"details,omitempty"`
}

// Document is the persistent record of an uploaded file and its history.
// StorageKey is internal and never serialized to clients.
type Document struct {
	ID               string                `json:"id" bson:"_id"`
	Title            string                `json:"title" bson:"title"`
	Description      string                `json:"description,omitempty" bson:"description,omitempty"`
	Owner            string                `json:"owner" bson:"owner"`
	SharedWith       []string              `json:"sharedWith" bson:"sharedWith"`
	Fingerprint      integrity.Digest      `json:"fileHash" bson:"fileHash"`
	Anchor           integrity.AnchorToken `json:"anchor" bson:"anchor"`
	Status           Status                `json:"status" bson:"status"`
	Category         Category              `json:"category" bson:"category"`
	Tags             []string              `json:"tags" bson:"tags"`
	FileName         string                `json:"fileName" bson:"fileName"`
	FileType         string                `json:"fileType" bson:"fileType"`
	FileSize         int64                 `json:"fileSize" bson:"fileSize"`
	StorageKey       string                `json:"-" bson:"storageKey"`
	UploadDate       time.Time             `json:"uploadDate" bson:"uploadDate"`
	VersionDate      time.Time             `json:"versionDate" bson:"versionDate"`
	UpdatedAt        time.Time             `json:"updatedAt" bson:"updatedAt"`
	ExpiryDate       *time.Time            `json:"expiryDate,omitempty" bson:"expiryDate,omitempty"`
	Version          int                   `json:"version" bson:"version"`
	PreviousVersions []VersionSnapshot     `json:"previousVersions" bson:"previousVersions"`
	Comments         []Comment             `json:"comments" bson:"comments"`
	AuditTrail       []AuditEntry          `json:"auditTrail" bson:"auditTrail"`
	Revision         int64                 `json:"-" bson:"revision"`
}

// Validate checks a record decoded from storage. Status and category must
// belong to their closed sets.
func (d *Document) Validate() error {
	st, err := ParseStatus(string(d.Status))
	if err != nil {
		return fmt.Errorf("document %s: %w", d.ID, err)
	}
	d.Status = st
	cat, err := ParseCategory(string(d.Category))
	if err != nil {
		return fmt.Errorf("document %s: %w", d.ID, err)
	}
	d.Category = cat
	d.ensureSlices()
	return nil
}

// ensureSlices replaces nil collections so they serialize as empty arrays.
func (d *Document) ensureSlices() {
	if d.SharedWith == nil {
		d.SharedWith = []string{}
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}
	if d.PreviousVersions == nil {
		d.PreviousVersions = []VersionSnapshot{}
	}
	if d.Comments == nil {
		d.Comments = []Comment{}
	}
	if d.AuditTrail == nil {
		d.AuditTrail = []AuditEntry{}
	}
}

// Audit appends an entry to the trail.
func (d *Document) Audit(action AuditAction, actor, details string, at time.Time) {
	d.AuditTrail = append(d.AuditTrail, AuditEntry{Action: action, PerformedBy: actor, Timestamp: at, Details: details})
}

// ApplyVerification moves the status according to a fresh integrity check.
// Neither verified nor rejected is terminal.
func (d *Document) ApplyVerification(valid bool) {
	if valid {
		d.Status = StatusVerified
		return
	}
	d.Status = StatusRejected
}

// StorageKeys returns the keys of the current and all prior versions.
func (d *Document) StorageKeys() []string {
	keys := make([]string, 0, len(d.PreviousVersions)+1)
	if d.StorageKey != "" {
		keys = append(keys, d.StorageKey)
	}
	for _, v := range d.PreviousVersions {
		if v.StorageKey != "" {
			keys = append(keys, v.StorageKey)
		}
	}
	return keys
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	c := *d
	c.SharedWith = slices.Clone(d.SharedWith)
	c.Tags = slices.Clone(d.Tags)
	c.PreviousVersions = slices.Clone(d.PreviousVersions)
	c.Comments = slices.Clone(d.Comments)
	c.AuditTrail = slices.Clone(d.AuditTrail)
	if d.ExpiryDate != nil {
		t := *d.ExpiryDate
		c.ExpiryDate = &t
	}
	return &c
}

// NormalizeTags trims, drops empties and removes duplicates, keeping order.
func NormalizeTags(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// New builds a pending version-1 document owned by owner.
func New(id, owner string, content ContentState, at time.Time) *Document {
	d := &Document{
		ID:          id,
		Owner:       owner,
		Fingerprint: content.Fingerprint,
		Anchor:      content.Anchor,
		StorageKey:  content.StorageKey,
		FileName:    content.FileName,
		FileType:    content.FileType,
		FileSize:    content.FileSize,
		Status:      StatusPending,
		Category:    CategoryOther,
		UploadDate:  at,
		VersionDate: at,
		UpdatedAt:   at,
		Version:     1,
	}
	d.ensureSlices()
	return d
}
