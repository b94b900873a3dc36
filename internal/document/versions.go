package document

import (
	"time"

	"github.com/evault/evault/internal/integrity"
)

// Snapshot appends the current content state to the version history. It must
// run before the current fields are overwritten.
func Snapshot(d *Document) {
	d.PreviousVersions = append(d.PreviousVersions, VersionSnapshot{
		Version:     d.Version,
		Fingerprint: d.Fingerprint,
		Anchor:      d.Anchor,
		StorageKey:  d.StorageKey,
		FileSize:    d.FileSize,
		FileType:    d.FileType,
		UploadDate:  d.VersionDate,
	})
}

// ListVersions returns the history oldest first.
func ListVersions(d *Document) []VersionSnapshot {
	return append([]VersionSnapshot{}, d.PreviousVersions...)
}

// ContentState describes freshly written bytes.
type ContentState struct {
	Fingerprint integrity.Digest
	Anchor      integrity.AnchorToken
	StorageKey  string
	FileName    string
	FileType    string
	FileSize    int64
}

// ReplaceContent snapshots the current state, installs next and bumps the
// version. The new bytes have not been verified yet, so status returns to
// pending.
func (d *Document) ReplaceContent(next ContentState, at time.Time) {
	Snapshot(d)
	d.Fingerprint = next.Fingerprint
	d.Anchor = next.Anchor
	d.StorageKey = next.StorageKey
	if next.FileName != "" {
		d.FileName = next.FileName
	}
	d.FileType = next.FileType
	d.FileSize = next.FileSize
	d.VersionDate = at
	d.UpdatedAt = at
	d.Version++
	d.Status = StatusPending
}
