package document

import "slices"

// CanRead is true for the owner and for principals the document is shared with.
func CanRead(principal string, d *Document) bool {
	if principal == "" || d == nil {
		return false
	}
	return d.Owner == principal || slices.Contains(d.SharedWith, principal)
}

// CanMutate covers content replacement, metadata edits, delete and status changes.
func CanMutate(principal string, d *Document) bool {
	return principal != "" && d != nil && d.Owner == principal
}

func CanComment(principal string, d *Document) bool { return CanRead(principal, d) }

func CanShare(principal string, d *Document) bool { return CanMutate(principal, d) }

// AddSharedPrincipal adds target to SharedWith. It reports false when the
// set is unchanged; the owner is never added.
func (d *Document) AddSharedPrincipal(target string) bool {
	if target == "" || target == d.Owner || slices.Contains(d.SharedWith, target) {
		return false
	}
	d.SharedWith = append(d.SharedWith, target)
	return true
}
