package nmtflow

// DiffResult is the unit-level difference between two versions of a
// document. Units are compared by their normalized text, the same identity
// the cache uses, so Unchanged units are exactly the ones a warm cache
// serves without decoding.
type DiffResult struct {
	// Added contains units that are new in the new version.
	Added []Unit

	// Removed contains units that no longer appear in the new version.
	Removed []Unit

	// Unchanged contains units of the new version that also appear in the
	// old one.
	Unchanged []Unit

	// Modified pairs a removed and an added unit at the same position.
	Modified []ModifiedUnit
}

// ModifiedUnit is a unit whose text changed in place.
type ModifiedUnit struct {
	Old Unit
	New Unit
}

// DiffStats contains summary statistics for a diff.
type DiffStats struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`
	Modified  int `json:"modified"`
}

// Stats returns summary statistics for the diff.
func (d *DiffResult) Stats() DiffStats {
	return DiffStats{
		Added:     len(d.Added),
		Removed:   len(d.Removed),
		Unchanged: len(d.Unchanged),
		Modified:  len(d.Modified),
	}
}

// HasChanges returns true if there are any differences.
func (d *DiffResult) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Modified) > 0
}

// NeedsTranslation returns the new-version units that must be decoded:
// added units and the new side of modified ones, in document order.
func (d *DiffResult) NeedsTranslation() []Unit {
	result := make([]Unit, 0, len(d.Added)+len(d.Modified))
	result = append(result, d.Added...)
	for _, m := range d.Modified {
		result = append(result, m.New)
	}
	sortUnits(result)
	return result
}

// DiffDocuments compares the units of two segmented documents. A removed
// and an added unit with the same index are reported as Modified.
func DiffDocuments(oldDoc, newDoc *Document) *DiffResult {
	result := &DiffResult{}

	oldKeys := make(map[string]bool, len(oldDoc.Units))
	for _, u := range oldDoc.Units {
		oldKeys[NormalizeText(u.Text)] = true
	}
	newKeys := make(map[string]bool, len(newDoc.Units))
	for _, u := range newDoc.Units {
		newKeys[NormalizeText(u.Text)] = true
	}

	for _, u := range newDoc.Units {
		if oldKeys[NormalizeText(u.Text)] {
			result.Unchanged = append(result.Unchanged, u)
		} else {
			result.Added = append(result.Added, u)
		}
	}
	for _, u := range oldDoc.Units {
		if !newKeys[NormalizeText(u.Text)] {
			result.Removed = append(result.Removed, u)
		}
	}

	if len(result.Added) == 0 || len(result.Removed) == 0 {
		return result
	}

	removedAt := make(map[int]int, len(result.Removed))
	for i, u := range result.Removed {
		removedAt[u.Index] = i
	}

	matched := make(map[int]bool)
	added := result.Added[:0:0]
	for _, u := range result.Added {
		ri, ok := removedAt[u.Index]
		if !ok {
			added = append(added, u)
			continue
		}
		result.Modified = append(result.Modified, ModifiedUnit{Old: result.Removed[ri], New: u})
		matched[ri] = true
	}
	result.Added = added

	removed := result.Removed[:0:0]
	for i, u := range result.Removed {
		if !matched[i] {
			removed = append(removed, u)
		}
	}
	result.Removed = removed

	return result
}

func sortUnits(units []Unit) {
	for i := 1; i < len(units); i++ {
		for j := i; j > 0 && units[j].Index < units[j-1].Index; j-- {
			units[j], units[j-1] = units[j-1], units[j]
		}
	}
}
