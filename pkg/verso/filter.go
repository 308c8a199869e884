package verso

// Shared filter resolution used by repository implementations that hold
// version rows in memory. SQL-backed repositories push the same precedence
// into their queries.

// ResolveObjectFilter picks one version out of versions, all belonging to the
// same (bucket, key). Precedence: UUID exact, then version number exact, then
// tag (latest matching used version by creation date), then the latest used
// version. UUID and version selectors match rows of any status; tag and
// default resolution only consider used rows. Returns nil when nothing
// matches.
func ResolveObjectFilter(versions []*ObjectVersion, f Filter) *ObjectVersion {
	switch {
	case f.UUID != nil:
		for _, v := range versions {
			if v.UUID == *f.UUID {
				return v
			}
		}
	case f.Version != nil:
		for _, v := range versions {
			if v.VersionNumber == *f.Version {
				return v
			}
		}
	case f.Tag != "":
		var best *ObjectVersion
		for _, v := range versions {
			if v.Status != StatusUsed || v.Tag != f.Tag {
				continue
			}
			if best == nil || v.CreationDate.After(best.CreationDate) ||
				(v.CreationDate.Equal(best.CreationDate) && v.VersionNumber > best.VersionNumber) {
				best = v
			}
		}
		return best
	default:
		var best *ObjectVersion
		for _, v := range versions {
			if v.Status != StatusUsed {
				continue
			}
			if best == nil || v.VersionNumber > best.VersionNumber {
				best = v
			}
		}
		return best
	}
	return nil
}

// ResolveCollectionFilter applies the same precedence to collection versions.
func ResolveCollectionFilter(versions []*CollectionVersion, f Filter) *CollectionVersion {
	switch {
	case f.UUID != nil:
		for _, v := range versions {
			if v.UUID == *f.UUID {
				return v
			}
		}
	case f.Version != nil:
		for _, v := range versions {
			if v.VersionNumber == *f.Version {
				return v
			}
		}
	case f.Tag != "":
		var best *CollectionVersion
		for _, v := range versions {
			if v.Status != StatusUsed || v.Tag != f.Tag {
				continue
			}
			if best == nil || v.CreationDate.After(best.CreationDate) ||
				(v.CreationDate.Equal(best.CreationDate) && v.VersionNumber > best.VersionNumber) {
				best = v
			}
		}
		return best
	default:
		var best *CollectionVersion
		for _, v := range versions {
			if v.Status != StatusUsed {
				continue
			}
			if best == nil || v.VersionNumber > best.VersionNumber {
				best = v
			}
		}
		return best
	}
	return nil
}
