package document

// ShouldReplace is the merge rule for a single field: a proposal wins when
// its confidence is at least the current one (ties favor the newer value),
// unless the current value is locked at the maximum. A manual source may
// overwrite anything, including a lock.
func ShouldReplace(current, proposed int, proposedSource Source) bool {
	if proposedSource == SourceManual {
		return true
	}
	if current >= ConfidenceLocked {
		return false
	}
	return proposed >= current
}

// mergeField applies the merge rule and returns the winning field.
func mergeField(current Field, value string, confidence int, source Source) (Field, bool) {
	confidence = clampConfidence(confidence)
	if value == "" {
		return current, false
	}
	if !ShouldReplace(current.effectiveConfidence(), confidence, source) {
		return current, false
	}
	return Field{Value: value, Confidence: confidence, Source: source}, true
}

// minTagConfidence is the floor below which proposed tags are discarded
// rather than merged.
const minTagConfidence = 7

// mergeTags folds proposed tags into the existing set. Known tags keep the
// higher confidence; unknown tags above the floor are appended. Order of
// existing tags is preserved.
func mergeTags(existing []Tag, proposed []Tag) []Tag {
	index := make(map[string]int, len(existing))
	for i, t := range existing {
		index[t.Name] = i
	}
	for _, p := range proposed {
		p.Confidence = clampConfidence(p.Confidence)
		if p.Name == "" || p.Confidence < minTagConfidence {
			continue
		}
		if i, ok := index[p.Name]; ok {
			if p.Confidence > existing[i].Confidence {
				existing[i].Confidence = p.Confidence
			}
			continue
		}
		index[p.Name] = len(existing)
		existing = append(existing, p)
	}
	return existing
}
