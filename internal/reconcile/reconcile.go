package reconcile

// Reconcile merges the issue lists of every analysis version of a pull request
// into one deduplicated list. versions is ordered newest first.
//
// Issues sharing a fingerprint collapse into a single record. A record from a
// higher revision wins, except that a resolution recorded earlier is never lost:
// when the current winner is resolved and a newer report of the same issue is
// not, the newer content is kept with the older resolution fields. On equal
// revisions a resolved report beats an unresolved one. Lower revisions never
// displace a winner.
//
// Versions are consumed oldest first so that resolution state observed in an
// older version is already in place when newer reports of the issue arrive.
// The output follows that consumption order: issues of the oldest version
// come first, in their original order, then issues first seen in each newer
// version. It is not the order of the newest-first input.
func Reconcile(versions [][]Issue) []Issue {
	var flat []Issue
	for v := len(versions) - 1; v >= 0; v-- {
		flat = append(flat, versions[v]...)
	}
	return dedupe(flat)
}

// ReconcileSingle deduplicates the issues of one analysis version
func ReconcileSingle(issues []Issue) []Issue {
	return dedupe(issues)
}

func dedupe(flat []Issue) []Issue {
	order := make([]Fingerprint, 0, len(flat))
	winners := make(map[Fingerprint]Issue, len(flat))

	for _, issue := range flat {
		fp := FingerprintOf(issue)
		current, seen := winners[fp]
		if !seen {
			winners[fp] = issue
			order = append(order, fp)
			continue
		}

		switch {
		case issue.Revision() > current.Revision():
			if current.IsResolved() && !issue.IsResolved() {
				winners[fp] = carryResolution(issue, current)
			} else {
				winners[fp] = issue
			}
		case issue.Revision() == current.Revision():
			if issue.IsResolved() && !current.IsResolved() {
				winners[fp] = issue
			}
		}
	}

	out := make([]Issue, 0, len(order))
	for _, fp := range order {
		out = append(out, winners[fp])
	}
	return out
}

// carryResolution returns newer's content with resolved's resolution fields
func carryResolution(newer, resolved Issue) Issue {
	merged := newer
	merged.Status = resolved.Status
	merged.ResolvedDescription = resolved.ResolvedDescription
	merged.ResolvedByCommit = resolved.ResolvedByCommit
	merged.ResolvedInAnalysisID = resolved.ResolvedInAnalysisID
	return merged
}
