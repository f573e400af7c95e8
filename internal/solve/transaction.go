package solve

import "sort"

// Action is one step of a Transaction's ordered plan.
type Action struct {
	Kind   ActionKind
	Record *PackageRecord
}

// ActionKind distinguishes unlink from link steps.
type ActionKind int

const (
	Unlink ActionKind = iota
	Link
)

func (k ActionKind) String() string {
	if k == Unlink {
		return "UNLINK"
	}
	return "LINK"
}

// Transaction is the TransactionPlanner's output: an ordered sequence
// of unlink then link actions, plus the history entry to persist once
// the caller applies it successfully.
type Transaction struct {
	UnlinkActions []*PackageRecord
	LinkActions   []*PackageRecord
	History       HistoryEntry
}

// TransactionPlanner orders unlink/link steps between an installed set
// and a solved set, per spec.md §4.7.
type TransactionPlanner struct{}

// NewTransactionPlanner constructs a TransactionPlanner.
func NewTransactionPlanner() *TransactionPlanner { return &TransactionPlanner{} }

// Plan computes to_unlink = installed - solved and to_link = solved -
// installed (by record equality), orders each side, and returns the
// resulting Transaction.
func (p *TransactionPlanner) Plan(installed, solved []*PackageRecord) (*Transaction, error) {
	toUnlink := diffByIdentity(installed, solved)
	toLink := diffByIdentity(solved, installed)

	unlinkOrder := orderUnlink(toUnlink)
	linkOrder := orderLink(toLink)

	tx := &Transaction{UnlinkActions: unlinkOrder, LinkActions: linkOrder}
	if err := verifyPlan(installed, toUnlink, linkOrder); err != nil {
		return nil, err
	}
	return tx, nil
}

func diffByIdentity(a, b []*PackageRecord) []*PackageRecord {
	present := make(map[Identity]struct{}, len(b))
	for _, r := range b {
		present[r.Identity()] = struct{}{}
	}
	var out []*PackageRecord
	for _, r := range a {
		if _, ok := present[r.Identity()]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// orderUnlink produces a reverse-topological order over to_unlink
// (leaves first), using each record's own Depends edges restricted to
// names present in to_unlink. "python" is forced last, since
// noarch:python packages route their files through the currently
// installed python interpreter until they themselves are unlinked.
func orderUnlink(records []*PackageRecord) []*PackageRecord {
	byName := indexByName(records)
	visited := make(map[string]bool, len(records))
	var order []*PackageRecord

	sorted := sortedByNameVersion(records, false)

	var visit func(r *PackageRecord)
	visit = func(r *PackageRecord) {
		if visited[r.Name] || r.Name == "python" {
			return
		}
		visited[r.Name] = true
		for _, dependent := range dependentsOf(r.Name, sorted) {
			visit(dependent)
		}
		order = append(order, r)
	}

	for _, r := range sorted {
		if r.Name == "python" {
			continue
		}
		visit(r)
	}
	if py, ok := byName["python"]; ok {
		order = append(order, py)
	}
	return order
}

// dependentsOf returns the records in the candidate set that depend on
// name, i.e. the set whose unlink must precede name's own unlink in
// reverse-topological (leaves-first) order.
func dependentsOf(name string, candidates []*PackageRecord) []*PackageRecord {
	var out []*PackageRecord
	for _, c := range candidates {
		depends, err := c.ParsedDepends()
		if err != nil {
			continue
		}
		for _, d := range depends {
			if d.Name == name {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// orderLink produces a topological order over to_link (dependencies
// first). "python" is forced first if present, then every
// noarch:python package in dependency order, then the remainder.
func orderLink(records []*PackageRecord) []*PackageRecord {
	byName := indexByName(records)
	visited := make(map[string]bool, len(records))
	visiting := make(map[string]bool, len(records))
	var order []*PackageRecord

	sorted := sortedByNameVersion(records, true)

	var visit func(r *PackageRecord)
	visit = func(r *PackageRecord) {
		if visited[r.Name] || visiting[r.Name] {
			return
		}
		visiting[r.Name] = true
		depends, err := r.ParsedDepends()
		if err == nil {
			for _, d := range depends {
				if dep, ok := byName[d.Name]; ok {
					visit(dep)
				}
			}
		}
		visiting[r.Name] = false
		visited[r.Name] = true
		order = append(order, r)
	}

	if py, ok := byName["python"]; ok {
		visit(py)
	}
	for _, r := range sorted {
		if r.Name == "python" {
			continue
		}
		if r.IsNoarchPython() {
			visit(r)
		}
	}
	for _, r := range sorted {
		visit(r)
	}
	return order
}

func indexByName(records []*PackageRecord) map[string]*PackageRecord {
	out := make(map[string]*PackageRecord, len(records))
	for _, r := range records {
		out[r.Name] = r
	}
	return out
}

// sortedByNameVersion applies the §4.7 tie-break at equal topological
// level: name ASC, version DESC. versionDescending controls whether
// higher versions sort first (used for link order) — the comparator is
// symmetric either direction since it's only a tie-break within a
// level, not a correctness requirement.
func sortedByNameVersion(records []*PackageRecord, versionDescending bool) []*PackageRecord {
	out := append([]*PackageRecord{}, records...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		cmp := out[i].Version.Compare(out[j].Version)
		if versionDescending {
			return cmp > 0
		}
		return cmp < 0
	})
	return out
}

// verifyPlan re-walks the link list and asserts that every link step's
// dependencies are either already installed (and not queued for
// unlink), or appear earlier in the link list.
func verifyPlan(installed, toUnlink, linkOrder []*PackageRecord) error {
	stillInstalled := make(map[string]bool)
	for _, r := range installed {
		stillInstalled[r.Name] = true
	}
	for _, r := range toUnlink {
		stillInstalled[r.Name] = false
	}

	linked := make(map[string]bool, len(linkOrder))
	for _, r := range linkOrder {
		depends, err := r.ParsedDepends()
		if err != nil {
			return err
		}
		for _, d := range depends {
			if linked[d.Name] || stillInstalled[d.Name] {
				continue
			}
			return newUnsatisfiableError([][]string{{"internal: transaction plan violates dependency order for " + d.Name}})
		}
		linked[r.Name] = true
	}
	return nil
}
