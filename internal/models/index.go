package models

// Index is a flat view over a folder forest: every folder keyed by id plus an
// explicit parent pointer for each folder and note. It is rebuilt from the
// stored forest whenever a mutation needs ancestor information.
type Index struct {
	roots       []*Folder
	folders     map[string]*Folder
	parents     map[string]string
	noteParents map[string]string
}

// NewIndex builds an index over roots. When the forest contains the same
// folder id twice, the first occurrence in pre-order wins.
func NewIndex(roots []*Folder) *Index {
	idx := &Index{
		roots:       roots,
		folders:     make(map[string]*Folder),
		parents:     make(map[string]string),
		noteParents: make(map[string]string),
	}
	for _, root := range roots {
		if root == nil {
			continue
		}
		root.Walk(func(folder *Folder, ancestors []*Folder) bool {
			if _, seen := idx.folders[folder.ID]; seen {
				return true
			}
			idx.folders[folder.ID] = folder
			if len(ancestors) > 0 {
				idx.parents[folder.ID] = ancestors[len(ancestors)-1].ID
			}
			for _, n := range folder.Notes {
				if n == nil {
					continue
				}
				if _, seen := idx.noteParents[n.ID]; !seen {
					idx.noteParents[n.ID] = folder.ID
				}
			}
			return true
		})
	}
	return idx
}

func (idx *Index) Roots() []*Folder {
	return idx.roots
}

func (idx *Index) Len() int {
	return len(idx.folders)
}

func (idx *Index) Folder(id string) (*Folder, bool) {
	f, ok := idx.folders[id]
	return f, ok
}

// Parent returns the folder owning id, or nil for root folders and unknown ids.
func (idx *Index) Parent(id string) *Folder {
	pid, ok := idx.parents[id]
	if !ok {
		return nil
	}
	return idx.folders[pid]
}

// NoteParent returns the folder holding the note, or nil.
func (idx *Index) NoteParent(noteID string) *Folder {
	pid, ok := idx.noteParents[noteID]
	if !ok {
		return nil
	}
	return idx.folders[pid]
}

// IsRoot reports whether id is a known folder with no parent.
func (idx *Index) IsRoot(id string) bool {
	if _, ok := idx.folders[id]; !ok {
		return false
	}
	_, hasParent := idx.parents[id]
	return !hasParent
}

// Ancestors returns the chain of folders above id, nearest first.
func (idx *Index) Ancestors(id string) []*Folder {
	var chain []*Folder
	seen := map[string]struct{}{id: {}}
	for cur := idx.Parent(id); cur != nil; cur = idx.Parent(cur.ID) {
		if _, loop := seen[cur.ID]; loop {
			break
		}
		seen[cur.ID] = struct{}{}
		chain = append(chain, cur)
	}
	return chain
}

// IsDescendant reports whether id lies strictly below ancestorID.
func (idx *Index) IsDescendant(ancestorID, id string) bool {
	for _, a := range idx.Ancestors(id) {
		if a.ID == ancestorID {
			return true
		}
	}
	return false
}

// Path returns the folder names from the root down to id inclusive.
func (idx *Index) Path(id string) []string {
	f, ok := idx.folders[id]
	if !ok {
		return nil
	}
	chain := idx.Ancestors(id)
	names := make([]string, 0, len(chain)+1)
	for i := len(chain) - 1; i >= 0; i-- {
		names = append(names, chain[i].Name)
	}
	return append(names, f.Name)
}
