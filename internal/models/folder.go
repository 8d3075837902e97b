package models

// Folder owns an ordered list of notes and subfolders. A folder appears under
// exactly one parent, or in the root registry when it has none.
type Folder struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Notes      []*Note   `json:"notes"`
	SubFolders []*Folder `json:"subFolders"`
	Summary    string    `json:"summary,omitempty"`
}

func NewFolder(name string) *Folder {
	return &Folder{
		Name:       name,
		Notes:      []*Note{},
		SubFolders: []*Folder{},
	}
}

// Same reports whether both folders carry the same identity.
func (f *Folder) Same(other *Folder) bool {
	if f == nil || other == nil {
		return false
	}
	return f.ID == other.ID
}

func (f *Folder) HasNote(id string) bool {
	return f.noteIndex(id) >= 0
}

// AddNote appends the note unless a note with the same id is already present.
// It returns false when nothing was added.
func (f *Folder) AddNote(note *Note) bool {
	if note == nil || f.HasNote(note.ID) {
		return false
	}
	f.Notes = append(f.Notes, note)
	return true
}

func (f *Folder) RemoveNote(id string) bool {
	i := f.noteIndex(id)
	if i < 0 {
		return false
	}
	f.Notes = append(f.Notes[:i], f.Notes[i+1:]...)
	return true
}

func (f *Folder) HasSubFolder(id string) bool {
	return f.subFolderIndex(id) >= 0
}

// AddSubFolder appends the folder unless a folder with the same id is already present.
func (f *Folder) AddSubFolder(folder *Folder) bool {
	if folder == nil || f.HasSubFolder(folder.ID) {
		return false
	}
	f.SubFolders = append(f.SubFolders, folder)
	return true
}

func (f *Folder) RemoveSubFolder(id string) bool {
	i := f.subFolderIndex(id)
	if i < 0 {
		return false
	}
	f.SubFolders = append(f.SubFolders[:i], f.SubFolders[i+1:]...)
	return true
}

// InsertNote puts note at position i, clamped to the list bounds, unless a
// note with the same id is already present.
func (f *Folder) InsertNote(i int, note *Note) {
	if note == nil || f.HasNote(note.ID) {
		return
	}
	i = clamp(i, len(f.Notes))
	f.Notes = append(f.Notes[:i], append([]*Note{note}, f.Notes[i:]...)...)
}

// InsertSubFolder puts folder at position i, clamped to the list bounds,
// unless a folder with the same id is already present.
func (f *Folder) InsertSubFolder(i int, folder *Folder) {
	if folder == nil || f.HasSubFolder(folder.ID) {
		return
	}
	i = clamp(i, len(f.SubFolders))
	f.SubFolders = append(f.SubFolders[:i], append([]*Folder{folder}, f.SubFolders[i:]...)...)
}

// NoteIndex returns the position of the note with id, or -1.
func (f *Folder) NoteIndex(id string) int {
	return f.noteIndex(id)
}

// SubFolderIndex returns the position of the subfolder with id, or -1.
func (f *Folder) SubFolderIndex(id string) int {
	return f.subFolderIndex(id)
}

// ReplaceSubFolder swaps the child with the same id for folder. Returns false
// when no such child exists.
func (f *Folder) ReplaceSubFolder(folder *Folder) bool {
	i := f.subFolderIndex(folder.ID)
	if i < 0 {
		return false
	}
	f.SubFolders[i] = folder
	return true
}

// Contains reports whether id names a folder strictly below f.
func (f *Folder) Contains(id string) bool {
	found := false
	for _, sub := range f.SubFolders {
		sub.Walk(func(folder *Folder, _ []*Folder) bool {
			if folder.ID == id {
				found = true
			}
			return !found
		})
		if found {
			return true
		}
	}
	return false
}

// Walk visits f and every folder below it in pre-order. ancestors holds the
// chain from f down to the visited folder's parent. Returning false from fn
// stops the walk. A folder reached twice through the same pointer is visited once.
func (f *Folder) Walk(fn func(folder *Folder, ancestors []*Folder) bool) {
	f.walk(nil, make(map[*Folder]struct{}), fn)
}

func (f *Folder) walk(ancestors []*Folder, seen map[*Folder]struct{}, fn func(*Folder, []*Folder) bool) bool {
	if _, ok := seen[f]; ok {
		return true
	}
	seen[f] = struct{}{}
	if !fn(f, ancestors) {
		return false
	}
	chain := append(ancestors[:len(ancestors):len(ancestors)], f)
	for _, sub := range f.SubFolders {
		if sub == nil {
			continue
		}
		if !sub.walk(chain, seen, fn) {
			return false
		}
	}
	return true
}

// Normalize replaces nil slices with empty ones and drops nil or duplicate
// children, recursively.
func (f *Folder) Normalize() {
	notes := make([]*Note, 0, len(f.Notes))
	seenNotes := make(map[string]struct{}, len(f.Notes))
	for _, n := range f.Notes {
		if n == nil {
			continue
		}
		if _, dup := seenNotes[n.ID]; dup {
			continue
		}
		seenNotes[n.ID] = struct{}{}
		notes = append(notes, n)
	}
	f.Notes = notes

	subs := make([]*Folder, 0, len(f.SubFolders))
	seenSubs := make(map[string]struct{}, len(f.SubFolders))
	for _, s := range f.SubFolders {
		if s == nil {
			continue
		}
		if _, dup := seenSubs[s.ID]; dup {
			continue
		}
		seenSubs[s.ID] = struct{}{}
		s.Normalize()
		subs = append(subs, s)
	}
	f.SubFolders = subs
}

func (f *Folder) noteIndex(id string) int {
	for i, n := range f.Notes {
		if n != nil && n.ID == id {
			return i
		}
	}
	return -1
}

func (f *Folder) subFolderIndex(id string) int {
	for i, s := range f.SubFolders {
		if s != nil && s.ID == id {
			return i
		}
	}
	return -1
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
