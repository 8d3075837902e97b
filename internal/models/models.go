package models

// SearchResult is a single search hit. It is never persisted.
type SearchResult struct {
	Note         *Note   `json:"note"`
	ParentFolder *Folder `json:"-"`
	Path         string  `json:"path"`
	PreviewText  string  `json:"previewText"`
}

// EntryKind tags the variant held by a TreeEntry.
type EntryKind int

const (
	EntryNote EntryKind = iota + 1
	EntryFolder
)

func (k EntryKind) String() string {
	switch k {
	case EntryNote:
		return "note"
	case EntryFolder:
		return "folder"
	default:
		return "unknown"
	}
}

// TreeEntry is either a note or a folder together with the folder that owns
// it. Parent is nil for root folders and parentless notes.
type TreeEntry struct {
	Kind   EntryKind
	Note   *Note
	Folder *Folder
	Parent *Folder
}

func NoteEntry(note *Note, parent *Folder) TreeEntry {
	return TreeEntry{Kind: EntryNote, Note: note, Parent: parent}
}

func FolderEntry(folder *Folder, parent *Folder) TreeEntry {
	return TreeEntry{Kind: EntryFolder, Folder: folder, Parent: parent}
}

// ID returns the identity of whichever variant the entry holds.
func (e TreeEntry) ID() string {
	switch e.Kind {
	case EntryNote:
		return e.Note.ID
	case EntryFolder:
		return e.Folder.ID
	}
	return ""
}

// Name returns the note title or folder name.
func (e TreeEntry) Name() string {
	switch e.Kind {
	case EntryNote:
		return e.Note.Title
	case EntryFolder:
		return e.Folder.Name
	}
	return ""
}
