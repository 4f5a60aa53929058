package audio

import (
	"os"

	"github.com/dhowden/tag"
)

// Meta holds the embedded tags of an audio file. Absent tags are empty
// strings.
type Meta struct {
	Title  string
	Artist string
	Album  string
}

// Probe reads the file's embedded tags. Files without readable tags yield
// an empty Meta: missing metadata is not an error.
func Probe(path string) Meta {
	f, err := os.Open(path)
	if err != nil {
		return Meta{}
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return Meta{}
	}
	return Meta{
		Title:  m.Title(),
		Artist: m.Artist(),
		Album:  m.Album(),
	}
}
