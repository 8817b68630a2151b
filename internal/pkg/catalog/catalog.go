package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed songs.yaml
var embedded []byte

// Entry is a purchasable song template
type Entry struct {
	ID              string `yaml:"id" json:"id"`
	Title           string `yaml:"title" json:"title"`
	Artist          string `yaml:"artist" json:"artist"`
	Year            int    `yaml:"year" json:"year"`
	Tempo           string `yaml:"tempo" json:"tempo,omitempty"`
	Key             string `yaml:"key" json:"key,omitempty"`
	Rhythm          string `yaml:"rhythm" json:"rhythm,omitempty"`
	Attribution     string `yaml:"attribution" json:"attribution,omitempty"`
	BackingTrack    string `yaml:"backingTrack" json:"backingTrack"`
	MinRecordingSec int    `yaml:"minRecordingSec" json:"minRecordingSec"`
	MaxRecordingSec int    `yaml:"maxRecordingSec" json:"maxRecordingSec"`
	Price           int64  `yaml:"price" json:"price"`
	Style           string `yaml:"style" json:"-"`
	PreviewLyrics   string `yaml:"previewLyrics" json:"previewLyrics"`
	FullLyrics      string `yaml:"fullLyrics" json:"-"`
}

// Catalog keeps song templates, it is read only after load
type Catalog struct {
	entries []*Entry
	byID    map[string]*Entry
}

type file struct {
	Songs []*Entry `yaml:"songs"`
}

// Load parses the embedded catalog
func Load() (*Catalog, error) {
	return parse(embedded)
}

// LoadFile parses catalog from yaml file
func LoadFile(name string) (*Catalog, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("can't read %s: %w", name, err)
	}
	return parse(b)
}

func parse(b []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("can't parse catalog: %w", err)
	}
	if len(f.Songs) == 0 {
		return nil, fmt.Errorf("no songs in catalog")
	}
	res := &Catalog{byID: map[string]*Entry{}}
	for _, e := range f.Songs {
		if err := validate(e); err != nil {
			return nil, err
		}
		if _, f := res.byID[e.ID]; f {
			return nil, fmt.Errorf("duplicate song '%s'", e.ID)
		}
		res.byID[e.ID] = e
		res.entries = append(res.entries, e)
	}
	sort.SliceStable(res.entries, func(i, j int) bool { return res.entries[i].Title < res.entries[j].Title })
	return res, nil
}

func validate(e *Entry) error {
	if e.ID == "" {
		return fmt.Errorf("no song id")
	}
	if e.PreviewLyrics == "" || e.FullLyrics == "" {
		return fmt.Errorf("no lyrics for '%s'", e.ID)
	}
	if e.Price <= 0 {
		return fmt.Errorf("wrong price for '%s'", e.ID)
	}
	return nil
}

// Get returns entry by ID
func (c *Catalog) Get(id string) (*Entry, bool) {
	e, f := c.byID[id]
	return e, f
}

// All returns all entries sorted by title
func (c *Catalog) All() []*Entry {
	return append([]*Entry(nil), c.entries...)
}

// PreviewText returns text for preview synthesis
func (e *Entry) PreviewText() string {
	return withStyle(e.Style, e.PreviewLyrics)
}

// FullText returns text for full song synthesis
func (e *Entry) FullText() string {
	return withStyle(e.Style, e.FullLyrics)
}

func withStyle(style, lyrics string) string {
	if style == "" {
		return lyrics
	}
	return style + " " + lyrics
}
