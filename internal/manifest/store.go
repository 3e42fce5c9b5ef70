package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/schaermu/prezsyncd/internal/rdf"
)

// Store reads and commits manifests, catalogues and artifact files.
type Store struct {
	fs afero.Fs
}

// NewStore creates a store on fs.
func NewStore(fs afero.Fs) *Store {
	return &Store{fs: fs}
}

// Fs returns the underlying filesystem.
func (s *Store) Fs() afero.Fs { return s.fs }

// Load reads the manifest at path.
func (s *Store) Load(path string) (*Manifest, error) {
	g, err := readGraph(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return New(path, g)
}

// LoadCatalogue reads the catalogue artifact declared by m.
func (s *Store) LoadCatalogue(m *Manifest) (*Catalogue, error) {
	res, ok, err := m.CatalogueResource()
	if err != nil {
		return nil, err
	}
	if !ok || len(res.Artifacts) == 0 {
		return nil, fmt.Errorf("%s: %w: no CatalogueData resource", m.Path, ErrNoCatalogue)
	}
	path := m.AbsPath(res.Artifacts[0].Location())
	g, err := readGraph(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalogue: %w", err)
	}
	return NewCatalogue(path, g)
}

// ReadDataset reads an artifact file into a dataset.
func (s *Store) ReadDataset(path string) (*rdf.Dataset, error) {
	return readDataset(s.fs, path)
}

// ReadGraph reads an artifact file, flattening any named graphs.
func (s *Store) ReadGraph(path string) (*rdf.Graph, error) {
	return readGraph(s.fs, path)
}

// Commit writes the manifest snapshot back to its path.
func (s *Store) Commit(m *Manifest) error {
	if err := s.WriteGraph(m.Path, "", m.graph); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// CommitCatalogue writes the catalogue snapshot back to its path.
func (s *Store) CommitCatalogue(c *Catalogue) error {
	if err := s.WriteGraph(c.Path, c.IRI, c.graph); err != nil {
		return fmt.Errorf("failed to write catalogue: %w", err)
	}
	return nil
}

// WriteGraph serializes g in the format implied by path's extension and
// atomically replaces the file. For quads files every triple is placed in
// graphName.
func (s *Store) WriteGraph(path, graphName string, g *rdf.Graph) error {
	format, err := rdf.FormatForPath(path)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	switch format {
	case rdf.FormatTurtle:
		err = rdf.WriteTurtle(&buf, g)
	case rdf.FormatNTriples:
		_, err = buf.WriteString(g.NTriples())
	case rdf.FormatNQuads:
		ds := rdf.NewDataset()
		name := rdf.IRI(graphName)
		if graphName == "" {
			name = rdf.Term{}
		}
		for _, t := range g.Triples() {
			ds.Add(rdf.Quad{Triple: t, G: name})
		}
		err = rdf.WriteNQuads(&buf, ds)
	default:
		err = fmt.Errorf("%w: writing %s", rdf.ErrUnsupportedFormat, path)
	}
	if err != nil {
		return err
	}
	return s.writeFile(path, buf.Bytes())
}

// writeFile writes data to a temp file next to dst and renames it into
// place.
func (s *Store) writeFile(dst string, data []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	mode := os.FileMode(0644)
	if fi, err := s.fs.Stat(dst); err == nil {
		mode = fi.Mode().Perm()
	}

	tmp, err := afero.TempFile(s.fs, filepath.Dir(dst), ".prezsyncd-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = s.fs.Remove(tmpPath)
	}() // cleanup on error

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := s.fs.Chmod(tmpPath, mode); err != nil {
		return err
	}
	return s.fs.Rename(tmpPath, dst)
}

// Exists reports whether path exists.
func (s *Store) Exists(path string) bool {
	ok, err := afero.Exists(s.fs, path)
	return err == nil && ok
}
