// Package fsutil loads YAML migration documents from a directory or an
// embedded filesystem and writes new ones.
package fsutil

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mirajehossain/relmigrate/internal/migrator"
	"github.com/mirajehossain/relmigrate/internal/model"
)

var fileRe = regexp.MustCompile(`^(\d+_[a-zA-Z0-9_\-]+)\.ya?ml$`)

var ErrDuplicateDocument = errors.New("duplicate migration document")

// ScanDir reads every migration document in a local directory.
func ScanDir(dir string) ([]migrator.Document, error) {
	return ScanEmbedded(os.DirFS(dir), ".")
}

// ScanEmbedded reads every migration document under root in fsys.
// Documents are returned in id order.
func ScanEmbedded(fsys fs.FS, root string) ([]migrator.Document, error) {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, err
	}
	seen := map[string]string{}
	var docs []migrator.Document
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := fileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		id := m[1]
		if prev, ok := seen[id]; ok {
			return nil, fmt.Errorf("%w: %s and %s", ErrDuplicateDocument, prev, e.Name())
		}
		seen[id] = e.Name()

		doc, err := readDocument(fsys, path.Join(root, e.Name()))
		if err != nil {
			return nil, err
		}
		switch doc.ID {
		case "":
			doc.ID = id
		case id:
		default:
			return nil, fmt.Errorf("%s: id %q does not match file name", e.Name(), doc.ID)
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func readDocument(fsys fs.FS, name string) (migrator.Document, error) {
	var doc migrator.Document
	b, err := fs.ReadFile(fsys, name)
	if err != nil {
		return doc, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return doc, fmt.Errorf("%s: %w", name, err)
	}
	return doc, nil
}

// RegisterAll adds every document to reg.
func RegisterAll(reg *migrator.Registry, docs []migrator.Document) error {
	for _, d := range docs {
		if err := reg.Register(d.ID, d.Factory()); err != nil {
			return err
		}
	}
	return nil
}

// LatestModel is the model of the newest document, or nil when there are
// none. docs must be in id order.
func LatestModel(docs []migrator.Document) *model.Model {
	if len(docs) == 0 {
		return nil
	}
	return docs[len(docs)-1].Model
}

// ReadModel decodes a model snapshot from a YAML file.
func ReadModel(p string) (*model.Model, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	var m model.Model
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return &m, m.Validate()
}

// WriteDocument writes doc to <dir>/<id>.yaml and returns the path. An
// existing file is never overwritten.
func WriteDocument(dir string, doc migrator.Document) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return "", err
	}
	p := filepath.Join(dir, doc.ID+".yaml")
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return "", err
	}
	return p, f.Close()
}
