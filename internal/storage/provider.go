// Package storage abstracts the file source for the markdown importer.
package storage

// FileMeta is a lightweight description of one importable file.
type FileMeta struct {
	Path     string
	Checksum string
}

// Provider lists and reads importable markdown files.
type Provider interface {
	List() ([]FileMeta, error)
	Read(rel string) ([]byte, error)
}
