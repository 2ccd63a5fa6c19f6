package index

import "github.com/starford/dagaz/internal/models"

// Log defines the write and query operations over the append log and its
// materialized views. Consumers should depend on this interface rather than
// the concrete *DB type to facilitate testing with mocks.
type Log interface {
	EnsureDailyNote(date string) (*models.Note, error)
	EnsureNamedNote(title string) (*models.Note, error)
	GetNote(noteID string) (*models.Note, error)

	AppendBullet(noteID, clientID string, p models.BulletPayload) (AppendResult, error)
	AppendAnnotation(p models.AnnotationPayload) (int64, error)
	Redact(p models.RedactPayload) (int64, error)

	BulletsSince(noteID string, sinceSeq int64, includeRedacted bool) ([]models.Bullet, error)
	GetBullet(bulletID string) (*models.Bullet, error)
	Search(query string, limit int) ([]SearchResult, error)
	Backlinks(targetType, targetValue string) ([]BacklinkResult, error)
	Tasks() ([]TaskResult, error)
	LinkTargets(targetType, query string, limit int) ([]string, error)

	ImportChecksum(path string) (string, error)
	SetImportChecksum(path, checksum string) error

	Rebuild() error
	Close() error
}

// Verify *DB satisfies Log at compile time.
var _ Log = (*DB)(nil)
