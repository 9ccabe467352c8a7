// Package backup implements the backup store (C3): content-addressed,
// transactional snapshots of a file set, used by the applicator to make
// every mutating operation reversible.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	dserrors "github.com/dupesmith/dupesmith/internal/errors"
	"github.com/dupesmith/dupesmith/internal/logging"
	"github.com/dupesmith/dupesmith/internal/model"
)

const manifestFileName = "manifest.json"
const tempManifestSuffix = ".tmp"

// Store manages backups under Root, a directory containing one
// subdirectory per backup_id.
type Store struct {
	Root string

	locks sync.Map // backup_id -> *sync.Mutex
}

// lockFor returns the mutex guarding one backup manifest, creating it on
// first use. Scoping the lock per backup_id (rather than one mutex for the
// whole store) means concurrent Begin/Commit/Restore/Verify calls against
// different backups never block each other.
func (s *Store) lockFor(backupID string) *sync.Mutex {
	l, _ := s.locks.LoadOrStore(backupID, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// New returns a Store rooted at root, creating it if necessary.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, dserrors.Wrap(dserrors.ExecutionError, err, "failed to create backup root")
	}
	return &Store{Root: root}, nil
}

// RestoreReport describes what Restore wrote back.
type RestoreReport struct {
	BackupID       string
	FilesRestored  []string
}

// ManifestSummary is the list-view of a backup.
type ManifestSummary struct {
	BackupID  string
	CreatedAt time.Time
	FileCount int
}

// IntegrityReport is the result of Verify.
type IntegrityReport struct {
	BackupID string
	Intact   bool
	Mismatches []string
}

// newBackupID returns a backup_id of the form YYYYMMDDHHMMSS-<uuid>. List
// orders by the manifest's recorded CreatedAt, not by this string, so only
// uniqueness and a human-readable timestamp prefix matter here.
func newBackupID() string {
	return fmt.Sprintf("%s-%s", time.Now().Format("20060102150405"), uuid.NewString())
}

// Begin atomically copies every listed file into a new backup directory
// and writes a temporary manifest. On any copy failure the partial backup
// is discarded. The returned backup_id is not visible to List/Restore
// until Commit is called.
func (s *Store) Begin(files []string) (string, error) {
	backupID := newBackupID()
	lock := s.lockFor(backupID)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Join(s.Root, backupID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", dserrors.Wrap(dserrors.ExecutionError, err, "failed to create backup directory")
	}

	entries, err := copyFiles(files, dir)
	if err != nil {
		os.RemoveAll(dir)
		return "", err
	}

	manifest := model.BackupManifest{
		BackupID:  backupID,
		CreatedAt: time.Now(),
		Entries:   entries,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		os.RemoveAll(dir)
		return "", dserrors.Wrap(dserrors.ExecutionError, err, "failed to marshal manifest")
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFileName+tempManifestSuffix), data, 0644); err != nil {
		os.RemoveAll(dir)
		return "", dserrors.Wrap(dserrors.ExecutionError, err, "failed to write temporary manifest")
	}

	logging.Get(logging.CategoryBackup).Info("began backup %s (%d files)", backupID, len(entries))
	return backupID, nil
}

func copyFiles(files []string, dir string) ([]model.ManifestEntry, error) {
	var entries []model.ManifestEntry
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return nil, dserrors.Wrap(dserrors.ExecutionError, err, fmt.Sprintf("failed to stat %s", f))
		}

		data, err := os.ReadFile(f)
		if err != nil {
			return nil, dserrors.Wrap(dserrors.ExecutionError, err, fmt.Sprintf("failed to read %s", f))
		}

		sum := sha256.Sum256(data)
		hash := hex.EncodeToString(sum[:])

		dest := filepath.Join(dir, filepath.Base(f)+"-"+hash[:12])
		if err := os.WriteFile(dest, data, info.Mode().Perm()); err != nil {
			return nil, dserrors.Wrap(dserrors.ExecutionError, err, fmt.Sprintf("failed to copy %s", f))
		}

		entries = append(entries, model.ManifestEntry{
			RelativePath: f,
			SHA256:       hash,
			Size:         info.Size(),
			OriginalMode: uint32(info.Mode().Perm()),
		})
	}
	return entries, nil
}

func storedFileName(entry model.ManifestEntry) string {
	return filepath.Base(entry.RelativePath) + "-" + entry.SHA256[:12]
}

// Commit makes a backup visible to List/Restore by renaming its temporary
// manifest to its final name.
func (s *Store) Commit(backupID string) error {
	lock := s.lockFor(backupID)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Join(s.Root, backupID)
	tmp := filepath.Join(dir, manifestFileName+tempManifestSuffix)
	final := filepath.Join(dir, manifestFileName)
	if _, err := os.Stat(tmp); err != nil {
		return dserrors.Wrap(dserrors.InvalidInput, err, fmt.Sprintf("no pending backup %s to commit", backupID))
	}
	if err := os.Rename(tmp, final); err != nil {
		return dserrors.Wrap(dserrors.ExecutionError, err, "failed to commit manifest")
	}
	logging.Get(logging.CategoryBackup).Info("committed backup %s", backupID)
	return nil
}

func (s *Store) readManifest(backupID string) (model.BackupManifest, error) {
	path := filepath.Join(s.Root, backupID, manifestFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return model.BackupManifest{}, dserrors.Wrap(dserrors.InvalidInput, err, fmt.Sprintf("backup %s not found", backupID))
	}
	var m model.BackupManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return model.BackupManifest{}, dserrors.Wrap(dserrors.ExecutionError, err, "failed to parse manifest")
	}
	return m, nil
}

// Restore verifies every entry's hash against the stored copy, then writes
// each file back to its original path. Any hash mismatch aborts the whole
// operation with IntegrityFailure before any file is written, leaving the
// filesystem untouched.
func (s *Store) Restore(backupID string) (RestoreReport, error) {
	lock := s.lockFor(backupID)
	lock.Lock()
	defer lock.Unlock()

	manifest, err := s.readManifest(backupID)
	if err != nil {
		return RestoreReport{}, err
	}

	dir := filepath.Join(s.Root, backupID)
	type payload struct {
		entry model.ManifestEntry
		data  []byte
	}
	var payloads []payload

	for _, entry := range manifest.Entries {
		stored := filepath.Join(dir, storedFileName(entry))
		data, err := os.ReadFile(stored)
		if err != nil {
			return RestoreReport{}, dserrors.Wrap(dserrors.IntegrityFailure, err, fmt.Sprintf("missing stored copy for %s", entry.RelativePath))
		}
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != entry.SHA256 {
			return RestoreReport{}, dserrors.New(dserrors.IntegrityFailure, fmt.Sprintf("hash mismatch for %s: backup corrupted", entry.RelativePath))
		}
		payloads = append(payloads, payload{entry: entry, data: data})
	}

	var restored []string
	for _, p := range payloads {
		if err := os.WriteFile(p.entry.RelativePath, p.data, os.FileMode(p.entry.OriginalMode)); err != nil {
			return RestoreReport{BackupID: backupID, FilesRestored: restored}, dserrors.Wrap(dserrors.ExecutionError, err, fmt.Sprintf("failed to restore %s", p.entry.RelativePath))
		}
		restored = append(restored, p.entry.RelativePath)
	}

	logging.Get(logging.CategoryBackup).Info("restored backup %s (%d files)", backupID, len(restored))
	return RestoreReport{BackupID: backupID, FilesRestored: restored}, nil
}

// List returns committed backups ordered newest-first. It takes no lock:
// it only reads manifests Commit has already atomically renamed into
// place, so it never observes a half-written one, and a concurrent
// Begin/Commit/Restore against some other backup_id cannot affect it.
func (s *Store) List() ([]ManifestSummary, error) {
	dirEntries, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, dserrors.Wrap(dserrors.ExecutionError, err, "failed to list backup root")
	}

	var summaries []ManifestSummary
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		m, err := s.readManifest(de.Name())
		if err != nil {
			continue // uncommitted or corrupt; not visible via List
		}
		summaries = append(summaries, ManifestSummary{
			BackupID:  m.BackupID,
			CreatedAt: m.CreatedAt,
			FileCount: len(m.Entries),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// Verify checks every entry's stored hash without restoring anything.
func (s *Store) Verify(backupID string) (IntegrityReport, error) {
	lock := s.lockFor(backupID)
	lock.Lock()
	defer lock.Unlock()

	manifest, err := s.readManifest(backupID)
	if err != nil {
		return IntegrityReport{}, err
	}

	dir := filepath.Join(s.Root, backupID)
	report := IntegrityReport{BackupID: backupID, Intact: true}

	for _, entry := range manifest.Entries {
		stored := filepath.Join(dir, storedFileName(entry))
		f, err := os.Open(stored)
		if err != nil {
			report.Intact = false
			report.Mismatches = append(report.Mismatches, entry.RelativePath)
			continue
		}
		h := sha256.New()
		_, copyErr := io.Copy(h, f)
		f.Close()
		if copyErr != nil || hex.EncodeToString(h.Sum(nil)) != entry.SHA256 {
			report.Intact = false
			report.Mismatches = append(report.Mismatches, entry.RelativePath)
		}
	}

	return report, nil
}
