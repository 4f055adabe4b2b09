package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/renameio/v2"
)

const filePrefix = "accounts_backup_"

var ErrBackupNotFound = errors.New("backup file not found")

// FileStore keeps one backup file per user in a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// FileName returns the backup file name for userID.
func FileName(userID string) string {
	return filePrefix + escapeName(userID) + ".json"
}

func (s *FileStore) Path(userID string) string {
	return filepath.Join(s.dir, FileName(userID))
}

// Write atomically replaces the user's backup file with data.
func (s *FileStore) Write(ctx context.Context, userID string, data []byte) (string, error) {
	path := s.Path(userID)

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0600))
	if err != nil {
		return "", fmt.Errorf("create pending backup file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			slog.DebugContext(ctx, "cleanup pending backup file", "error", err)
		}
	}()

	if _, err := pending.Write(data); err != nil {
		return "", fmt.Errorf("write backup data: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("replace backup file: %w", err)
	}

	slog.InfoContext(ctx, "Backup written", "user_id", userID, "path", path, "bytes", len(data))
	return FileName(userID), nil
}

// Read returns the user's backup, or ErrBackupNotFound.
func (s *FileStore) Read(userID string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBackupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	return data, nil
}

// escapeName maps userID to a file-name-safe string, one-to-one.
// ASCII letters, digits, '-', '_' and '.' are kept, as are valid non-ASCII
// runes. Every other byte, '%' itself and a leading '.' are written as %XX.
func escapeName(userID string) string {
	var b strings.Builder
	for i := 0; i < len(userID); {
		r, size := utf8.DecodeRuneInString(userID[i:])
		switch {
		case r == '.' && i == 0:
			escapeBytes(&b, userID[i:i+size])
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case r >= utf8.RuneSelf && !(r == utf8.RuneError && size == 1) && unicode.IsPrint(r):
			b.WriteString(userID[i : i+size])
		default:
			escapeBytes(&b, userID[i:i+size])
		}
		i += size
	}
	return b.String()
}

func escapeBytes(b *strings.Builder, s string) {
	for j := 0; j < len(s); j++ {
		fmt.Fprintf(b, "%%%02X", s[j])
	}
}
