package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	backupPrefix = "backup_"
	backupExt    = ".xlsx"
	backupLayout = "20060102_150405"
)

// ErrNoWorkbook is returned when no current workbook has been stored yet.
var ErrNoWorkbook = errors.New("no workbook stored")

// Backup describes one retained copy of a previous workbook.
type Backup struct {
	Name      string    `json:"name"`
	Path      string    `json:"-"`
	Size      int64     `json:"size"`
	SizeLabel string    `json:"sizeLabel"`
	CreatedAt time.Time `json:"createdAt"`
}

// Archive keeps the current gradebook workbook on disk and a timestamped
// backup of every workbook it replaces.
type Archive struct {
	Dir     string
	Current string

	log zerolog.Logger
	now func() time.Time
}

// New creates an Archive rooted at dir, creating the directory if needed.
func New(dir, current string, log zerolog.Logger) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Archive{Dir: dir, Current: current, log: log, now: time.Now}, nil
}

func (a *Archive) currentPath() string {
	return filepath.Join(a.Dir, a.Current)
}

// Store replaces the current workbook with the contents of r. The previous
// workbook, if any, is kept as a backup first. It returns the number of bytes written.
func (a *Archive) Store(r io.Reader) (int64, error) {
	tmp := filepath.Join(a.Dir, "upload-"+uuid.NewString()+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create upload file: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("write upload file: %w", err)
	}

	if _, err := os.Stat(a.currentPath()); err == nil {
		backup, err := a.backupCurrent()
		if err != nil {
			_ = os.Remove(tmp)
			return 0, fmt.Errorf("backup current workbook: %w", err)
		}
		a.log.Info().Str("backup", backup).Msg("Backup created")
	}

	if err := os.Rename(tmp, a.currentPath()); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("replace current workbook: %w", err)
	}
	a.log.Info().Str("file", a.Current).Str("size", FormatSize(n)).Msg("Workbook stored")
	return n, nil
}

// backupCurrent copies the current workbook to a new backup file and returns
// its name. Backups taken within the same second get a _1, _2, ... suffix.
func (a *Archive) backupCurrent() (string, error) {
	stamp := a.now().Format(backupLayout)
	for seq := 0; ; seq++ {
		name := backupPrefix + stamp + backupExt
		if seq > 0 {
			name = fmt.Sprintf("%s%s_%d%s", backupPrefix, stamp, seq, backupExt)
		}
		out, err := os.OpenFile(filepath.Join(a.Dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if err := copyTo(out, a.currentPath()); err != nil {
			_ = os.Remove(out.Name())
			return "", err
		}
		return name, nil
	}
}

// parseBackupName splits a backup file name into its timestamp and same-second sequence.
func parseBackupName(name string) (time.Time, int, error) {
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), backupExt)
	seq := 0
	if len(stamp) > len(backupLayout) {
		suffix, ok := strings.CutPrefix(stamp[len(backupLayout):], "_")
		n, err := strconv.Atoi(suffix)
		if !ok || err != nil {
			return time.Time{}, 0, fmt.Errorf("invalid backup name %q", name)
		}
		seq = n
		stamp = stamp[:len(backupLayout)]
	}
	created, err := time.ParseInLocation(backupLayout, stamp, time.Local)
	return created, seq, err
}

// Open opens the current workbook for reading.
func (a *Archive) Open() (*os.File, error) {
	f, err := os.Open(a.currentPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoWorkbook
	}
	return f, err
}

// Backups lists the retained backups, newest first.
func (a *Archive) Backups() ([]Backup, error) {
	entries, err := os.ReadDir(a.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Backup{}, nil
		}
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	backups := make([]Backup, 0)
	seqs := make(map[string]int)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		created, seq, err := parseBackupName(name)
		if err != nil {
			created, seq = info.ModTime(), 0
		}
		seqs[name] = seq
		backups = append(backups, Backup{
			Name:      name,
			Path:      filepath.Join(a.Dir, name),
			Size:      info.Size(),
			SizeLabel: FormatSize(info.Size()),
			CreatedAt: created,
		})
	}
	sort.Slice(backups, func(i, j int) bool {
		if !backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].CreatedAt.After(backups[j].CreatedAt)
		}
		return seqs[backups[i].Name] > seqs[backups[j].Name]
	})
	return backups, nil
}

// FormatSize renders a byte count as B, KB or MB with one decimal.
func FormatSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}

func copyTo(out *os.File, src string) error {
	in, err := os.Open(src)
	if err != nil {
		out.Close()
		return err
	}
	defer in.Close()

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
