// Package uefivars reads and writes firmware variables exposed by efivarfs.
//
// Every variable file starts with a 4 byte little-endian attribute word
// followed by the variable data. Write is the only place in the agent that
// mutates state outside of the process: it may clear the immutable inode
// flag the kernel sets on efivarfs files and it creates variable files with
// mode 0644.
package uefivars

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

// DefaultRoot is the usual efivarfs mount point.
const DefaultRoot = "/sys/firmware/efi/efivars"

// Attributes is the EFI_VARIABLE_* attribute word stored in front of every variable.
type Attributes uint32

// Attribute bits. Only NonVolatile variables are writable by the agent.
const (
	NonVolatile       Attributes = 0x00000001
	BootServiceAccess Attributes = 0x00000002
	RuntimeAccess     Attributes = 0x00000004

	DefaultAttributes = NonVolatile | BootServiceAccess | RuntimeAccess
)

// AttributesSize is the length of the attribute prefix of every variable file.
const AttributesSize = 4

// VariableError is the kind of a failed store access, match it with errors.Is.
type VariableError string

func (e VariableError) Error() string {
	return string(e)
}

const (
	ErrNotFound         = VariableError("variable not found") // no such variable file
	ErrPermissionDenied = VariableError("permission denied")  // refused by the OS or the attribute word
	ErrIO               = VariableError("variable i/o error") // everything else, including truncated files
)

// VariableName returns the efivarfs file name of a variable.
func VariableName(name string, vendor uuid.UUID) string {
	return fmt.Sprintf("%s-%s", name, vendor)
}

// Store is a directory of variable files, normally the efivarfs mount point.
type Store struct {
	fs   afero.Fs
	root string
}

// NewStore returns a store for the variable files below root on fs.
func NewStore(fs afero.Fs, root string) *Store {
	return &Store{fs: fs, root: root}
}

// DefaultStore uses the real file system below root, or DefaultRoot if root is empty.
func DefaultStore(root string) *Store {
	if root == "" {
		root = DefaultRoot
	}
	return NewStore(afero.NewOsFs(), root)
}

func (s *Store) Root() string {
	return s.root
}

// Path returns the file path of the variable name.
func (s *Store) Path(name string) string {
	return path.Join(s.root, name)
}

// Exists reports whether the store root is present at all.
func (s *Store) Exists() bool {
	st, err := s.fs.Stat(s.root)
	return err == nil && st.IsDir()
}

func classify(op, name string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("efivars/%s(%s): %w", op, name, ErrNotFound)
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EPERM):
		return fmt.Errorf("efivars/%s(%s): %w: %w", op, name, ErrPermissionDenied, err)
	default:
		return fmt.Errorf("efivars/%s(%s): %w: %w", op, name, ErrIO, err)
	}
}

// Read returns the data of a variable without the attribute prefix.
// A variable that does not exist yields ErrNotFound.
func (s *Store) Read(name string) ([]byte, error) {
	log.Trace().Str("variable", name).Msg("uefivars.Read()")

	f, err := s.fs.Open(s.Path(name))
	if err != nil {
		return nil, classify("read", name, err)
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, classify("read", name, err)
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("efivars/read(%s): zero length read: %w", name, ErrIO)
	}
	if len(buf) < AttributesSize {
		return nil, fmt.Errorf("efivars/read(%s): %d bytes is shorter than the attribute header: %w", name, len(buf), ErrIO)
	}

	data := buf[AttributesSize:]
	log.Trace().Str("variable", name).Int("size", len(data)).Msg("read variable")
	return data, nil
}

// Attributes reads only the attribute prefix of a variable.
func (s *Store) Attributes(name string) (Attributes, error) {
	f, err := s.fs.Open(s.Path(name))
	if err != nil {
		return 0, classify("attributes", name, err)
	}
	defer f.Close()

	var hdr [AttributesSize]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return 0, fmt.Errorf("efivars/attributes(%s): %w: %w", name, ErrIO, err)
	}
	return Attributes(binary.LittleEndian.Uint32(hdr[:])), nil
}

// Write replaces the data of a variable. If the variable does not exist it is
// only created when createIfAbsent is set, otherwise ErrIO is returned.
// Existing variables must carry the non-volatile attribute or the write is
// refused with ErrPermissionDenied before anything is touched. The attribute
// prefix and data are written with a single write call, which efivarfs
// treats as a complete SetVariable(). The returned count excludes the prefix.
func (s *Store) Write(name string, data []byte, createIfAbsent bool) (int, error) {
	log.Trace().Str("variable", name).Int("size", len(data)).Msg("uefivars.Write()")
	p := s.Path(name)

	exists := true
	attrs, err := s.Attributes(name)
	switch {
	case errors.Is(err, ErrNotFound):
		if !createIfAbsent {
			return 0, fmt.Errorf("efivars/write(%s): variable does not exist: %w", name, ErrIO)
		}
		exists = false
	case err != nil:
		return 0, err
	case attrs&NonVolatile == 0:
		log.Debug().Str("variable", name).Msgf("refusing to write variable with attributes %#x", uint32(attrs))
		return 0, fmt.Errorf("efivars/write(%s): variable is not non-volatile: %w", name, ErrPermissionDenied)
	}

	if exists {
		if err := s.clearImmutable(p); err != nil {
			return 0, classify("write", name, err)
		}
	}

	flags := os.O_WRONLY
	if !exists {
		flags |= os.O_CREATE
	}
	f, err := s.fs.OpenFile(p, flags, 0644)
	if err != nil {
		return 0, classify("write", name, err)
	}

	buf := make([]byte, AttributesSize+len(data))
	binary.LittleEndian.PutUint32(buf, uint32(DefaultAttributes))
	copy(buf[AttributesSize:], data)

	n, err := f.Write(buf)
	err = multierr.Append(err, f.Close())
	if err != nil {
		return 0, classify("write", name, err)
	}
	if n != len(buf) {
		return 0, fmt.Errorf("efivars/write(%s): short write of %d/%d bytes: %w", name, n, len(buf), ErrIO)
	}

	return n - AttributesSize, nil
}

func (s *Store) clearImmutable(p string) (err error) {
	f, err := s.fs.Open(p)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, f.Close()) }()

	osFile, ok := resolveOsFile(f)
	if !ok {
		// flags are a property of real inodes, nothing to do for in-memory files
		return nil
	}
	return clearImmutableFlag(osFile)
}

func resolveOsFile(f afero.File) (*os.File, bool) {
	for {
		if baseFile, ok := f.(*afero.BasePathFile); ok {
			f = baseFile.File
			continue
		}
		break
	}

	o, ok := f.(*os.File)
	return o, ok
}
