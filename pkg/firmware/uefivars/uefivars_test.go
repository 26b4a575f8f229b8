package uefivars

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scenario struct {
	Guid  uuid.UUID
	Fs    afero.Fs
	Store *Store
}

type WithAttributes struct {
	Value Attributes
}

type WithContents struct {
	Value []byte
}

type WithRaw struct {
	Value []byte
}

func setupUefiVariables(t *testing.T, fs afero.Fs) scenario {
	root := "/sys/firmware/efi/efivars"
	if _, ok := fs.(*afero.OsFs); ok {
		root = t.TempDir()
	}
	require.NoError(t, fs.MkdirAll(root, 0755))

	return scenario{
		Guid:  uuid.New(),
		Fs:    fs,
		Store: NewStore(fs, root),
	}
}

func (s *scenario) setupUefiVariable(t *testing.T, name string, opts ...interface{}) string {
	attrs := DefaultAttributes
	var buf []byte
	var raw []byte

	for _, opt := range opts {
		switch o := opt.(type) {
		case WithAttributes:
			attrs = o.Value
		case WithContents:
			buf = o.Value
		case WithRaw:
			raw = o.Value
		}
	}

	if raw == nil {
		raw = make([]byte, AttributesSize, AttributesSize+len(buf))
		binary.LittleEndian.PutUint32(raw, uint32(attrs))
		raw = append(raw, buf...)
	}

	varName := VariableName(name, s.Guid)
	require.NoError(t, afero.WriteFile(s.Fs, s.Store.Path(varName), raw, 0644))
	return varName
}

func (s *scenario) raw(t *testing.T, varName string) []byte {
	buf, err := afero.ReadFile(s.Fs, s.Store.Path(varName))
	require.NoError(t, err)
	return buf
}

func TestVariableName(t *testing.T) {
	guid := uuid.MustParse("8be4df61-93ca-11d2-aa0d-00e098032b8c")
	assert.Equal(t, "ConOut-8be4df61-93ca-11d2-aa0d-00e098032b8c", VariableName("ConOut", guid))
}

func TestReadVar(t *testing.T) {
	buf := []byte{'t', 'e', 's', 't'}

	sc := setupUefiVariables(t, afero.NewMemMapFs())
	name := sc.setupUefiVariable(t, "TestVar", WithContents{Value: buf})

	val, err := sc.Store.Read(name)
	require.NoError(t, err)
	assert.Equal(t, buf, val)
}

func TestReadNonExistent(t *testing.T) {
	sc := setupUefiVariables(t, afero.NewMemMapFs())

	_, err := sc.Store.Read(VariableName("FooVar", sc.Guid))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrIO)
}

func TestReadEmpty(t *testing.T) {
	sc := setupUefiVariables(t, afero.NewMemMapFs())
	name := sc.setupUefiVariable(t, "Empty", WithRaw{Value: []byte{}})

	_, err := sc.Store.Read(name)
	assert.ErrorIs(t, err, ErrIO)
}

func TestReadTruncatedHeader(t *testing.T) {
	sc := setupUefiVariables(t, afero.NewMemMapFs())
	name := sc.setupUefiVariable(t, "Short", WithRaw{Value: []byte{7, 0}})

	_, err := sc.Store.Read(name)
	assert.ErrorIs(t, err, ErrIO)
}

func TestReadHeaderOnly(t *testing.T) {
	sc := setupUefiVariables(t, afero.NewMemMapFs())
	name := sc.setupUefiVariable(t, "HeaderOnly")

	val, err := sc.Store.Read(name)
	require.NoError(t, err)
	assert.Empty(t, val)
}

func TestReadNoPermission(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file modes")
	}

	sc := setupUefiVariables(t, afero.NewOsFs())
	name := sc.setupUefiVariable(t, "Locked", WithContents{Value: []byte{1}})
	require.NoError(t, os.Chmod(sc.Store.Path(name), 0))

	_, err := sc.Store.Read(name)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestAttributes(t *testing.T) {
	sc := setupUefiVariables(t, afero.NewMemMapFs())
	name := sc.setupUefiVariable(t, "Attrs", WithAttributes{Value: BootServiceAccess | RuntimeAccess})

	attrs, err := sc.Store.Attributes(name)
	require.NoError(t, err)
	assert.Equal(t, BootServiceAccess|RuntimeAccess, attrs)
}

func TestWriteExisting(t *testing.T) {
	sc := setupUefiVariables(t, afero.NewMemMapFs())
	name := sc.setupUefiVariable(t, "Status", WithContents{Value: []byte{0, 0, 0, 0}})

	n, err := sc.Store.Write(name, []byte{1, 2, 3, 4}, false)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{7, 0, 0, 0, 1, 2, 3, 4}, sc.raw(t, name))
}

func TestWriteAbsentWithoutCreate(t *testing.T) {
	sc := setupUefiVariables(t, afero.NewMemMapFs())
	name := VariableName("Missing", sc.Guid)

	_, err := sc.Store.Write(name, []byte{1}, false)
	assert.ErrorIs(t, err, ErrIO)

	exists, err := afero.Exists(sc.Fs, sc.Store.Path(name))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWriteCreate(t *testing.T) {
	sc := setupUefiVariables(t, afero.NewOsFs())
	name := VariableName("Response", sc.Guid)

	n, err := sc.Store.Write(name, []byte{0xaa, 0xbb}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{7, 0, 0, 0, 0xaa, 0xbb}, sc.raw(t, name))

	val, err := sc.Store.Read(name)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa, 0xbb}, val)
}

func TestWriteOverwriteOnDisk(t *testing.T) {
	sc := setupUefiVariables(t, afero.NewOsFs())
	name := sc.setupUefiVariable(t, "Status", WithContents{Value: []byte{1, 0, 3, 0, 0, 0, 0}})

	n, err := sc.Store.Write(name, []byte{1, 0, 3, 0, 1, 0, 0}, false)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	val, err := sc.Store.Read(name)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 3, 0, 1, 0, 0}, val)
}

func TestWriteVolatileDenied(t *testing.T) {
	sc := setupUefiVariables(t, afero.NewMemMapFs())
	orig := []byte{9, 9, 9}
	name := sc.setupUefiVariable(t, "Volatile",
		WithAttributes{Value: BootServiceAccess | RuntimeAccess},
		WithContents{Value: orig})
	before := sc.raw(t, name)

	n, err := sc.Store.Write(name, []byte{1, 2, 3}, true)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Zero(t, n)
	assert.Equal(t, before, sc.raw(t, name))
}

func TestWriteCorruptHeader(t *testing.T) {
	sc := setupUefiVariables(t, afero.NewMemMapFs())
	name := sc.setupUefiVariable(t, "Corrupt", WithRaw{Value: []byte{1}})

	_, err := sc.Store.Write(name, []byte{1, 2, 3}, false)
	assert.ErrorIs(t, err, ErrIO)
}

func TestResolveOsFile(t *testing.T) {
	dir := t.TempDir()
	base := afero.NewBasePathFs(afero.NewOsFs(), dir)
	require.NoError(t, afero.WriteFile(base, "/x", []byte{1}, 0644))

	f, err := base.Open("/x")
	require.NoError(t, err)
	defer f.Close()

	osFile, ok := resolveOsFile(f)
	assert.True(t, ok)
	assert.NotNil(t, osFile)

	mf, err := afero.NewMemMapFs().Create("/y")
	require.NoError(t, err)
	_, ok = resolveOsFile(mf)
	assert.False(t, ok)
}

func TestStoreExists(t *testing.T) {
	sc := setupUefiVariables(t, afero.NewMemMapFs())
	assert.True(t, sc.Store.Exists())
	assert.False(t, NewStore(sc.Fs, "/nonexistent").Exists())
	assert.Equal(t, DefaultRoot, DefaultStore("").Root())
}
