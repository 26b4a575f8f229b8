package state

import (
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"testing/quick"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immune-gmbh/sgx-registration-agent/pkg/api"
)

func (State) Generate(rand *rand.Rand, size int) reflect.Value {
	s := NewState()
	if rand.Intn(2) == 1 {
		buf := make([]byte, rand.Intn(256))
		rand.Read(buf)
		s.RecordManifest(buf, "/tmp/manifest.bin", time.Unix(rand.Int63n(1<<32), 0))
	}
	if rand.Intn(2) == 1 {
		s.RecordOutcome(rand.Intn(2) == 1, api.RegistrationErrorCode(rand.Intn(256)), time.Unix(rand.Int63n(1<<32), 0))
	}
	return reflect.ValueOf(*s)
}

func TestSerializing(t *testing.T) {
	dir := t.TempDir()

	f := func(k State) bool {
		path := filepath.Join(dir, "state.json")

		if err := k.Store(path); err != nil {
			t.Logf("Store failed: %s", err)
			return false
		}

		kk, update, err := LoadState(path)
		if err != nil {
			t.Logf("Load failed: %s", err)
			return false
		}

		return !update && assert.Equal(t, k, *kk)
	}

	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestLoadMissing(t *testing.T) {
	_, _, err := LoadState(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestLoadInvalid(t *testing.T) {
	cases := []string{
		`not json`,
		`{"type": 1}`,
		`{"type": "client-state/3"}`,
		`{"keys": {}}`,
		`{"type": "sgxreg-state/1", "last_manifest": 3}`,
	}
	for _, c := range cases {
		path := filepath.Join(t.TempDir(), "state.json")
		require.NoError(t, os.WriteFile(path, []byte(c), 0600))

		_, _, err := LoadState(path)
		assert.ErrorIs(t, err, ErrInvalid, c)
	}
}

func TestMigrateUntyped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"last_manifest":{"sha256":"ab01","size":10,"time":"2021-06-23T10:00:00Z"}}`), 0600))

	st, update, err := LoadState(path)
	require.NoError(t, err)
	assert.True(t, update)
	assert.Equal(t, ClientStateType, st.Ty)
	require.NotNil(t, st.LastManifest)
	assert.Equal(t, api.Buffer{0xab, 0x01}, st.LastManifest.SHA256)
	assert.Equal(t, 10, st.LastManifest.Size)
	assert.Nil(t, st.LastOutcome)
}

func TestRecordManifest(t *testing.T) {
	st := NewState()
	now := time.Date(2021, 6, 23, 12, 0, 0, 0, time.FixedZone("CEST", 7200))
	st.RecordManifest([]byte("abc"), "out.bin", now)

	require.NotNil(t, st.LastManifest)
	assert.Equal(t, 3, st.LastManifest.Size)
	assert.Equal(t, "out.bin", st.LastManifest.Path)
	assert.Equal(t, time.UTC, st.LastManifest.Time.Location())
	assert.Len(t, st.LastManifest.SHA256, 32)
}

func TestDefaultStateDir(t *testing.T) {
	assert.Equal(t, "/var/lib/sgx-registration", DefaultStateDir())
}
