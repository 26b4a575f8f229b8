package util

import (
	"bytes"
	"crypto/sha256"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

func SHA256(buf []byte) []byte {
	h := sha256.Sum256(buf)
	return h[:]
}

func SHA256File(file string) ([]byte, error) {
	s, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return SHA256(s), nil
}

func ZStd(buf []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer encoder.Close()
	return encoder.EncodeAll(buf, make([]byte, 0, len(buf))), nil
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// IsZStd reports whether buf starts with a zstd frame.
func IsZStd(buf []byte) bool {
	return bytes.HasPrefix(buf, zstdMagic)
}

func UnZStd(buf []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()
	return decoder.DecodeAll(buf, nil)
}

// WriteFileAtomic writes buf to a temporary file next to file and renames it
// into place.
func WriteFileAtomic(file string, buf []byte, perm os.FileMode) error {
	tmp := file + ".new"
	if err := os.WriteFile(tmp, buf, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, file); err != nil {
		log.Debug().Err(err).Msg("util.WriteFileAtomic()")
		os.Remove(tmp)
		return err
	}
	return nil
}
