package msr

import (
	"github.com/fearful-symmetry/gomsr"
)

func platformReadMSR(core uint32, msr uint32) (uint64, error) {
	return gomsr.ReadMSR(int(core), int64(msr))
}
