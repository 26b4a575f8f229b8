package state

import "path/filepath"

const (
	// globalProgramStateDir stores programatically generated state
	globalProgramStateDir string = "/var/lib"
)

func DefaultStateDir() string {
	return filepath.Clean(filepath.Join(globalProgramStateDir, DefaultVendorSubdir))
}
