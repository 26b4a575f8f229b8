//go:build !windows

package util

import (
	"bufio"
	"os"
	"strings"
)

const procModules = "/proc/modules"

func IsRoot() (bool, error) {
	return os.Geteuid() == 0, nil
}

// IsKernelModuleLoaded checks /proc/modules for name.
func IsKernelModuleLoaded(name string) (bool, error) {
	return isModuleListed(procModules, name)
}

func isModuleListed(path, name string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 && fields[0] == name {
			return true, nil
		}
	}
	return false, scanner.Err()
}
