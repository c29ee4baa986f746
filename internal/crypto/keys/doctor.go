package keys

import (
	"fmt"
	"os"
	"runtime"
)

// CheckKeys validates that the key file exists and, on unix, carries mode
// 0600. Mirrors scout-crypto/src/doctor.rs::check_keys.
func CheckKeys(cfg Config) error {
	info, err := os.Stat(cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("crypto.key_path missing: %s", cfg.KeyPath)
	}
	if runtime.GOOS == "windows" {
		return nil
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		return fmt.Errorf("key permissions should be 0600, got %o", mode)
	}
	return nil
}
