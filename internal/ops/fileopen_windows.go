//go:build windows

package ops

import "os"

// Windows has no O_NOFOLLOW; PathPolicy.Check has already refused symlinks.
func openNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}

func isSymlinkRefusal(error) bool { return false }
