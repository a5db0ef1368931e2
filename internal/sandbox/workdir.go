package sandbox

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// shareWorkDir makes dir and everything under it usable by the container
// user uid:gid. A root worker hands the tree over with chown and keeps it
// private; otherwise permission bits are widened so the unprivileged
// container user can read sources and write build outputs.
func shareWorkDir(dir string, uid, gid uint32) error {
	if os.Geteuid() == 0 {
		return chownTree(dir, uid, gid)
	}
	return openTree(dir)
}

func chownTree(dir string, uid, gid uint32) error {
	return filepath.WalkDir(dir, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := os.Lchown(path, int(uid), int(gid)); err != nil {
			return fmt.Errorf("chown %s: %w", path, err)
		}
		return nil
	})
}

// openTree sets directories to 0777 and makes files readable by everyone,
// executable by everyone when the owner may execute them.
func openTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		mode := info.Mode().Perm()
		switch {
		case d.IsDir():
			mode = 0o777
		case mode&0o100 != 0:
			mode |= 0o755
		default:
			mode |= 0o644
		}
		if err := os.Chmod(path, mode); err != nil { // #nosec G302 -- the container user is not the file owner
			return fmt.Errorf("chmod %s: %w", path, err)
		}
		return nil
	})
}
