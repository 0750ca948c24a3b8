package runstore

import "os"

// IsFile reports whether p resolves to a regular file. Any error, including
// permission problems, counts as false.
func IsFile(p string) bool {
	if p == "" {
		return false
	}
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// IsDir reports whether p resolves to a directory, following symlinks.
func IsDir(p string) bool {
	if p == "" {
		return false
	}
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// Exists reports whether any filesystem entry sits at p. A dangling symlink
// counts as present.
func Exists(p string) bool {
	if p == "" {
		return false
	}
	_, err := os.Lstat(p)
	return err == nil
}

// SameEntry reports whether a and b resolve to the same file or directory.
func SameEntry(a, b string) bool {
	ia, err := os.Stat(a)
	if err != nil {
		return false
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ia, ib)
}
