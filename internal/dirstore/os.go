package dirstore

import (
	"io/fs"
	"os"
	"path/filepath"
)

// OS is an FS on the local disk.
type OS struct {
	DirPerm  os.FileMode
	FilePerm os.FileMode
}

func (o OS) dirPerm() os.FileMode {
	if o.DirPerm == 0 {
		return 0o755
	}
	return o.DirPerm
}

func (o OS) filePerm() os.FileMode {
	if o.FilePerm == 0 {
		return 0o644
	}
	return o.FilePerm
}

func (o OS) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(filepath.FromSlash(name))
}

func (o OS) ReadDir(name string) ([]fs.FileInfo, error) {
	entries, err := os.ReadDir(filepath.FromSlash(name))
	if err != nil {
		return nil, err
	}
	infos := make([]fs.FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (o OS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(filepath.FromSlash(name))
}

func (o OS) WriteFile(name string, data []byte) error {
	return os.WriteFile(filepath.FromSlash(name), data, o.filePerm())
}

func (o OS) Rename(oldname, newname string) error {
	return os.Rename(filepath.FromSlash(oldname), filepath.FromSlash(newname))
}

func (o OS) Mkdir(name string) error {
	return os.Mkdir(filepath.FromSlash(name), o.dirPerm())
}

func (o OS) MkdirAll(name string) error {
	return os.MkdirAll(filepath.FromSlash(name), o.dirPerm())
}

func (o OS) Remove(name string) error {
	return os.Remove(filepath.FromSlash(name))
}

var _ FS = OS{}
