package migration

import (
	"bytes"
	"io"
	"io/fs"
	"strings"
)

// expandedFS serves migration files with ${NAME} placeholders replaced.
// Directories and file metadata pass through unchanged.
type expandedFS struct {
	base     fs.FS
	replacer *strings.Replacer
}

// Expand wraps base so that every ${key} in a file body is replaced by its value.
func Expand(base fs.FS, vars map[string]string) fs.FS {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "${"+k+"}", v)
	}
	return &expandedFS{base: base, replacer: strings.NewReplacer(pairs...)}
}

func (e *expandedFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return fs.ReadDir(e.base, name)
}

func (e *expandedFS) Open(name string) (fs.File, error) {
	f, err := e.base.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		return f, nil
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, &fs.PathError{Op: "read", Path: name, Err: err}
	}
	body := []byte(e.replacer.Replace(string(raw)))
	return &expandedFile{Reader: bytes.NewReader(body), info: expandedInfo{FileInfo: info, size: int64(len(body))}}, nil
}

type expandedFile struct {
	*bytes.Reader
	info expandedInfo
}

func (f *expandedFile) Stat() (fs.FileInfo, error) { return f.info, nil }

func (f *expandedFile) Close() error { return nil }

type expandedInfo struct {
	fs.FileInfo
	size int64
}

func (i expandedInfo) Size() int64 { return i.size }
