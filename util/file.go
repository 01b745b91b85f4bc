package util

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
	_ "github.com/viant/afsc/s3"
)

// FileSystem resolves local paths as well as s3:// URLs for score and extraction inputs.
var FileSystem = afs.New()

func FileExists(ctx context.Context, filename string) (bool, error) {
	if filename == "" {
		return false, nil
	}
	return FileSystem.Exists(ctx, filename)
}

// NewWriter opens a writer at dest, creating parent folders as needed.
func NewWriter(ctx context.Context, dest string) (io.WriteCloser, error) {
	return FileSystem.NewWriter(ctx, dest, os.ModePerm)
}

func GetPathType(path string) string {
	if strings.HasPrefix(path, "s3://") {
		return "S3"
	}
	return "os"
}

// ReadLine returns a single line (without the ending \n)
// from the input buffered reader.
// Match matrices for long sequences easily exceed the 64K line limit of bufio.Scanner,
// so lines are assembled from ReadLine fragments instead.
func ReadLine(r *bufio.Reader) ([]byte, error) {
	var (
		isPrefix = true
		err      error
		line, ln []byte
	)
	for isPrefix && err == nil {
		line, isPrefix, err = r.ReadLine()
		ln = append(ln, line...)
	}
	return ln, err
}

// PathJoinSafe wrapper around filepath.Join to ensure that paths are correctly constructed
// if the path is a normal OS path, just use filepath.Join
// if the path is S3, trim any trailing slashes and construct it manually from the components
// so that double slashes (e.g. s3://) are preserved.
func PathJoinSafe(elem ...string) string {
	var path string

	switch GetPathType(elem[0]) {
	case "S3":
		basePath := strings.TrimSuffix(elem[0], "/")
		path = basePath + "/" + filepath.ToSlash(filepath.Join(elem[1:]...))
	default:
		path = filepath.Join(elem...)
	}
	return path
}
