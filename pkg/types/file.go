package types

import (
	"fmt"
	"path"
	"strings"
)

// File is a named code or data artifact shipped to the sandbox alongside a
// RUN_FUNCTION invocation. Paths are always relative to the sandbox
// working directory.
type File struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Validate rejects absolute and escaping paths before anything is handed
// to the sandbox.
func (f *File) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("file name is empty")
	}
	if path.IsAbs(f.Name) {
		return fmt.Errorf("file path %q is not relative", f.Name)
	}
	for _, part := range strings.Split(f.Name, "/") {
		if part == ".." {
			return fmt.Errorf("file path %q is suspicious (`..` found)", f.Name)
		}
	}
	return nil
}

// ModuleName strips a trailing .py extension, yielding the importable
// module name for the sandbox harness.
func (f *File) ModuleName() string {
	return strings.TrimSuffix(f.Name, ".py")
}

// FileFromValue decodes a JSON-shaped value into a File. Socket data for
// FILE-typed sockets arrives as {"name": ..., "content": ...}.
func FileFromValue(v interface{}) (*File, bool) {
	switch val := v.(type) {
	case *File:
		return val, true
	case File:
		return &val, true
	case map[string]interface{}:
		name, nameOK := val["name"].(string)
		content, contentOK := val["content"].(string)
		if !nameOK || !contentOK {
			return nil, false
		}
		return &File{Name: name, Content: content}, true
	default:
		return nil, false
	}
}
