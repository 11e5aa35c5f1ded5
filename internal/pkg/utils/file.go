package utils

import (
	"path/filepath"
	"strings"
)

// SupportedExt checks if file extension is in the allowed list.
// Empty list allows any file
func SupportedExt(name string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if strings.ToLower(a) == ext {
			return true
		}
	}
	return false
}

// CleanFileName drops any directory part from the uploaded file name
func CleanFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	res := filepath.Base(name)
	if res == "." || res == "/" || res == ".." {
		return ""
	}
	return res
}

