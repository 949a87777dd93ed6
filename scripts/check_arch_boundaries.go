package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const modulePrefix = "auditctl/internal/"

// allowed maps a source package to the internal packages it may import.
var allowed = map[string]map[string]bool{
	"cli": {
		"api":      true,
		"logging":  true,
		"model":    true,
		"poller":   true,
		"settings": true,
		"stubapi":  true,
		"version":  true,
	},
	"poller":   {"model": true},
	"api":      {"model": true, "version": true},
	"stubapi":  {"model": true},
	"settings": {},
	"logging":  {},
	"model":    {},
	"version":  {},
	"cmd":      {"cli": true, "logging": true, "settings": true},
}

// exclusive lists third-party imports reserved to the given packages.
var exclusive = map[string]map[string]bool{
	"github.com/charmbracelet/": {"cli": true},
	"github.com/gofiber/":       {"stubapi": true},
	"github.com/gofrs/flock":    {"settings": true},
}

func main() {
	violations := []string{}

	for _, root := range []string{"internal", "cmd"} {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return nil
			}
			if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			vs, err := checkFile(path)
			if err != nil {
				return err
			}
			violations = append(violations, vs...)
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "boundary walk failed: %v\n", err)
			os.Exit(1)
		}
	}

	if len(violations) > 0 {
		sort.Strings(violations)
		fmt.Fprintln(os.Stderr, "architecture boundary violations detected:")
		for _, v := range violations {
			fmt.Fprintf(os.Stderr, "- %s\n", v)
		}
		os.Exit(1)
	}

	fmt.Println("architecture boundary check: OK")
}

func checkFile(path string) ([]string, error) {
	srcPkg := sourcePackage(path)
	if srcPkg == "" {
		return nil, nil
	}
	allowMap, ok := allowed[srcPkg]
	if !ok {
		return []string{fmt.Sprintf("%s: unknown source package %q", path, srcPkg)}, nil
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, imp := range file.Imports {
		impPath := strings.Trim(imp.Path.Value, "\"")
		if tgtPkg, ok := targetPackage(impPath); ok {
			if tgtPkg != srcPkg && !allowMap[tgtPkg] {
				out = append(out, fmt.Sprintf("%s: %s -> %s is forbidden", path, srcPkg, tgtPkg))
			}
			continue
		}
		for prefix, owners := range exclusive {
			if strings.HasPrefix(impPath, prefix) && !owners[srcPkg] {
				out = append(out, fmt.Sprintf("%s: %s may not import %s", path, srcPkg, impPath))
			}
		}
	}
	return out, nil
}

func sourcePackage(path string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) < 2 {
		return ""
	}
	switch parts[0] {
	case "internal":
		return parts[1]
	case "cmd":
		return "cmd"
	default:
		return ""
	}
}

func targetPackage(importPath string) (string, bool) {
	if !strings.HasPrefix(importPath, modulePrefix) {
		return "", false
	}
	rest := strings.TrimPrefix(importPath, modulePrefix)
	if rest == "" {
		return "", false
	}
	parts := strings.Split(rest, "/")
	return parts[0], true
}
