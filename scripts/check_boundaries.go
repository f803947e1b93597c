package main

import (
	"flag"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const modulePath = "govledger"

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

// layerRule lists what a layer of a context module may import besides the
// standard library. Paths starting with "./" are relative to the module's
// own directory.
type layerRule struct {
	allowed   []string
	forbidden map[string]string
}

var layerRules = map[string]layerRule{
	"domain": {
		allowed: []string{
			"./domain",
			// Encoding and hashing libraries the record layout depends on.
			"github.com/mr-tron/base58",
			"golang.org/x/crypto/blake2b",
		},
		forbidden: map[string]string{
			"/adapters/":              "domain must not import adapters",
			modulePath + "/internal/": "domain must not import runtime infrastructure",
		},
	},
	"ports": {
		allowed: []string{"./domain", modulePath + "/contracts"},
		forbidden: map[string]string{
			"/adapters/":    "ports must not import adapters",
			"/application/": "ports must not import application code",
		},
	},
	"application": {
		allowed: []string{"./application", "./domain", "./ports", modulePath + "/contracts"},
		forbidden: map[string]string{
			"/adapters/":              "application must not import adapters",
			modulePath + "/internal/": "application must not import runtime infrastructure",
		},
	},
	"transport": {
		allowed: []string{"./transport"},
	},
}

func main() {
	root := flag.String("root", "contexts", "directory holding context modules")
	flag.Parse()

	violations := collectViolations(*root)
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}

	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

// collectViolations walks contexts/<context>/<module>/<layer>/... and checks
// every non-test file against its layer rule.
func collectViolations(root string) []violation {
	var violations []violation

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) < 3 {
			return nil
		}
		modulePrefix := fmt.Sprintf("%s/contexts/%s/%s", modulePath, parts[0], parts[1])
		layer := ""
		if len(parts) > 3 {
			layer = parts[2]
		}

		violations = append(violations, checkFile(path, filepath.ToSlash(path), layer, modulePrefix)...)
		return nil
	})

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].File != violations[j].File {
			return violations[i].File < violations[j].File
		}
		if violations[i].Line != violations[j].Line {
			return violations[i].Line < violations[j].Line
		}
		return violations[i].Import < violations[j].Import
	})
	return violations
}

func checkFile(path string, displayPath string, layer string, modulePrefix string) []violation {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return []violation{{File: displayPath, Line: 1, Rule: "file must parse"}}
	}

	var violations []violation
	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, "\"")
		line := fset.Position(imp.Pos()).Line
		for _, rule := range checkImport(importPath, layer, modulePrefix) {
			violations = append(violations, violation{
				File:   displayPath,
				Line:   line,
				Import: importPath,
				Rule:   rule,
			})
		}
	}
	return violations
}

// checkImport returns the rules importPath breaks when imported from layer
// of the module rooted at modulePrefix.
func checkImport(importPath string, layer string, modulePrefix string) []string {
	var broken []string
	if hasPrefix(importPath, modulePath+"/contexts") && !hasPrefix(importPath, modulePrefix) {
		broken = append(broken, "cross-module imports are forbidden")
	}

	rule, ok := layerRules[layer]
	if !ok || isStdlib(importPath) {
		return broken
	}

	forbidden := make([]string, 0, len(rule.forbidden))
	for fragment := range rule.forbidden {
		forbidden = append(forbidden, fragment)
	}
	sort.Strings(forbidden)
	for _, fragment := range forbidden {
		if strings.Contains(importPath, fragment) || strings.HasPrefix(importPath, fragment) {
			broken = append(broken, rule.forbidden[fragment])
		}
	}

	allowed := make([]string, 0, len(rule.allowed))
	for _, prefix := range rule.allowed {
		if strings.HasPrefix(prefix, "./") {
			prefix = modulePrefix + "/" + strings.TrimPrefix(prefix, "./")
		}
		allowed = append(allowed, prefix)
	}
	if !isAllowed(importPath, allowed) {
		broken = append(broken, layer+" import is outside explicit allowlist")
	}
	return broken
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isAllowed(importPath string, allowedPrefixes []string) bool {
	for _, p := range allowedPrefixes {
		if hasPrefix(importPath, p) {
			return true
		}
	}
	return false
}

func isStdlib(importPath string) bool {
	if hasPrefix(importPath, modulePath) {
		return false
	}
	first := importPath
	if idx := strings.Index(first, "/"); idx != -1 {
		first = first[:idx]
	}
	return !strings.Contains(first, ".")
}
