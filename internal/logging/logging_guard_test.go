package logging

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// Progress for the user goes through the console printer and diagnostics
// through slog; nothing in these trees may print on its own.
var printingRoots = []string{"cmd/prompter", "internal/launcher", "internal/driver", "internal/command", "internal/historydb", "internal/desktop"}

var bannedCalls = map[string]map[string]bool{
	"fmt": {"Print": true, "Printf": true, "Println": true, "Fprint": true, "Fprintf": true, "Fprintln": true},
	"log": {"Print": true, "Printf": true, "Println": true, "Fatal": true, "Fatalf": true, "Fatalln": true},
}

func TestNoDirectPrintingOutsideConsole(t *testing.T) {
	fset := token.NewFileSet()
	var violations []string

	for _, root := range printingRoots {
		walkRoot := filepath.Join("..", "..", root)
		err := filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			file, err := parser.ParseFile(fset, path, nil, 0)
			if err != nil {
				return err
			}
			ast.Inspect(file, func(n ast.Node) bool {
				call, ok := n.(*ast.CallExpr)
				if !ok {
					return true
				}
				if name := printCall(call); name != "" {
					pos := fset.Position(call.Pos())
					violations = append(violations, fmt.Sprintf("%s:%d: %s", filepath.ToSlash(pos.Filename), pos.Line, name))
				}
				return true
			})
			return nil
		})
		if err != nil {
			t.Fatalf("scan %s: %v", root, err)
		}
	}

	if len(violations) > 0 {
		sort.Strings(violations)
		t.Fatalf("found direct printing:\n%s", strings.Join(violations, "\n"))
	}
}

func printCall(call *ast.CallExpr) string {
	switch fn := call.Fun.(type) {
	case *ast.Ident:
		if fn.Name == "print" || fn.Name == "println" {
			return fn.Name
		}
	case *ast.SelectorExpr:
		pkg, ok := fn.X.(*ast.Ident)
		if ok && bannedCalls[pkg.Name][fn.Sel.Name] {
			return pkg.Name + "." + fn.Sel.Name
		}
	}
	return ""
}
