package check

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// The pointer-bearing boundary lives in internal/capi alone. Everything else
// works in handles and byte slices, which is what keeps the bridge testable
// without a C toolchain.
func TestUnsafeConfinedToCAPI(t *testing.T) {
	cfg := &packages.Config{
		Mode: packages.NeedSyntax | packages.NeedFiles | packages.NeedName,
	}

	pkgs, err := packages.Load(cfg, "github.com/groupwire/mls-ffi-go/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	var findings []string

	for _, pkg := range pkgs {
		if strings.HasSuffix(pkg.PkgPath, "/internal/capi") {
			continue
		}
		for _, file := range pkg.Syntax {
			for _, imp := range file.Imports {
				path, err := strconv.Unquote(imp.Path.Value)
				if err != nil {
					continue
				}
				if path == "unsafe" || path == "C" {
					pos := pkg.Fset.Position(imp.Pos())
					findings = append(findings, fmt.Sprintf("%s: import %q outside internal/capi", pos, path))
				}
			}
		}
	}

	if len(findings) > 0 {
		t.Fatalf("boundary confinement violation:\n%s", strings.Join(findings, "\n"))
	}
}
