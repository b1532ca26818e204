package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

const modulePrefix = "ex-augmenter/"

type listedPackage struct {
	ImportPath   string
	Imports      []string
	TestImports  []string
	XTestImports []string
}

func main() {
	packages, err := listPackages()
	if err != nil {
		fmt.Fprintf(os.Stderr, "arch-check: %v\n", err)
		os.Exit(1)
	}

	violations := collectViolations(packages)
	if len(violations) == 0 {
		_, _ = fmt.Fprintf(os.Stdout, "arch-check: passed\n")
		return
	}

	_, _ = fmt.Fprintf(os.Stdout, "arch-check: architecture violations:\n")
	for _, violation := range violations {
		_, _ = fmt.Fprintf(os.Stdout, "  - %s\n", violation)
	}
	os.Exit(1)
}

func listPackages() ([]listedPackage, error) {
	cmd := exec.Command("go", "list", "-json", "-test", "./...")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("go list -json -test ./...: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(stdout.Bytes()))
	result := make([]listedPackage, 0, 64)
	for {
		var pkg listedPackage
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode go list output: %w", err)
		}
		if pkg.ImportPath == "" {
			continue
		}
		result = append(result, pkg)
	}

	return result, nil
}

func collectViolations(packages []listedPackage) []string {
	found := make(map[string]struct{})

	for _, pkg := range packages {
		imports := append([]string{}, pkg.Imports...)
		imports = append(imports, pkg.TestImports...)
		imports = append(imports, pkg.XTestImports...)

		for _, imported := range imports {
			reason := violationReason(pkg.ImportPath, imported)
			if reason == "" {
				continue
			}
			entry := fmt.Sprintf("%s -> %s (%s)", pkg.ImportPath, imported, reason)
			found[entry] = struct{}{}
		}
	}

	violations := make([]string, 0, len(found))
	for violation := range found {
		violations = append(violations, violation)
	}
	sort.Strings(violations)

	return violations
}

// layerRule forbids importers under one prefix from importing another prefix.
type layerRule struct {
	importer string
	imported string
	// allowed lists imported prefixes exempt from the rule.
	allowed []string
}

var layerRules = []layerRule{
	{importer: "pkg/", imported: "internal/"},
	{importer: "pkg/", imported: "modules/"},
	{importer: "pkg/", imported: "cmd/"},
	{importer: "modules/", imported: "internal/"},
	{importer: "modules/", imported: "cmd/"},
	{importer: "modules/", imported: "modules/"},
	{importer: "internal/kernel", imported: "internal/", allowed: []string{"internal/kernel"}},
	{importer: "internal/store", imported: "internal/", allowed: []string{"internal/store"}},
	{importer: "internal/store", imported: "modules/"},
	{importer: "internal/httpapi", imported: "internal/driver"},
	{importer: "internal/httpapi", imported: "internal/kernel"},
	{importer: "internal/", imported: "modules/"},
	{importer: "internal/", imported: "cmd/"},
}

func violationReason(importer, imported string) string {
	if !strings.HasPrefix(imported, modulePrefix) || !strings.HasPrefix(importer, modulePrefix) {
		return ""
	}
	from := strings.TrimPrefix(importer, modulePrefix)
	to := strings.TrimPrefix(imported, modulePrefix)

	for _, rule := range layerRules {
		if !strings.HasPrefix(from, rule.importer) || !strings.HasPrefix(to, rule.imported) {
			continue
		}
		if rule.importer == "modules/" && rule.imported == "modules/" && packageRoot(from) == packageRoot(to) {
			continue
		}
		if hasAnyPrefix(to, rule.allowed) {
			continue
		}
		return fmt.Sprintf("%s* must not import %s*", rule.importer, rule.imported)
	}

	return ""
}

// packageRoot returns the first two path elements, e.g. modules/related.
func packageRoot(path string) string {
	parts := strings.SplitN(path, "/", 3)
	if len(parts) < 2 {
		return path
	}

	return parts[0] + "/" + parts[1]
}

func hasAnyPrefix(value string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}

	return false
}
