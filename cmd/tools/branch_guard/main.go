package main

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// branchGuard scans SQL string literals in Go sources and ensures every
// SELECT/UPDATE/DELETE on a branch-owned table filters by branch_id.
// Exit code 0 = ok, 1 = violation, 2 = other error.
func main() {
	root := "internal"
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	deny, err := scan(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "branch_guard error: %v\n", err)
		os.Exit(2)
	}
	if len(deny) > 0 {
		for _, v := range deny {
			fmt.Fprintf(os.Stderr, "VIOLATION: %s\n", v)
		}
		os.Exit(1)
	}
	fmt.Println("branch_guard: OK")
}

var (
	reStatement = regexp.MustCompile(`(?i)\b(select|update|delete)\b`)
	reTable     = regexp.MustCompile(`(?i)\b(from|update|join)\s+(fee_items|settlements|audit_logs)\b`)
	reBranch    = regexp.MustCompile(`(?i)branch_id\s*=\s*\$[0-9]+`)
)

func scan(dir string) ([]string, error) {
	var violations []string
	fset := token.NewFileSet()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), "_") || d.Name() == "testdata" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		found, err := checkFile(fset, path)
		if err != nil {
			return err
		}
		violations = append(violations, found...)
		return nil
	})
	return violations, err
}

func checkFile(fset *token.FileSet, path string) ([]string, error) {
	file, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}
	var violations []string
	ast.Inspect(file, func(n ast.Node) bool {
		lit, ok := n.(*ast.BasicLit)
		if !ok || lit.Kind != token.STRING {
			return true
		}
		sql, err := strconv.Unquote(lit.Value)
		if err != nil {
			return true
		}
		if !unscoped(sql) {
			return true
		}
		violations = append(violations, fset.Position(lit.Pos()).String())
		return true
	})
	return violations, nil
}

// unscoped reports whether sql reads or writes a branch-owned table without
// a branch_id predicate.
func unscoped(sql string) bool {
	if !reStatement.MatchString(sql) || !reTable.MatchString(sql) {
		return false
	}
	return !reBranch.MatchString(sql)
}
