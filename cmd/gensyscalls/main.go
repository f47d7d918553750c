// Command gensyscalls regenerates String() stringers for kernel/syscall's
// Op type and kernel/object's Kind type directly from their const
// declarations, so the operation-number table and the object-kind names
// stay in lockstep with the single source of truth (the const blocks
// themselves) instead of a separately maintained table. Intended to be
// invoked via `go:generate` from each package.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"go/ast"
	"go/constant"
	"go/types"
	"os"
	"text/template"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/imports"
)

var outputTmpl = template.Must(template.New("stringer").Parse(`// Code generated by gensyscalls. DO NOT EDIT.

package {{.Package}}

func (v {{.TypeName}}) String() string {
	switch v {
	{{- range .Values}}
	case {{.ConstName}}:
		return "{{.ConstName}}"
	{{- end}}
	default:
		return "{{.TypeName}}(unknown)"
	}
}
`))

type constValue struct {
	ConstName string
	Value     int64
}

type templateData struct {
	Package  string
	TypeName string
	Values   []constValue
}

func main() {
	pkgPath := flag.String("pkg", "", "import path of the package to scan")
	typeName := flag.String("type", "", "name of the const-backed type to generate String() for")
	outFile := flag.String("out", "", "output file path")
	flag.Parse()

	if *pkgPath == "" || *typeName == "" || *outFile == "" {
		fmt.Fprintln(os.Stderr, "usage: gensyscalls -pkg <import path> -type <TypeName> -out <file.go>")
		os.Exit(1)
	}

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedTypes | packages.NeedTypesInfo | packages.NeedSyntax}
	pkgs, err := packages.Load(cfg, *pkgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gensyscalls: loading %s: %v\n", *pkgPath, err)
		os.Exit(1)
	}
	if len(pkgs) != 1 || len(pkgs[0].Errors) > 0 {
		fmt.Fprintf(os.Stderr, "gensyscalls: package load errors in %s\n", *pkgPath)
		os.Exit(1)
	}
	pkg := pkgs[0]

	values, err := collectConsts(pkg, *typeName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gensyscalls: %v\n", err)
		os.Exit(1)
	}

	var buf bytes.Buffer
	if err := outputTmpl.Execute(&buf, templateData{
		Package:  pkg.Name,
		TypeName: *typeName,
		Values:   values,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "gensyscalls: rendering template: %v\n", err)
		os.Exit(1)
	}

	formatted, err := imports.Process(*outFile, buf.Bytes(), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gensyscalls: gofmt/goimports: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*outFile, formatted, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "gensyscalls: writing %s: %v\n", *outFile, err)
		os.Exit(1)
	}

	fmt.Printf("gensyscalls: wrote %d cases for %s.%s to %s\n", len(values), pkg.Name, *typeName, *outFile)
}

// collectConsts walks every const declaration in pkg whose declared type is
// typeName and returns each constant's name and integer value, in source
// order.
func collectConsts(pkg *packages.Package, typeName string) ([]constValue, error) {
	var values []constValue

	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			genDecl, ok := decl.(*ast.GenDecl)
			if !ok || genDecl.Tok.String() != "const" {
				continue
			}
			for _, spec := range genDecl.Specs {
				valueSpec, ok := spec.(*ast.ValueSpec)
				if !ok {
					continue
				}
				for _, name := range valueSpec.Names {
					obj := pkg.TypesInfo.ObjectOf(name)
					constObj, ok := obj.(*types.Const)
					if !ok {
						continue
					}
					named, ok := constObj.Type().(*types.Named)
					if !ok || named.Obj().Name() != typeName {
						continue
					}
					intVal, ok := constant.Int64Val(constant.ToInt(constObj.Val()))
					if !ok {
						continue
					}
					values = append(values, constValue{ConstName: name.Name, Value: intVal})
				}
			}
		}
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("no const values of type %s found", typeName)
	}
	return values, nil
}
