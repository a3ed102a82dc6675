package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// NamespaceKind distinguishes a namespace whose tokens are hashed
// categorical features from one whose tokens are parsed as raw floats.
type NamespaceKind int

const (
	Categorical NamespaceKind = iota
	F32
)

// Namespace is one declared input column. Field is the FFM field its
// features belong to, or -1 if this namespace only contributes an LR term.
type Namespace struct {
	Name    string
	Verbose string
	Kind    NamespaceKind
	Field   int

	seed uint32
}

func newNamespace(name, verbose string, field int, kind NamespaceKind) Namespace {
	return Namespace{Name: name, Verbose: verbose, Kind: kind, Field: field, seed: namespaceSeed(name)}
}

// LoadNamespaces reads the external namespace declaration CSV: columns
// `name,verbose,[f32]`. fieldOf assigns each declared
// namespace to an FFM field index; a namespace absent from fieldOf
// contributes only an LR term (Field == -1).
func LoadNamespaces(r io.Reader, fieldOf map[string]int) ([]Namespace, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parser: reading namespace csv: %w", err)
	}

	namespaces := make([]Namespace, 0, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("parser: namespace csv row %d: need at least name,verbose", i)
		}
		name := strings.TrimSpace(row[0])
		verbose := strings.TrimSpace(row[1])
		kind := Categorical
		if len(row) >= 3 && strings.EqualFold(strings.TrimSpace(row[2]), "f32") {
			kind = F32
		}
		field := -1
		if f, ok := fieldOf[name]; ok {
			field = f
		}
		namespaces = append(namespaces, newNamespace(name, verbose, field, kind))
	}
	return namespaces, nil
}

// ByName indexes a namespace list for lookup during parsing.
func ByName(namespaces []Namespace) map[string]Namespace {
	m := make(map[string]Namespace, len(namespaces))
	for _, ns := range namespaces {
		m[ns.Name] = ns
	}
	return m
}
