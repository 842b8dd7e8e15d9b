// Package model holds the catalog entities shared by the coverage engine,
// the sqlite catalog and the lane system.
package model

import (
	"fmt"
	"strings"
)

// Identifier types understood by the catalog.
const (
	IdentifierOverdrive = "Overdrive ID"
	IdentifierOneClick  = "RBdigital ID"
	IdentifierThreeM    = "Bibliotheca ID"
	IdentifierAxis360   = "Axis 360 ID"
	IdentifierISBN      = "ISBN"
)

// Identifier is a vendor-scoped key for a title. It is the unit of coverage
// for identifier-based providers.
type Identifier struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Value string `json:"identifier"`
}

// CoverageKey identifies the item inside a coverage batch.
func (i *Identifier) CoverageKey() string {
	return i.Type + "/" + i.Value
}

// PrimaryKey is the catalog row id.
func (i *Identifier) PrimaryKey() int64 {
	return i.ID
}

func (i *Identifier) String() string {
	return fmt.Sprintf("%s:%s", i.Type, i.Value)
}

// ParseIdentifier splits "TYPE/VALUE" as typed on the command line.
func ParseIdentifier(s string) (string, string, error) {
	idx := strings.LastIndex(s, "/")
	if idx <= 0 || idx == len(s)-1 {
		return "", "", fmt.Errorf("identifier %q must look like TYPE/VALUE", s)
	}
	return s[:idx], s[idx+1:], nil
}
