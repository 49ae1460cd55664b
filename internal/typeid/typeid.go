package typeid

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

const (
	PrefixUser     = "user"
	PrefixProject  = "proj"
	PrefixSnapshot = "snap"
	PrefixOp       = "op"
	PrefixElement  = "el"
	PrefixAsset    = "asset"
	PrefixExport   = "exp"
)

func New(prefix string) string {
	id := typeid.MustGenerate(prefix)
	return id.String()
}

func NewUserID() string     { return New(PrefixUser) }
func NewProjectID() string  { return New(PrefixProject) }
func NewSnapshotID() string { return New(PrefixSnapshot) }
func NewOpID() string       { return New(PrefixOp) }
func NewElementID() string  { return New(PrefixElement) }
func NewAssetID() string    { return New(PrefixAsset) }
func NewExportID() string   { return New(PrefixExport) }

// Validate checks that id parses as a typeid carrying expectedPrefix.
func Validate(id, expectedPrefix string) error {
	parsed, err := typeid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid typeid %q: %w", id, err)
	}
	if parsed.Prefix() != expectedPrefix {
		return fmt.Errorf("expected prefix %q but got %q in id %q", expectedPrefix, parsed.Prefix(), id)
	}
	return nil
}

// HasPrefix reports whether id is a valid typeid with the given prefix.
func HasPrefix(id, prefix string) bool {
	return Validate(id, prefix) == nil
}
