package models

import "fmt"

// Schema describes where hashes live in the reference store
type Schema struct {
	Table      string `json:"table"`
	IsView     bool   `json:"is_view"`
	SHA1Column string `json:"sha1_column,omitempty"`
	MD5Column  string `json:"md5_column,omitempty"`
}

// HashColumns returns the hash columns present in the schema, SHA-1 first
func (s Schema) HashColumns() []string {
	var cols []string
	if s.SHA1Column != "" {
		cols = append(cols, s.SHA1Column)
	}
	if s.MD5Column != "" {
		cols = append(cols, s.MD5Column)
	}
	return cols
}

func (s Schema) String() string {
	kind := "table"
	if s.IsView {
		kind = "view"
	}
	sha1, md5 := s.SHA1Column, s.MD5Column
	if sha1 == "" {
		sha1 = "-"
	}
	if md5 == "" {
		md5 = "-"
	}
	return fmt.Sprintf("%s %s (sha1=%s, md5=%s)", kind, s.Table, sha1, md5)
}
