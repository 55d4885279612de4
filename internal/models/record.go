package models

import "strings"

// Record is one parsed row of the candidate file list.
// Fields holds the original row exactly as read; SHA1 and MD5 are the
// normalized hash values extracted from their fixed positions.
type Record struct {
	Line   int      `json:"line"`
	Fields []string `json:"fields"`
	SHA1   string   `json:"sha1,omitempty"`
	MD5    string   `json:"md5,omitempty"`
}

// NewRecord builds a record from a source row, normalizing the hash fields
// found at md5Field and sha1Field. Out-of-range positions yield empty hashes.
func NewRecord(line int, fields []string, md5Field, sha1Field int) *Record {
	r := &Record{Line: line, Fields: fields}
	if md5Field >= 0 && md5Field < len(fields) {
		r.MD5 = NormalizeHash(fields[md5Field])
	}
	if sha1Field >= 0 && sha1Field < len(fields) {
		r.SHA1 = NormalizeHash(fields[sha1Field])
	}
	return r
}

// Empty reports whether the record carries no usable hash
func (r *Record) Empty() bool {
	return r.SHA1 == "" && r.MD5 == ""
}

// Key returns the identity used for duplicate detection: SHA-1 when present, else MD5
func (r *Record) Key() string {
	if r.SHA1 != "" {
		return r.SHA1
	}
	return r.MD5
}

// NormalizeHash trims surrounding whitespace and lower-cases a hex digest
func NormalizeHash(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// HashKind names a hash algorithm stored in the reference database
type HashKind int

const (
	SHA1 HashKind = iota
	MD5
)

func (k HashKind) String() string {
	if k == MD5 {
		return "md5"
	}
	return "sha1"
}
