package importer

import "strings"

type field int

const (
	fieldDate field = iota
	fieldTitle
	fieldViews
	fieldLikes
	fieldComments
)

func (f field) String() string {
	switch f {
	case fieldDate:
		return "date"
	case fieldTitle:
		return "title"
	case fieldViews:
		return "views"
	case fieldLikes:
		return "likes"
	case fieldComments:
		return "comments"
	}
	return "unknown"
}

// headerSynonyms maps accepted header names to fields. Matching is exact and
// case-sensitive after trimming surrounding whitespace.
var headerSynonyms = map[string]field{
	"日付":          fieldDate,
	"日時":          fieldDate,
	"acquired_at": fieldDate,
	"observed_on": fieldDate,
	"date":        fieldDate,

	"タイトル":  fieldTitle,
	"記事名":   fieldTitle,
	"title": fieldTitle,

	"ビュー数":  fieldViews,
	"ビュー":   fieldViews,
	"PV":    fieldViews,
	"views": fieldViews,

	"スキ数":   fieldLikes,
	"スキ":    fieldLikes,
	"likes": fieldLikes,

	"コメント数":    fieldComments,
	"コメント":     fieldComments,
	"comments": fieldComments,
}

var requiredFields = []field{fieldDate, fieldTitle, fieldViews}

// columnMap locates each known field in a header row. The first column that
// maps to a field wins.
type columnMap map[field]int

func mapHeader(header []string) columnMap {
	cols := make(columnMap)
	for i, name := range header {
		f, ok := headerSynonyms[strings.TrimSpace(name)]
		if !ok {
			continue
		}
		if _, dup := cols[f]; !dup {
			cols[f] = i
		}
	}
	return cols
}

func (c columnMap) missing() []string {
	var out []string
	for _, f := range requiredFields {
		if _, ok := c[f]; !ok {
			out = append(out, f.String())
		}
	}
	return out
}

// cell returns the trimmed value of f in row, or "" when the column is
// absent or the row is short.
func (c columnMap) cell(row []string, f field) string {
	i, ok := c[f]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
