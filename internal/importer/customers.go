package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tailorreach/internal/model"
)

// ErrNoNameColumn is returned when a sheet has no recognizable name column.
var ErrNoNameColumn = eris.New("importer: header has no name column")

// headerAliases maps normalized header cells onto customer fields.
var headerAliases = map[string]string{
	"name":               "name",
	"full name":          "name",
	"customer":           "name",
	"customer name":      "name",
	"email":              "email",
	"e-mail":             "email",
	"email address":      "email",
	"phone":              "phone",
	"phone number":       "phone",
	"mobile":             "phone",
	"likes":              "likes",
	"interests":          "likes",
	"dislikes":           "dislikes",
	"preferences":        "preferences",
	"preference":         "preferences",
	"channel":            "preferences",
	"contact preference": "preferences",
}

// Skipped describes a data row that could not be imported. Row is
// 1-based and counts the header.
type Skipped struct {
	Row    int
	Reason string
}

// Options configures ReadFile.
type Options struct {
	CSV   CSVOptions
	XLSX  XLSXOptions
	Limit int // 0 = all rows
}

// ReadFile parses a .csv or .xlsx customer list. The first row is the
// header; columns are matched case-insensitively by name.
func ReadFile(ctx context.Context, path string, opts Options) ([]model.Customer, []Skipped, error) {
	var (
		rows [][]string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".tsv", ".txt":
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, nil, eris.Wrap(openErr, "importer: open file")
		}
		defer f.Close() //nolint:errcheck
		csvOpts := opts.CSV
		csvOpts.TrimSpace = true
		if ext == ".tsv" && csvOpts.Delimiter == 0 {
			csvOpts.Delimiter = '\t'
		}
		rows, err = ReadCSV(ctx, f, csvOpts)
	case ".xlsx":
		rows, err = ReadXLSX(path, opts.XLSX)
	default:
		return nil, nil, eris.Errorf("importer: unsupported file type %q", ext)
	}
	if err != nil {
		return nil, nil, err
	}
	return Customers(rows, opts.Limit)
}

// Customers maps header-led rows onto customers. Rows without a name or
// with an unknown channel are skipped and reported; blank rows are ignored.
func Customers(rows [][]string, limit int) ([]model.Customer, []Skipped, error) {
	if len(rows) == 0 {
		return nil, nil, nil
	}

	cols := make(map[string]int)
	for i, h := range rows[0] {
		key := strings.ToLower(strings.Join(strings.Fields(strings.TrimPrefix(h, "\ufeff")), " "))
		if field, ok := headerAliases[key]; ok {
			if _, dup := cols[field]; !dup {
				cols[field] = i
			}
		}
	}
	if _, ok := cols["name"]; !ok {
		return nil, nil, eris.Wrapf(ErrNoNameColumn, "header %q", rows[0])
	}

	cell := func(row []string, field string) string {
		i, ok := cols[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var (
		out     []model.Customer
		skipped []Skipped
	)
	for n, row := range rows[1:] {
		if limit > 0 && len(out) >= limit {
			break
		}
		if blank(row) {
			continue
		}
		c := model.Customer{
			Name:        cell(row, "name"),
			Email:       cell(row, "email"),
			Phone:       cell(row, "phone"),
			Likes:       cell(row, "likes"),
			Dislikes:    cell(row, "dislikes"),
			Preferences: model.Preference(cell(row, "preferences")),
		}
		if err := c.Validate(); err != nil {
			skipped = append(skipped, Skipped{Row: n + 2, Reason: strings.TrimSuffix(err.Error(), ": "+model.ErrInvalid.Error())})
			continue
		}
		out = append(out, c)
	}
	return out, skipped, nil
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
