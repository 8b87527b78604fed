package warehouse

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var labelStructRe = regexp.MustCompile(`STRUCT\(\s*"((?:[^"\\]|\\.)*)"\s*,\s*"((?:[^"\\]|\\.)*)"\s*\)`)

// OptionRow is a rendered (option_name, option_value) catalog pair.
type OptionRow struct {
	Name  string
	Value string
}

// RenderDatasetOptionRows renders the configured options as catalog rows in
// canonical order, using the same literal shapes the statement builders
// emit. ParseDatasetOptionRows is its inverse.
func RenderDatasetOptionRows(opts DatasetOptions) []OptionRow {
	var rendered []OptionRow
	if opts.Location != "" {
		rendered = append(rendered, OptionRow{Name: "location", Value: quoteString(opts.Location)})
	}
	for _, name := range alterableOptions {
		if lit := opts.optionLiteral(name); lit != "" {
			rendered = append(rendered, OptionRow{Name: name, Value: lit})
		}
	}
	return rendered
}

// ParseDatasetOptionRows converts (option_name, option_value) catalog rows
// back into DatasetOptions. option_value holds SQL literals in the same
// shapes the statement builders emit. Unknown option names are ignored.
func ParseDatasetOptionRows(rows []Row) (DatasetOptions, error) {
	var opts DatasetOptions
	for _, row := range rows {
		name := row.StringField("option_name")
		value := row.StringField("option_value")

		switch name {
		case "location":
			s, err := parseStringLiteral(value)
			if err != nil {
				return DatasetOptions{}, fmt.Errorf("bad location literal %q: %w", value, err)
			}
			opts.Location = s
		case OptionDescription:
			s, err := parseStringLiteral(value)
			if err != nil {
				return DatasetOptions{}, fmt.Errorf("bad description literal %q: %w", value, err)
			}
			opts.Description = s
		case OptionLabels:
			opts.Labels = parseLabelsLiteral(value)
		case OptionDefaultTableExpiration:
			ms, err := parseDaysLiteral(value)
			if err != nil {
				return DatasetOptions{}, fmt.Errorf("bad table expiration literal %q: %w", value, err)
			}
			opts.DefaultTableExpirationMS = ms
		case OptionPartitionExpiration:
			ms, err := parseDaysLiteral(value)
			if err != nil {
				return DatasetOptions{}, fmt.Errorf("bad partition expiration literal %q: %w", value, err)
			}
			opts.DefaultPartitionExpirationMS = ms
		}
	}
	return opts, nil
}

func parseStringLiteral(lit string) (string, error) {
	lit = strings.TrimSpace(lit)
	if len(lit) < 2 || lit[0] != '"' || lit[len(lit)-1] != '"' {
		return "", fmt.Errorf("not a quoted string")
	}
	return unescapeString(lit[1 : len(lit)-1]), nil
}

func unescapeString(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			b.WriteByte(s[i])
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func parseLabelsLiteral(lit string) map[string]string {
	labels := map[string]string{}
	for _, m := range labelStructRe.FindAllStringSubmatch(lit, -1) {
		labels[unescapeString(m[1])] = unescapeString(m[2])
	}
	return labels
}

// parseDaysLiteral converts a fractional-days float literal back to
// milliseconds. Rounding recovers the exact original millisecond value for
// any realistic expiration.
func parseDaysLiteral(lit string) (int64, error) {
	days, err := strconv.ParseFloat(strings.TrimSpace(lit), 64)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(days * msPerDay)), nil
}
