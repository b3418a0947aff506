package normalize

import "strings"

// DefaultCategory is assigned when no keyword matches.
const DefaultCategory = "Other"

// Category is one entry of the keyword table served by the backend.
type Category struct {
	Name     string   `json:"category"`
	Keywords []string `json:"keywords"`
}

type foldedCategory struct {
	name     string
	keywords []string
}

// Categorizer assigns categories by keyword containment. The zero value and
// a Categorizer built from an empty table categorize everything as
// DefaultCategory.
type Categorizer struct {
	table []foldedCategory
}

func NewCategorizer(categories []Category) *Categorizer {
	c := &Categorizer{}
	for _, cat := range categories {
		fc := foldedCategory{name: cat.Name}
		for _, kw := range cat.Keywords {
			if f := fold(kw); f != "" {
				fc.keywords = append(fc.keywords, f)
			}
		}
		if cat.Name != "" && len(fc.keywords) > 0 {
			c.table = append(c.table, fc)
		}
	}
	return c
}

// Categorize compares description and keywords uppercase, without accents
// and without spaces. Table order decides between several matches.
func (c *Categorizer) Categorize(description string) string {
	if c == nil {
		return DefaultCategory
	}
	d := fold(description)
	if d == "" {
		return DefaultCategory
	}
	for _, cat := range c.table {
		for _, kw := range cat.keywords {
			if strings.Contains(d, kw) {
				return cat.name
			}
		}
	}
	return DefaultCategory
}

// Len is the number of usable categories.
func (c *Categorizer) Len() int {
	if c == nil {
		return 0
	}
	return len(c.table)
}
