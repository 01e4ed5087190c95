package pagination

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is a page window parsed from ?page=&limit=
type Params struct {
	Page   int `json:"page"`
	Limit  int `json:"limit"`
	Offset int `json:"-"`
}

// Meta describes the returned page
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// Page is a list response with its page metadata
type Page struct {
	Items interface{} `json:"items"`
	Meta  Meta        `json:"meta"`
}

// Parse reads the page window; bad or missing values fall back to defaults
func Parse(c *fiber.Ctx) Params {
	return New(atoi(c.Query("page"), 1), atoi(c.Query("limit"), DefaultLimit))
}

// New clamps page and limit into range
func New(page, limit int) Params {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Params{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// Wrap builds the page payload for items out of total rows
func Wrap(items interface{}, p Params, total int64) Page {
	pages := int((total + int64(p.Limit) - 1) / int64(p.Limit))
	return Page{
		Items: items,
		Meta: Meta{
			Page:       p.Page,
			Limit:      p.Limit,
			Total:      total,
			TotalPages: pages,
			HasNext:    p.Page < pages,
		},
	}
}

func atoi(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
