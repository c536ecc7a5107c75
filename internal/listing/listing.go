// Package listing parses the shared list query (skip, limit, trash bin, field
// search, order) and turns it into GORM scopes.
package listing

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Params struct {
	Skip    int    `json:"skip"`
	Limit   int    `json:"limit"`
	Deleted bool   `json:"deleted"`
	Filter  string `json:"filter,omitempty"` // column name, already whitelisted
	Search  string `json:"search,omitempty"`
	Desc    bool   `json:"desc"`
}

// Response is the envelope returned by list and mutation endpoints.
type Response[T any] struct {
	Quantity int64  `json:"quantity"`
	Response T      `json:"response"`
	Message  string `json:"message"`
}

func OK[T any](quantity int64, payload T) Response[T] {
	return Response[T]{Quantity: quantity, Response: payload, Message: "OK"}
}

// Parse reads the list query. filters maps accepted ?filter= values to columns.
func Parse(c *fiber.Ctx, filters map[string]string) (Params, error) {
	p := Params{
		Skip:  c.QueryInt("skip", 0),
		Limit: c.QueryInt("limit", DefaultLimit),
	}
	p.Normalize()

	if v := c.Query("deleted"); v != "" {
		deleted, err := strconv.ParseBool(v)
		if err != nil {
			return p, fiber.NewError(fiber.StatusBadRequest, "deleted must be true or false")
		}
		p.Deleted = deleted
	}

	switch strings.ToLower(c.Query("order", "asc")) {
	case "asc":
	case "desc":
		p.Desc = true
	default:
		return p, fiber.NewError(fiber.StatusBadRequest, "order must be asc or desc")
	}

	p.Search = strings.TrimSpace(c.Query("search"))
	if p.Search != "" {
		name := strings.ToLower(strings.TrimSpace(c.Query("filter", "name")))
		column, ok := filters[name]
		if !ok {
			return p, fiber.NewError(fiber.StatusBadRequest, "unknown filter: "+name)
		}
		p.Filter = column
	}
	return p, nil
}

// Normalize clamps skip and limit into range.
func (p *Params) Normalize() {
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
}

// Match restricts to the requested bin and search. It is the scope for counts.
func (p Params) Match() func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("deleted = ?", p.Deleted)
		if p.Filter != "" && p.Search != "" {
			db = Contains(p.Filter, p.Search)(db)
		}
		return db
	}
}

// Page adds ordering by name and the skip/limit window.
func (p Params) Page() func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		order := "name asc"
		if p.Desc {
			order = "name desc"
		}
		return db.Order(order).Offset(p.Skip).Limit(p.Limit)
	}
}

// Contains builds a case-insensitive substring predicate on column. The search
// text is matched literally; LIKE wildcards in it are escaped.
func Contains(column, search string) func(*gorm.DB) *gorm.DB {
	pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("LOWER("+column+") LIKE ? ESCAPE '\\'", pattern)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
