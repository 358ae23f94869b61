package pagination

import (
	"reflect"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Params holds page-based pagination parameters extracted from a request.
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// FromContext reads ?page= and ?limit= with page starting at 1.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}

	return Params{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// Response is the paged list envelope.
type Response struct {
	Success bool        `json:"success"`
	Count   int         `json:"count"`
	Total   int         `json:"total"`
	Page    int         `json:"page"`
	Pages   int         `json:"pages"`
	Data    interface{} `json:"data"`
}

func NewResponse(data interface{}, total int, p Params) *Response {
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return &Response{
		Success: true,
		Count:   lengthOf(data),
		Total:   total,
		Page:    p.Page,
		Pages:   pages,
		Data:    data,
	}
}

func lengthOf(data interface{}) int {
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		return v.Len()
	}
	if data == nil {
		return 0
	}
	return 1
}
