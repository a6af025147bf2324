package service

// DefaultPageSize applies when a caller passes a non-positive page size.
const DefaultPageSize = 25

// Page 一页结果；页码从 1 开始，超出末页返回空 Items 而非错误
type Page[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	HasNext  bool  `json:"has_next"`
	HasPrev  bool  `json:"has_prev"`
	NextPage int   `json:"next_page,omitempty"`
	PrevPage int   `json:"prev_page,omitempty"`
}

func normalizePage(page, size, def int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = def
	}
	if size < 1 {
		size = DefaultPageSize
	}
	return page, size
}

func offsetOf(page, size int) int { return (page - 1) * size }

func newPage[T any](items []T, total int64, page, size int) *Page[T] {
	if items == nil {
		items = []T{}
	}
	p := &Page[T]{Items: items, Total: total, Page: page, PageSize: size}
	p.HasNext = int64(page)*int64(size) < total
	p.HasPrev = page > 1
	if p.HasNext {
		p.NextPage = page + 1
	}
	if p.HasPrev {
		p.PrevPage = page - 1
	}
	return p
}
