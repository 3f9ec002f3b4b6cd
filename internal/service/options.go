package service

import (
	"scanhub/internal/repository"
	"scanhub/internal/validation"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

type ListOptions struct {
	Page    int    `json:"page" validate:"omitempty,min=1"`
	PerPage int    `json:"per_page" validate:"omitempty,min=1,max=100"`
	Sort    string `json:"sort" validate:"omitempty,oneof=created_at name"`
	Order   string `json:"order" validate:"omitempty,oneof=asc desc"`
	Search  string `json:"search" validate:"max=100"`
}

type Page[T any] struct {
	Items   []T
	Total   int
	Page    int
	PerPage int
}

// normalize validates opts and converts them into a repository query.
// Lists default to newest first.
func (o ListOptions) normalize() (ListOptions, repository.ListOptions, error) {
	if err := validation.Struct(o); err != nil {
		return o, repository.ListOptions{}, err
	}
	if o.Page == 0 {
		o.Page = 1
	}
	if o.PerPage == 0 {
		o.PerPage = defaultPerPage
	}
	if o.PerPage > maxPerPage {
		o.PerPage = maxPerPage
	}
	if o.Sort == "" {
		o.Sort = string(repository.SortCreatedAt)
	}
	if o.Order == "" {
		o.Order = "desc"
	}

	return o, repository.ListOptions{
		Limit:  o.PerPage,
		Offset: (o.Page - 1) * o.PerPage,
		Sort:   repository.SortField(o.Sort),
		Desc:   o.Order == "desc",
		Search: o.Search,
	}, nil
}

func newPage[T any](items []T, total int, opts ListOptions) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Total: total, Page: opts.Page, PerPage: opts.PerPage}
}
