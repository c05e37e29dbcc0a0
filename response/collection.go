package response

type CollectionResponse[T any] struct {
	Items      []T         `json:"items"`
	Total      int         `json:"total"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

func NewCollectionResponse[T any](items []T, pagination *Pagination) CollectionResponse[T] {
	if items == nil {
		items = []T{}
	}
	return CollectionResponse[T]{
		Items:      items,
		Total:      len(items),
		Pagination: pagination,
	}
}

// Paginate returns the page of items selected by p and sets p.Total to the
// number of all items.
func Paginate[T any](items []T, p *Pagination) []T {
	p.Total = len(items)

	start, end := p.Bounds(len(items))
	return items[start:end]
}
