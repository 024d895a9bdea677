package domain

type Page struct {
	Number int
	Size   int
}

func NewPage(pageNumber, pageSize int) Page {
	pNumber := 1
	if pageNumber > 0 {
		pNumber = pageNumber
	}

	pSize := 10
	if pageSize > 0 {
		pSize = pageSize
	}

	return Page{
		Number: pNumber,
		Size:   pSize,
	}
}

// Bounds returns the [first, last) indexes of the page within a list of the
// given length.
func (p Page) Bounds(length int) (int, int) {
	first := (p.Number - 1) * p.Size
	if first > length {
		first = length
	}
	last := first + p.Size
	if last > length {
		last = length
	}
	return first, last
}
