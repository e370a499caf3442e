package tgui

import "fmt"

// PageCount returns the number of pages needed for total items; at least 1.
func PageCount(total, size int) int {
	if size <= 0 {
		size = 10
	}
	if total <= 0 {
		return 1
	}
	return (total + size - 1) / size
}

// ClampPage keeps a 0-based page within [0, PageCount-1].
func ClampPage(page, total, size int) int {
	return max(0, min(page, PageCount(total, size)-1))
}

// PaginateSlice returns the items of a 0-based page after clamping it.
func PaginateSlice[T any](items []T, page, size int) (sub []T, clamped int) {
	if size <= 0 {
		size = 10
	}
	clamped = ClampPage(page, len(items), size)
	start := min(clamped*size, len(items))
	end := min(start+size, len(items))
	return items[start:end], clamped
}

// PageLabel returns a compact pagination label for a 0-based page.
func PageLabel(page, size, total int) string {
	pages := PageCount(total, size)
	page = ClampPage(page, total, size)
	return fmt.Sprintf("Page %d/%d", page+1, pages)
}
