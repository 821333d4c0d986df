package executor

// Paginate returns the half-open index range [start, end) of page within a
// ranked list of total entries, clipped to the list, and the page count.
// Pages are 1-based; pages past the end yield start == end == total for any
// page value.
func Paginate(total, page, perPage int) (start, end, totalPages int) {
	if perPage < 1 {
		perPage = 1
	}
	if page < 1 {
		page = 1
	}
	if total < 0 {
		total = 0
	}
	totalPages = total / perPage
	if total%perPage != 0 {
		totalPages++
	}
	if page > totalPages {
		return total, total, totalPages
	}
	start = (page - 1) * perPage
	end = min(start+perPage, total)
	return start, end, totalPages
}
