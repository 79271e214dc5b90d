package sync

import "context"

// FetchFunc retrieves and processes the page at cursor and returns the next
// cursor, or "" when the listing is exhausted.
type FetchFunc func(ctx context.Context, cursor string) (next string, err error)

// Drain follows the cursor chain from start until it is exhausted. Each page is
// fully processed by fetch before the next one is requested. Cancellation is
// checked before every fetch. It returns the number of pages completed and the
// cursor of the last page attempted.
func Drain(ctx context.Context, start string, fetch FetchFunc) (pages int, cursor string, err error) {
	cursor = start
	for {
		if err := ctx.Err(); err != nil {
			return pages, cursor, err
		}
		next, err := fetch(ctx, cursor)
		if err != nil {
			return pages, cursor, err
		}
		pages++
		if next == "" {
			return pages, cursor, nil
		}
		cursor = next
	}
}
