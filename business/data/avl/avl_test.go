package avl

import "time"

func testTime() time.Time {
	return time.Date(2023, 6, 5, 8, 0, 0, 0, time.UTC)
}
