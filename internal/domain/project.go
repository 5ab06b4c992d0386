package domain

import "time"

// Project is a tenant namespace for log events. Origins is the ordered list
// of origin patterns allowed to write logs for the project; it is never empty
// and never the sole entry "*".
type Project struct {
	ID        string
	Name      string
	Origins   []string
	CreatedAt time.Time
}
