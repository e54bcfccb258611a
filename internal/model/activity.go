package model

// SearchActivity is an append-only analytics row. The engine only writes it.
type SearchActivity struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	Query       string `json:"query"`
	Mode        string `json:"mode"`
	ResultCount int    `json:"result_count"`
	Ctime       int64  `json:"ctime"`
}
