package main

type HealthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

// RoomSummary merges live membership with the stored activity counters.
type RoomSummary struct {
	Room    string `json:"room"`
	Members int    `json:"members"`
	Joins   int64  `json:"joins"`
	Leaves  int64  `json:"leaves"`
	Relayed int64  `json:"relayed"`
}

type RoomsResponse struct {
	Lobby string        `json:"lobby"`
	Rooms []RoomSummary `json:"rooms"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
