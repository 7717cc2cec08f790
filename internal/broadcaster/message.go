package broadcaster

import "time"

const EventCommit = "commit"

// Message is pushed to every viewer of Stream.
type Message struct {
	Id         string    `json:"id"`
	Seq        uint64    `json:"seq"`
	CreateTime time.Time `json:"createTime"`
	Stream     string    `json:"stream"`
	Event      string    `json:"event"`
	Payload    any       `json:"payload"`
}
