package model

import "time"

// Note is one row of the signed-in principal's collection.
// Created is epoch milliseconds; the wire format is ISO-8601.
type Note struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Created int64  `json:"created"`
}

func (n Note) CreatedTime() time.Time {
	return time.UnixMilli(n.Created)
}
