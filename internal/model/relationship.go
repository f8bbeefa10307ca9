package model

import "time"

// Relationship is a discovery edge from the page a link was found on to the
// row recorded for that link. (ParentID, ChildID) is unique.
type Relationship struct {
	ID          int64
	DomainID    int64
	ParentID    int64
	ChildID     int64
	ParentDepth int
	ChildDepth  int

	// ParentText is the parent's own anchor text, used as the edge label.
	ParentText string

	DiscoveredAt time.Time
}
