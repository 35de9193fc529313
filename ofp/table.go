package ofp

import "fmt"

// Table defines a switch table number.
type Table uint8

// String returns a string representation of the table.
func (t Table) String() string {
	return fmt.Sprintf("Table(%d)", t)
}

const (
	// TableMax defines the last usable table number.
	TableMax Table = 0xfe

	// TableAll defines the wildcard table used for table config, flow
	// stats and flow deletes.
	TableAll Table = 0xff
)

// Group, Queue and Meter identify a group table entry, a port queue
// and a meter.
type (
	Group uint32
	Queue uint32
	Meter uint32
)

const (
	GroupMax Group = 0xffffff00
	GroupAll Group = 0xfffffffc
	GroupAny Group = 0xffffffff
	QueueAll Queue = 0xffffffff
)
