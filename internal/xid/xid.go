package xid

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	once sync.Once
	node *snowflake.Node
)

func get() *snowflake.Node {
	once.Do(func() {
		n, err := snowflake.NewNode(1)
		if err != nil {
			panic(fmt.Sprintf("xid: snowflake node: %v", err))
		}
		node = n
	})
	return node
}

// New returns a prefixed, time-ordered unique identifier such as
// "inv-1879412049920421888". IDs sort by creation time within a prefix.
func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, get().Generate().String())
}

// ReturnNo builds a human-facing return number such as
// "RET-20260830-1879412049920421888". The full snowflake ID keeps numbers
// unique within a day.
func ReturnNo(at time.Time) string {
	return fmt.Sprintf("RET-%s-%s", at.Format("20060102"), get().Generate().String())
}
