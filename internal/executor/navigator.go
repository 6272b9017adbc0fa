package executor

import (
	"sync"

	"github.com/nao1215/toxguard/internal/cloak"
	"github.com/nao1215/toxguard/internal/transport"
)

// navigator moves a focus through the cloaked matches in document order.
// The list is rebuilt on every call so matches added by a rescan or
// removed by a full scan are picked up.
type navigator struct {
	cloak *cloak.Manager

	mu      sync.Mutex
	current string
}

// step moves the focus by delta (+1 or -1), wrapping around.
func (n *navigator) step(delta int) transport.ToxicListReply {
	n.mu.Lock()
	defer n.mu.Unlock()

	ids := n.ids()
	if len(ids) == 0 {
		n.current = ""
		return transport.ToxicListReply{OK: true, Index: -1}
	}
	i := indexOf(ids, n.current)
	switch {
	case i < 0 && delta > 0:
		i = 0
	case i < 0:
		i = len(ids) - 1
	default:
		i = wrap(i+delta, len(ids))
	}
	return n.focus(ids, i)
}

// jump focuses match index, wrapping out of range indexes.
func (n *navigator) jump(index int) transport.ToxicListReply {
	n.mu.Lock()
	defer n.mu.Unlock()

	ids := n.ids()
	if len(ids) == 0 {
		n.current = ""
		return transport.ToxicListReply{OK: true, Index: -1}
	}
	return n.focus(ids, wrap(index, len(ids)))
}

// ensure rebuilds the list and reports the focused index without moving it.
func (n *navigator) ensure() transport.ToxicListReply {
	n.mu.Lock()
	defer n.mu.Unlock()

	ids := n.ids()
	i := indexOf(ids, n.current)
	if i < 0 {
		n.current = ""
	}
	return transport.ToxicListReply{OK: true, Index: i, Total: len(ids)}
}

func (n *navigator) focus(ids []string, i int) transport.ToxicListReply {
	n.current = ids[i]
	n.cloak.Highlight(n.current)
	return transport.ToxicListReply{OK: true, Index: i, Total: len(ids)}
}

func (n *navigator) ids() []string {
	ws := n.cloak.Wrappers()
	ids := make([]string, len(ws))
	for i, w := range ws {
		ids[i] = w.ID
	}
	return ids
}

func indexOf(ids []string, id string) int {
	if id == "" {
		return -1
	}
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func wrap(i, n int) int {
	return ((i % n) + n) % n
}
