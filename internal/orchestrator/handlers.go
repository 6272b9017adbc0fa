package orchestrator

import (
	"context"

	"github.com/nao1215/toxguard/internal/transport"
)

// Handle implements transport.Handler. Every kind has exactly one case;
// kinds the orchestrator does not serve get no reply.
func (o *Orchestrator) Handle(ctx context.Context, from transport.Address, msg transport.Message) transport.Message {
	switch m := msg.(type) {
	case transport.Hello:
		tab, ok := transport.ParseTabAddress(from)
		if !ok {
			return transport.Ack{OK: false, Error: "sender is not a tab"}
		}
		return transport.HelloReply{TabID: tab}

	case transport.ScanProgress:
		tab := m.TabID
		if tab == 0 {
			tab, _ = transport.ParseTabAddress(from)
		}
		if tab == 0 {
			return transport.Ack{OK: false, Error: "unknown tab"}
		}
		o.applyProgress(tab, m.Progress)
		return transport.Ack{OK: true}

	case transport.RunScanActiveTab:
		if tab, ok := o.tabs.ActiveTab(); ok {
			rawURL, _ := o.tabs.TabURL(tab)
			o.maybeStart(tab, rawURL, true)
		}
		return transport.Ack{OK: true}

	case transport.CancelActiveScan:
		if tab, ok := o.tabs.ActiveTab(); ok {
			_ = o.post(tab, transport.CancelScan{RunID: o.store.currentRun(tab)}) //nolint:errcheck // tab may be gone
		}
		return transport.Ack{OK: true}

	case transport.GetStatusForActiveTab:
		tab, ok := o.tabs.ActiveTab()
		if !ok {
			return transport.StatusReply{OK: true}
		}
		st, _ := o.store.Get(tab)
		return transport.StatusReply{OK: true, TabID: tab, Status: st}

	case transport.GotoToxic, transport.NextToxic, transport.PrevToxic, transport.EnsureToxicList:
		reply, err := o.relay(ctx, m)
		if err != nil {
			o.logger.Debug("navigation relay failed", "kind", string(m.Kind()), "error", err)
			return transport.ToxicListReply{OK: false, Index: -1}
		}
		return reply

	case transport.RevealToxic:
		reply, err := o.relay(ctx, m)
		if err != nil {
			return transport.Ack{OK: false, Error: err.Error()}
		}
		return reply
	}
	return nil
}
