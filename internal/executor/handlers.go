package executor

import (
	"context"

	"github.com/nao1215/toxguard/internal/transport"
)

// Handle implements transport.Handler for the tab endpoint.
func (x *Executor) Handle(_ context.Context, _ transport.Address, msg transport.Message) transport.Message {
	switch m := msg.(type) {
	case transport.RunScan:
		if id, ok := x.engine.StartFrom(x.ctx, m.MinRunID); ok {
			x.logger.Debug("scan started", "tab", x.TabID(), "run_id", id)
		}
		return transport.Ack{OK: true}

	case transport.CancelScan:
		return transport.Ack{OK: x.engine.Cancel(m.RunID)}

	case transport.GotoToxic:
		return x.nav.jump(m.Index)

	case transport.NextToxic:
		return x.nav.step(1)

	case transport.PrevToxic:
		return x.nav.step(-1)

	case transport.EnsureToxicList:
		return x.nav.ensure()

	case transport.RevealToxic:
		if !x.cloak.Reveal(m.ID) {
			return transport.Ack{OK: false, Error: "unknown match " + m.ID}
		}
		return transport.Ack{OK: true}
	}
	return nil
}
