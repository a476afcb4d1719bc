package openaicompat

import (
	"encoding/hex"
	"strconv"

	"github.com/zeebo/blake3"

	"github.com/tillerhq/tiller"
)

// pendingCalls tracks tool calls awaiting results within one model turn, for
// backends that omit stable call ids. A call without an id gets a synthetic
// one derived from its content hash; when the result comes back by (name,
// args) the id is recovered from the queue.
type pendingCalls struct {
	byHash map[string][]string // content hash -> queued ids, FIFO
}

func newPendingCalls() *pendingCalls {
	return &pendingCalls{byHash: make(map[string][]string)}
}

// hashCall fingerprints a call by name, args, step, and intra-step index so
// identical calls in the same turn still get distinct synthetic ids.
func hashCall(call tiller.ToolCall, step, index int) string {
	h := blake3.New()
	h.Write([]byte(call.Name))
	h.Write([]byte{0})
	h.Write(call.Args)
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(step)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(index)))
	return hex.EncodeToString(h.Sum(nil)[:12])
}

// Assign fills in missing call ids for one turn and enqueues them for
// recovery. Calls that already carry a backend id pass through untouched.
func (p *pendingCalls) Assign(calls []tiller.ToolCall, step int) []tiller.ToolCall {
	out := make([]tiller.ToolCall, len(calls))
	for i, call := range calls {
		if call.ID == "" {
			hash := hashCall(call, step, i)
			call.ID = "call_" + hash
			key := lookupKey(call)
			p.byHash[key] = append(p.byHash[key], call.ID)
		}
		out[i] = call
	}
	return out
}

// Recover pops the oldest queued id matching the call's content, or ""
// when the call never went through Assign.
func (p *pendingCalls) Recover(call tiller.ToolCall) string {
	key := lookupKey(call)
	ids := p.byHash[key]
	if len(ids) == 0 {
		return ""
	}
	id := ids[0]
	if len(ids) == 1 {
		delete(p.byHash, key)
	} else {
		p.byHash[key] = ids[1:]
	}
	return id
}

func lookupKey(call tiller.ToolCall) string {
	h := blake3.New()
	h.Write([]byte(call.Name))
	h.Write([]byte{0})
	h.Write(call.Args)
	return hex.EncodeToString(h.Sum(nil)[:12])
}
