package transport

// ComHook observes a frame sent or received on a socket. The frame slice is
// only valid during the call.
type ComHook func(socket string, frame []byte)

// HookID identifies a registered com hook
type HookID uint64

type hookEntry struct {
	id HookID
	fn ComHook
}

type hooks struct {
	next HookID
	send []hookEntry
	recv []hookEntry
}

func (h *hooks) add(list *[]hookEntry, fn ComHook) HookID {
	h.next++
	*list = append(*list, hookEntry{id: h.next, fn: fn})
	return h.next
}

func (h *hooks) remove(id HookID) bool {
	for _, list := range []*[]hookEntry{&h.send, &h.recv} {
		for i, e := range *list {
			if e.id == id {
				*list = append((*list)[:i], (*list)[i+1:]...)
				return true
			}
		}
	}
	return false
}

func (h *hooks) runSend(socket string, frame []byte) {
	for _, e := range h.send {
		e.fn(socket, frame)
	}
}

func (h *hooks) runRecv(socket string, frame []byte) {
	for _, e := range h.recv {
		e.fn(socket, frame)
	}
}
