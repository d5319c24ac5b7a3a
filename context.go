package wasmy

// Context is the per-Instance call state described by invariant (a): at the
// boundary of any public call it is clean (ValuePtr == 0, both buffers
// empty); the caller populates it on entry and it is reverted on exit
// regardless of outcome.
type Context struct {
	// ValuePtr is an untyped borrow of the current caller-supplied context
	// value, or 0 if none. Only native host handlers that know the expected
	// type dereference it, via TryAs; the guest never sees this pointer.
	ValuePtr uintptr
	// ValueBytes is the serialized form of the same context value, readable
	// by the guest through vm_recall(is_ctx=true, ...).
	ValueBytes []byte
	// Swap carries, in turn, the serialized request (host->guest), the
	// response (guest->host), or a nested host-callback request/response.
	Swap []byte
}

// clean reports whether the context satisfies the call-boundary invariant.
func (c *Context) clean() bool {
	return c.ValuePtr == 0 && len(c.ValueBytes) == 0 && len(c.Swap) == 0
}

// prepare populates the context for a new host->guest call.
func (c *Context) prepare(ptr uintptr, valueBytes, swap []byte) {
	c.ValuePtr = ptr
	c.ValueBytes = valueBytes
	c.Swap = swap
}

// revert clears the context back to the clean state, unconditionally and
// regardless of the call's outcome (invariant a).
func (c *Context) revert() {
	c.ValuePtr = 0
	c.ValueBytes = nil
	c.Swap = nil
}

// recall copies ValueBytes (isCtx) or Swap into dst, returning the number of
// bytes copied. For isCtx == false this also truncates Swap to length 0:
// by the time the guest pulls its request, swap has been fully consumed and
// clearing it keeps later reads of the same position from leaking stale
// bytes from a prior call.
func (c *Context) recall(isCtx bool, dst []byte) int {
	var src []byte
	if isCtx {
		src = c.ValueBytes
	} else {
		src = c.Swap
	}
	n := copy(dst, src)
	if !isCtx {
		c.Swap = c.Swap[:0]
	}
	return n
}

// restore replaces Swap with a copy of src, the guest's delivery mechanism
// for a response or a nested host-call request.
func (c *Context) restore(src []byte) {
	c.Swap = append(c.Swap[:0], src...)
}
