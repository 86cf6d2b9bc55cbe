package gevabroker

// tryGetRaw performs one non-blocking round-robin scan across the enrolled
// BufferPorts, starting from the Broker's cursor. Empty ports are skipped;
// ties (multiple non-empty ports) are broken by whichever the cursor
// reaches first, which is oldest-enrolled-first on the first lap — per
// spec.md §4.3's dispatch policy and §9's open question, this is NOT
// weighted by Consumer parallelism hints.
func (b *Broker) tryGetRaw() (WorkItem, bool) {
	b.mu.Lock()
	n := len(b.ports)
	if n == 0 {
		b.mu.Unlock()
		return nil, false
	}

	start := b.cursor % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		port := b.ports[idx]
		if port.SizeRaw() == 0 {
			continue
		}
		b.cursor = (idx + 1) % n
		port.lastServiced.Add(1)
		b.mu.Unlock()

		if item, ok := port.PopRaw(0); ok {
			return item, true
		}
		// Another goroutine raced us to this port's only item; fall
		// through to the caller's retry loop rather than looping here,
		// to avoid re-acquiring the registry lock redundantly.
		return nil, false
	}
	b.mu.Unlock()
	return nil, false
}
