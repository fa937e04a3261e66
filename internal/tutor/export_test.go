package tutor

// LockCount reports how many per-session locks are held in the map.
func (c *Coordinator) LockCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}
