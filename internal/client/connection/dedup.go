package connection

// dedup is a bounded FIFO set of event identity keys. When full, the oldest
// key is forgotten.
type dedup struct {
	keys  map[string]struct{}
	order []string
	next  int
	full  bool
}

func newDedup(size int) *dedup {
	if size <= 0 {
		size = defaultDedupSize
	}
	return &dedup{
		keys:  make(map[string]struct{}, size),
		order: make([]string, size),
	}
}

// seen records key and reports whether it was already present.
func (d *dedup) seen(key string) bool {
	if _, ok := d.keys[key]; ok {
		return true
	}
	if d.full {
		delete(d.keys, d.order[d.next])
	}
	d.order[d.next] = key
	d.keys[key] = struct{}{}
	d.next++
	if d.next == len(d.order) {
		d.next = 0
		d.full = true
	}
	return false
}

func (d *dedup) len() int { return len(d.keys) }
