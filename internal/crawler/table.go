package crawler

// ResultTable maps each submitted URL to exactly one Outcome and remembers
// submission order so reports are deterministic. It is not safe for
// concurrent use; the Engine writes it from a single goroutine.
type ResultTable struct {
	order    []string
	reserved map[string]struct{}
	outcomes map[string]Outcome
}

// NewResultTable returns a table whose row order follows urls. Slots start
// empty until Set is called.
func NewResultTable(urls []string) *ResultTable {
	t := &ResultTable{
		order:    make([]string, 0, len(urls)),
		reserved: make(map[string]struct{}, len(urls)),
		outcomes: make(map[string]Outcome, len(urls)),
	}
	for _, u := range urls {
		t.reserve(u)
	}
	return t
}

func (t *ResultTable) reserve(url string) {
	if t.reserved == nil {
		t.reserved = make(map[string]struct{})
		t.outcomes = make(map[string]Outcome)
	}
	if _, ok := t.reserved[url]; ok {
		return
	}
	t.reserved[url] = struct{}{}
	t.order = append(t.order, url)
}

// Set records the outcome for url. It reports false if url already had one,
// in which case the table is left unchanged. URLs not reserved up front are
// appended to the end of the row order.
func (t *ResultTable) Set(url string, outcome Outcome) bool {
	t.reserve(url)
	if _, done := t.outcomes[url]; done {
		return false
	}
	t.outcomes[url] = outcome
	return true
}

// Get returns the outcome recorded for url.
func (t *ResultTable) Get(url string) (Outcome, bool) {
	o, ok := t.outcomes[url]
	return o, ok
}

// URLs returns the URLs that have a recorded outcome, in submission order.
func (t *ResultTable) URLs() []string {
	out := make([]string, 0, len(t.outcomes))
	for _, u := range t.order {
		if _, ok := t.outcomes[u]; ok {
			out = append(out, u)
		}
	}
	return out
}

// Len is the number of recorded outcomes.
func (t *ResultTable) Len() int {
	return len(t.outcomes)
}

// Pending returns reserved URLs that still lack an outcome.
func (t *ResultTable) Pending() []string {
	var out []string
	for _, u := range t.order {
		if _, ok := t.outcomes[u]; !ok {
			out = append(out, u)
		}
	}
	return out
}

// Counts returns the number of successful and failed outcomes.
func (t *ResultTable) Counts() (succeeded, failed int) {
	for _, o := range t.outcomes {
		if o.Failed() {
			failed++
		} else {
			succeeded++
		}
	}
	return succeeded, failed
}
