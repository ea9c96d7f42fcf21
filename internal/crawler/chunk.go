package crawler

// Chunkify splits urls into k contiguous chunks whose sizes differ by at most
// one: the first len(urls)%k chunks carry the extra item. Empty chunks (k
// larger than the URL count) are dropped, so the returned slice may be shorter
// than k. Concatenating the chunks in order reproduces urls exactly.
func Chunkify(urls []string, k int) []Chunk {
	if k <= 0 || len(urls) == 0 {
		return nil
	}
	n := len(urls)
	base, extra := n/k, n%k
	chunks := make([]Chunk, 0, min(k, n))
	start := 0
	for i := 0; i < k; i++ {
		size := base
		if i < extra {
			size++
		}
		if size == 0 {
			continue
		}
		tasks := make([]PageTask, 0, size)
		for _, u := range urls[start : start+size] {
			tasks = append(tasks, PageTask{URL: u})
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Tasks: tasks})
		start += size
	}
	return chunks
}
