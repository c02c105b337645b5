package worker

// crawlOperations periodically crawls the chains of the known peers.
func (w *Worker) crawlOperations() {
	w.evHandler("worker: crawlOperations: G started")
	defer w.evHandler("worker: crawlOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.runCrawlOperation()
			}
		case <-w.shut:
			w.evHandler("worker: crawlOperations: received shut signal")
			return
		}
	}
}

// runCrawlOperation asks every known peer for the blocks after the latest
// one we hold of its chain.
func (w *Worker) runCrawlOperation() {
	w.evHandler("worker: runCrawlOperation: started")
	defer w.evHandler("worker: runCrawlOperation: completed")

	for _, p := range w.state.KnownPeers().Copy(w.state.PublicKey()) {
		if err := w.state.RequestCrawl(p.PublicKey, 0); err != nil {
			w.evHandler("worker: runCrawlOperation: %s: ERROR: %s", p, err)
		}
	}
}
