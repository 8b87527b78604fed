// Package latestonlychannel provides a channel adapter for consumers that
// only ever care about the newest value, such as configuration reloads.
package latestonlychannel

// Wrap pipes inputCh to the returned channel while guaranteeing that sends
// to inputCh never block. When the consumer is slow, older values are
// replaced rather than queued, so a receive always yields the most recent
// value seen on the input. Close the input channel to release the pipe.
func Wrap[T any](inputCh <-chan T) <-chan T {
	outputCh := make(chan T)

	go func() {
		for {
			latest, ok := <-inputCh
			if !ok {
				break
			}

			// Keep absorbing newer values until the consumer takes one.
			// Each receive overwrites what we are about to send, which is
			// what bounds the output count by the input count.
			delivering := true
			for delivering {
				select {
				case outputCh <- latest:
					delivering = false
				case updated, ok := <-inputCh:
					if !ok {
						close(outputCh)
						return
					}
					latest = updated
				}
			}
		}

		close(outputCh)
	}()

	return outputCh
}
