package agentflow

// future is the result of a stage running in its own goroutine. The
// goroutine always runs to completion; wait may be skipped.
type future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func goFuture[T any](fn func() (T, error)) *future[T] {
	f := &future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.val, f.err = fn()
	}()
	return f
}

func (f *future[T]) wait() (T, error) {
	<-f.done
	return f.val, f.err
}
